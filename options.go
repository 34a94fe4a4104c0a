package dsconv

import "github.com/sirupsen/logrus"

// Option configures a conversion.
type Option func(*options)

type options struct {
	log       logrus.FieldLogger
	strict    bool
	tolerance float64
	radiation Radiation
	deflate   int
}

func newOptions(opts []Option) *options {
	o := &options{
		log:       logrus.StandardLogger(),
		radiation: RadiationXRay,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// WithLogger sets the logger conversions report progress to at debug level.
// The default is the logrus standard logger.
func WithLogger(log logrus.FieldLogger) Option {
	return func(o *options) {
		if log != nil {
			o.log = log
		}
	}
}

// WithStrictAxes makes NewToLegacy fail with a *NonUniformAxisError when a
// coordinate array is not evenly spaced within tol, relative to the step.
// Without it only the first two samples of each axis are used.
func WithStrictAxes(tol float64) Option {
	return func(o *options) {
		o.strict = true
		o.tolerance = tol
	}
}

// WithCompression stores the volume in chunks of one h plane, shuffled and
// deflated at level 1-9. Level 0 keeps the contiguous layout, which is the
// default. Coordinates and vectors are never compressed.
func WithCompression(level int) Option {
	return func(o *options) {
		o.deflate = max(0, min(level, 9))
	}
}

// WithRadiation sets the radiation tag LegacyToNew writes. The default is
// x-ray.
func WithRadiation(r Radiation) Option {
	return func(o *options) {
		if r != "" {
			o.radiation = r
		}
	}
}
