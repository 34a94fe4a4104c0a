package dsconv

import (
	"github.com/sirupsen/logrus"
)

// LegacyToNew converts a "Yell 1.0" file at src into a "Disorder
// scattering 1.0" file at dst. The coordinates of each axis are expanded
// from lower_limits and step_sizes over the extent of data. The volume is
// tagged as reciprocal space.
//
// A missing dataset yields a *MissingKeyError, a vector of the wrong length
// or a volume that is not 3-D a *ShapeError, and file failures an *IOError.
func LegacyToNew(src, dst string, opts ...Option) error {
	o := newOptions(opts)
	log := o.log.WithFields(logrus.Fields{"src": src, "dst": dst})

	lf, err := ReadLegacy(src)
	if err != nil {
		return err
	}
	axes := ForwardAxes(lf.Limits, lf.Volume.Shape)

	log.WithFields(logrus.Fields{
		"shape": lf.Volume.Shape,
		"lower": lf.Limits.Lower,
		"step":  lf.Limits.Step,
	}).Debug("expanded legacy limits into axes")

	return WriteDiffuseScattering(dst, &DiffuseScattering{
		Volume:    lf.Volume,
		Axes:      axes,
		UnitCell:  lf.UnitCell,
		Radiation: o.radiation,
		Space:     SpaceReciprocal,
	}, opts...)
}

// NewToLegacy converts a "Disorder scattering 1.0" file at src into a
// "Yell 1.0" file at dst. Lower limits and step sizes are taken from the
// first two coordinates of each axis, and is_direct is set unless space is
// "reciprocal".
//
// The space attribute of scattering/data is required. With WithStrictAxes,
// unevenly spaced coordinates yield a *NonUniformAxisError.
func NewToLegacy(src, dst string, opts ...Option) error {
	o := newOptions(opts)
	log := o.log.WithFields(logrus.Fields{"src": src, "dst": dst})

	ds, err := ReadDiffuseScattering(src)
	if err != nil {
		return err
	}

	limits, err := ReverseAxes(ds.Axes)
	if err != nil {
		return err
	}
	if o.strict {
		if err := CheckUniform(ds.Axes, o.tolerance); err != nil {
			return err
		}
	}

	log.WithFields(logrus.Fields{
		"shape": ds.Volume.Shape,
		"lower": limits.Lower,
		"step":  limits.Step,
		"space": ds.Space,
	}).Debug("reduced axes to legacy limits")

	return WriteLegacy(dst, &LegacyFile{
		Volume:      ds.Volume,
		Limits:      limits,
		UnitCell:    ds.UnitCell,
		Format:      FormatYell,
		IsDirect:    ds.Space.IsDirect(),
		HasIsDirect: true,
	}, opts...)
}
