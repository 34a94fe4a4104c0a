package dsconv

import "math"

// ForwardAxes expands limits into explicit coordinates: axis i gets
// shape[i] values lower[i] + step[i]*j. A non-positive extent yields an
// empty axis.
func ForwardAxes(limits Limits, shape Shape) Axes {
	var axes Axes
	for i := range shape {
		values := make([]float64, max(shape[i], 0))
		for j := range values {
			values[j] = limits.Lower[i] + limits.Step[i]*float64(j)
		}
		axes.setAxis(i, values)
	}
	return axes
}

// ReverseAxes summarizes coordinates by their first value and the
// difference of their first two values. The remaining samples are not
// looked at; use CheckUniform for that. Every axis needs at least two
// samples.
func ReverseAxes(axes Axes) (Limits, error) {
	var limits Limits
	for i, name := range axisNames {
		values := axes.axis(i)
		if len(values) < 2 {
			return Limits{}, &ShapeError{Key: name, Want: 2, Got: len(values)}
		}
		limits.Lower[i] = values[0]
		limits.Step[i] = values[1] - values[0]
	}
	return limits, nil
}

// CheckUniform verifies that every coordinate lies on the arithmetic
// sequence given by the first two samples of its axis, within
// tol*max(1, |step|). Axes shorter than two samples are accepted.
func CheckUniform(axes Axes, tol float64) error {
	for i, name := range axisNames {
		values := axes.axis(i)
		if len(values) < 2 {
			continue
		}
		lower, step := values[0], values[1]-values[0]
		limit := tol * math.Max(1, math.Abs(step))
		for j := 2; j < len(values); j++ {
			want := lower + step*float64(j)
			if math.Abs(values[j]-want) > limit || math.IsNaN(values[j]) {
				return &NonUniformAxisError{Axis: name, Index: j, Want: want, Got: values[j]}
			}
		}
	}
	return nil
}
