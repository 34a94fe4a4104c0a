package hdf5

import (
	"fmt"

	"github.com/scigolib/dsconv/internal/core"
)

// Attribute is a decoded attribute.
//
// Value holds a scalar Go value for scalar attributes (float64, int64,
// string or bool) and a slice of the same element type otherwise.
type Attribute struct {
	Name     string
	Datatype *core.Datatype
	Shape    []uint64
	Value    interface{}
}

func (f *File) newAttribute(am *core.AttributeMessage) (*Attribute, error) {
	v, err := f.decode(am.Datatype, am.Dataspace, am.Data)
	if err != nil {
		return nil, err
	}
	return &Attribute{
		Name:     am.Name,
		Datatype: am.Datatype,
		Shape:    am.Dataspace.Dims,
		Value:    v,
	}, nil
}

// AsString returns a scalar string attribute. A one-element string array is
// accepted as well.
func (a *Attribute) AsString() (string, error) {
	switch v := a.Value.(type) {
	case string:
		return v, nil
	case []string:
		if len(v) == 1 {
			return v[0], nil
		}
	}
	return "", a.mismatch("string")
}

// AsStrings returns a string array attribute. A scalar string yields a
// one-element slice.
func (a *Attribute) AsStrings() ([]string, error) {
	switch v := a.Value.(type) {
	case string:
		return []string{v}, nil
	case []string:
		return v, nil
	}
	return nil, a.mismatch("string array")
}

// AsInt64 returns a scalar integer attribute.
func (a *Attribute) AsInt64() (int64, error) {
	switch v := a.Value.(type) {
	case int64:
		return v, nil
	case []int64:
		if len(v) == 1 {
			return v[0], nil
		}
	}
	return 0, a.mismatch("integer")
}

// AsFloat64s returns a numeric attribute converted to float64.
func (a *Attribute) AsFloat64s() ([]float64, error) {
	switch v := a.Value.(type) {
	case float64:
		return []float64{v}, nil
	case []float64:
		return v, nil
	case int64:
		return []float64{float64(v)}, nil
	case []int64:
		out := make([]float64, len(v))
		for i, x := range v {
			out[i] = float64(x)
		}
		return out, nil
	}
	return nil, a.mismatch("numeric")
}

func (a *Attribute) mismatch(want string) error {
	return fmt.Errorf("attribute %q holds %s, not %s: %w", a.Name, a.Datatype, want, ErrTypeMismatch)
}
