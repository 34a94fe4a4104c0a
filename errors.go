package dsconv

import (
	"errors"
	"fmt"
)

var (
	// ErrMissingKey matches every *MissingKeyError.
	ErrMissingKey = errors.New("missing key")

	// ErrShape matches every *ShapeError.
	ErrShape = errors.New("shape mismatch")

	// ErrNonUniformAxis matches every *NonUniformAxisError.
	ErrNonUniformAxis = errors.New("non-uniform axis")
)

// MissingKeyError reports a required dataset, group or attribute that is
// absent from the source file. Attributes are written as "group@name".
type MissingKeyError struct {
	Path string
}

func (e *MissingKeyError) Error() string {
	return fmt.Sprintf("missing key %s", e.Path)
}

// Is makes errors.Is(err, ErrMissingKey) hold.
func (e *MissingKeyError) Is(target error) bool {
	return target == ErrMissingKey
}

// ShapeError reports a value with the wrong length or rank.
type ShapeError struct {
	Key  string
	Want int
	Got  int
}

func (e *ShapeError) Error() string {
	return fmt.Sprintf("%s: expected %d, got %d", e.Key, e.Want, e.Got)
}

// Is makes errors.Is(err, ErrShape) hold.
func (e *ShapeError) Is(target error) bool {
	return target == ErrShape
}

// IOError reports a failure of the underlying file.
type IOError struct {
	Op   string
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() error {
	return e.Err
}

// NonUniformAxisError reports a coordinate that is off the arithmetic
// sequence defined by the first two samples of its axis.
type NonUniformAxisError struct {
	Axis  string
	Index int
	Want  float64
	Got   float64
}

func (e *NonUniformAxisError) Error() string {
	return fmt.Sprintf("axis %s is not evenly spaced: sample %d is %g, expected %g", e.Axis, e.Index, e.Got, e.Want)
}

// Is makes errors.Is(err, ErrNonUniformAxis) hold.
func (e *NonUniformAxisError) Is(target error) bool {
	return target == ErrNonUniformAxis
}
