// Package dsconv converts volumetric diffuse-scattering data between two
// HDF5 layouts: the legacy single-array "Yell 1.0" layout and the
// NeXus-style "Disorder scattering 1.0" layout.
//
// The legacy layout keeps the intensity volume next to per-axis lower limits
// and step sizes:
//
//	/data          3-D intensities
//	/lower_limits  3 values
//	/step_sizes    3 values
//	/unit_cell     a, b, c, alpha, beta, gamma
//	/format        "Yell 1.0"
//	/is_direct     bool
//
// The new layout stores explicit coordinate arrays and describes itself
// with attributes:
//
//	/                  format="Disorder scattering 1.0", default="scattering"
//	/scattering        NX_class="NXentry", default="data"
//	/scattering/data   NX_class="NXdata", signal, axes, *_indices, radiation, space
//	    h, k, l, data, unit_cell
//
// Conversion is done by two entry points, one per direction:
//
//	err := dsconv.LegacyToNew("volume.yell.h5", "volume.nxs")
//	err = dsconv.NewToLegacy("volume.nxs", "volume.yell.h5", dsconv.WithStrictAxes(1e-9))
//
// Coordinate arrays are summarized by their first two samples when going
// back to the legacy layout. WithStrictAxes makes the conversion fail on
// coordinate arrays that are not evenly spaced instead.
package dsconv

//go:generate go run testdata/generators/generate_h5py_fixtures.go
