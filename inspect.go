package dsconv

import (
	"fmt"
	"io"
	"strings"

	"github.com/olekukonko/tablewriter"

	"github.com/scigolib/dsconv/internal/core"
	"github.com/scigolib/dsconv/internal/hdf5"
)

// Inspect reads a "Disorder scattering 1.0" file, writes a report of its
// members, attributes and array summaries to w and returns the loaded
// content. Unlike ReadDiffuseScattering it accepts a file without the space
// attribute; Space is then empty.
func Inspect(path string, w io.Writer) (ds *DiffuseScattering, err error) {
	f, err := openSource(path)
	if err != nil {
		return nil, err
	}
	defer closeSource(f, &err)

	for _, p := range []string{"/", entryName, dataGroup} {
		g, err := f.Group(p)
		if err != nil {
			return nil, readError(path, p, err)
		}
		if err := reportGroup(w, g); err != nil {
			return nil, readError(path, p, err)
		}
	}

	ds, _, err = readScattering(f)
	if err != nil {
		return nil, err
	}
	reportArrays(w, ds)
	return ds, nil
}

// reportGroup prints the members and the attributes of g as tables.
func reportGroup(w io.Writer, g *hdf5.Group) error {
	attrs, err := g.Attrs()
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "\n%s\n", g.Path())
	members := tablewriter.NewWriter(w)
	members.SetHeader([]string{"key", "kind"})
	for _, name := range g.Names() {
		kind, err := g.Kind(name)
		if err != nil {
			return err
		}
		label := "group"
		if kind == core.ObjectTypeDataset {
			label = "dataset"
		}
		members.Append([]string{name, label})
	}
	members.Render()

	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"attribute", "type", "value"})
	table.SetAutoWrapText(false)
	for _, a := range attrs {
		table.Append([]string{a.Name, a.Datatype.String(), formatValue(a.Value)})
	}
	table.Render()
	return nil
}

func formatValue(v interface{}) string {
	switch x := v.(type) {
	case string:
		return x
	case []string:
		return "[" + strings.Join(x, ", ") + "]"
	default:
		return fmt.Sprint(x)
	}
}

// reportArrays prints the rank and shape of the volume, the range of each
// axis and the unit cell.
func reportArrays(w io.Writer, ds *DiffuseScattering) {
	shape := ds.Volume.Shape
	fmt.Fprintf(w, "\ndata      : rank 3, shape (%d, %d, %d), %s\n", shape[0], shape[1], shape[2], ds.Volume.Precision)
	for i, name := range axisNames {
		values := ds.Axes.axis(i)
		if len(values) == 0 {
			fmt.Fprintf(w, "%s indices : empty\n", strings.ToUpper(name))
			continue
		}
		fmt.Fprintf(w, "%s indices : %d values, %g to %g\n",
			strings.ToUpper(name), len(values), values[0], values[len(values)-1])
	}
	fmt.Fprintf(w, "unit cell : %v\n", ds.UnitCell)
	if ds.Space == "" {
		fmt.Fprintln(w, "space     : (missing)")
	} else {
		fmt.Fprintf(w, "space     : %s\n", ds.Space)
	}
}
