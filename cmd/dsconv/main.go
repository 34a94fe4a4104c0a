// Command dsconv converts diffuse-scattering volumes between the legacy
// "Yell 1.0" and the "Disorder scattering 1.0" HDF5 layouts.
package main

import "github.com/scigolib/dsconv/cmd/dsconv/cmd"

func main() {
	cmd.Execute()
}
