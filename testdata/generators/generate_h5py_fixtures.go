//go:build ignore
// +build ignore

// Writes files with h5py into testdata/h5py for TestH5pyFixtures. Run from
// the module root:
//
//	go generate .
package main

import (
	"fmt"
	"log"
	"os"
	"os/exec"
	"path/filepath"
)

const outDir = "testdata/h5py"

// The values here are repeated in fixtures_test.go.
const pyScript = `
import sys
import h5py
import numpy as np

out = sys.argv[1]

shape = (4, 3, 2)
lower = np.array([-2.0, -1.0, 0.0])
step = np.array([1.0, 0.5, 0.25])
cell = np.array([5.4, 5.4, 7.1, 90.0, 90.0, 120.0])
volume = np.arange(np.prod(shape), dtype='f8').reshape(shape) * 0.5


def yell(name, libver, data, is_direct):
    with h5py.File(f'{out}/{name}', 'w', libver=libver) as f:
        f['data'] = data
        f['lower_limits'] = lower
        f['step_sizes'] = step
        f['unit_cell'] = cell
        f['format'] = b'Yell 1.0'
        f['is_direct'] = is_direct
    print(f'Created: {out}/{name}')


def nexus(name, libver, data, space, **kwargs):
    axes = [lower[i] + step[i] * np.arange(shape[i]) for i in range(3)]
    with h5py.File(f'{out}/{name}', 'w', libver=libver) as f:
        f.attrs['format'] = 'Disorder scattering 1.0'
        f.attrs['default'] = 'scattering'
        entry = f.create_group('scattering')
        entry.attrs['NX_class'] = 'NXentry'
        entry.attrs['default'] = 'data'
        g = entry.create_group('data')
        g.attrs['NX_class'] = 'NXdata'
        g.attrs['signal'] = 'data'
        g.attrs['axes'] = ['h', 'k', 'l']
        g.attrs['h_indices'] = 0
        g.attrs['k_indices'] = 1
        g.attrs['l_indices'] = 2
        g.attrs['radiation'] = 'neutron'
        g.attrs['space'] = space
        g['h'], g['k'], g['l'] = axes
        g.create_dataset('data', data=data, **kwargs)
        g['unit_cell'] = cell
    print(f'Created: {out}/{name}')


# 'earliest' gives a version 0 superblock, version 1 object headers and
# symbol-table groups.
yell('yell_earliest.h5', 'earliest', volume, False)
yell('yell_int32_latest.h5', 'latest', volume.astype('i4'), True)
nexus('ds_earliest.nxs', 'earliest', volume, 'reciprocal')
nexus('ds_chunked_v108.nxs', 'v108', volume.astype('f4'), 'direct',
      chunks=(1, 3, 2), compression='gzip', compression_opts=4, shuffle=True)
`

func main() {
	if err := createFixtures(); err != nil {
		log.Fatalf("Failed to create fixtures: %v", err)
	}
	fmt.Println("fixtures written to", outDir)
}

func createFixtures() error {
	if !checkPythonDependencies() {
		return fmt.Errorf("required Python dependencies missing, install with: pip install h5py numpy")
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", outDir, err)
	}

	script := filepath.Join(os.TempDir(), "dsconv_h5py_fixtures.py")
	if err := os.WriteFile(script, []byte(pyScript), 0o600); err != nil {
		return fmt.Errorf("failed to write Python script: %w", err)
	}
	defer func() { _ = os.Remove(script) }()

	cmd := exec.Command(getPythonCommand(), script, outDir)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}

func checkPythonDependencies() bool {
	cmd := exec.Command(getPythonCommand(), "-c", "import h5py, numpy")
	return cmd.Run() == nil
}

func getPythonCommand() string {
	if _, err := exec.LookPath("python3"); err == nil {
		return "python3"
	}
	return "python"
}
