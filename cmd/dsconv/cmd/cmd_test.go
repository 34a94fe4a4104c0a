package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/scigolib/dsconv"
)

func writeLegacy(t *testing.T, path string, step float64) {
	t.Helper()
	vol, err := dsconv.NewVolume(dsconv.Shape{3, 2, 2}, make([]float64, 12))
	require.NoError(t, err)
	require.NoError(t, dsconv.WriteLegacy(path, &dsconv.LegacyFile{
		Volume:   vol,
		Limits:   dsconv.Limits{Lower: [3]float64{-1, -1, 0}, Step: [3]float64{step, step, step}},
		UnitCell: dsconv.UnitCell{4, 4, 4, 90, 90, 90},
	}))
}

// run executes the command tree with an empty config file so a config in
// the user's home directory cannot leak into the test.
func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cfg := filepath.Join(t.TempDir(), "empty.yaml")
	require.NoError(t, os.WriteFile(cfg, nil, 0o600))

	var out bytes.Buffer
	root := NewRootCmd()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(append([]string{"--config", cfg}, args...))
	err := root.Execute()
	return out.String(), err
}

func TestYell2DSAndBack(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "in.h5")
	writeLegacy(t, src, 0.5)

	nexus := filepath.Join(dir, "out.nxs")
	_, err := run(t, "yell2ds", src, nexus, "--radiation", "neutron", "--compress", "6")
	require.NoError(t, err)

	ds, err := dsconv.ReadDiffuseScattering(nexus)
	require.NoError(t, err)
	require.Equal(t, dsconv.RadiationNeutron, ds.Radiation)
	require.Equal(t, []float64{-1, -0.5, 0}, ds.Axes.H)

	back := filepath.Join(dir, "back.h5")
	_, err = run(t, "ds2yell", nexus, back)
	require.NoError(t, err)
	lf, err := dsconv.ReadLegacy(back)
	require.NoError(t, err)
	require.Equal(t, [3]float64{0.5, 0.5, 0.5}, lf.Limits.Step)

	out, err := run(t, "inspect", nexus)
	require.NoError(t, err)
	require.Contains(t, out, "H indices : 3 values, -1 to 0")
}

func TestArgsValidation(t *testing.T) {
	_, err := run(t, "yell2ds", "only-one.h5")
	require.Error(t, err)

	_, err = run(t, "batch", "a.h5")
	require.Error(t, err)
}

func TestConfigFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "in.h5")
	writeLegacy(t, src, 1)
	nexus := filepath.Join(dir, "out.nxs")

	t.Setenv("DSCONV_RADIATION", "electron")
	_, err := run(t, "yell2ds", src, nexus)
	require.NoError(t, err)
	ds, err := dsconv.ReadDiffuseScattering(nexus)
	require.NoError(t, err)
	require.Equal(t, dsconv.RadiationElectron, ds.Radiation)

	// Make h uneven and let the config file turn on strict mode.
	ds.Axes.H[2] += 0.5
	require.NoError(t, dsconv.WriteDiffuseScattering(nexus, ds))

	cfg := filepath.Join(dir, "dsconv.yaml")
	require.NoError(t, os.WriteFile(cfg, []byte("strict_axes: true\naxis_tolerance: 1e-9\n"), 0o600))

	root := NewRootCmd()
	root.SetOut(&bytes.Buffer{})
	root.SetArgs([]string{"--config", cfg, "ds2yell", nexus, filepath.Join(dir, "back.h5")})
	err = root.Execute()
	require.ErrorIs(t, err, dsconv.ErrNonUniformAxis)

	_, err = run(t, "ds2yell", nexus, filepath.Join(dir, "back.h5"))
	require.NoError(t, err)

	root = NewRootCmd()
	root.SetArgs([]string{"--config", filepath.Join(dir, "missing.yaml"), "inspect", nexus})
	require.Error(t, root.Execute())
}

func TestBatch(t *testing.T) {
	dir := t.TempDir()
	var files []string
	for _, name := range []string{"a.h5", "b.h5", "c.h5"} {
		path := filepath.Join(dir, name)
		writeLegacy(t, path, 0.25)
		files = append(files, path)
	}
	broken := filepath.Join(dir, "broken.h5")
	require.NoError(t, os.WriteFile(broken, []byte("not hdf5"), 0o600))

	outDir := t.TempDir()
	args := append([]string{"batch", "--to", "ds", "--out-dir", outDir, "--jobs", "2"}, append(files, broken)...)
	_, err := run(t, args...)
	require.Error(t, err)
	require.Contains(t, err.Error(), "broken.h5")

	for _, name := range []string{"a", "b", "c"} {
		ds, err := dsconv.ReadDiffuseScattering(filepath.Join(outDir, name+".nxs"))
		require.NoError(t, err)
		require.Equal(t, dsconv.Shape{3, 2, 2}, ds.Volume.Shape)
	}

	_, err = run(t, "batch", "--to", "yell", filepath.Join(outDir, "a.nxs"))
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(outDir, "a.yell.h5"))
	require.NoError(t, err)

	_, err = run(t, "batch", "--to", "xml", files[0])
	require.ErrorContains(t, err, "invalid --to")
}

func TestBatch_SharedOutput(t *testing.T) {
	dir := t.TempDir()
	var files []string
	for _, sub := range []string{"a", "b"} {
		require.NoError(t, os.Mkdir(filepath.Join(dir, sub), 0o755))
		path := filepath.Join(dir, sub, "x.h5")
		writeLegacy(t, path, 0.25)
		files = append(files, path)
	}
	other := filepath.Join(dir, "a", "y.h5")
	writeLegacy(t, other, 0.5)

	outDir := t.TempDir()
	args := append([]string{"batch", "--to", "ds", "--out-dir", outDir}, append(files, other)...)
	_, err := run(t, args...)
	require.Error(t, err)
	for _, src := range files {
		require.Contains(t, err.Error(), src+": output "+filepath.Join(outDir, "x.nxs")+" is shared")
	}
	_, err = os.Stat(filepath.Join(outDir, "x.nxs"))
	require.ErrorIs(t, err, os.ErrNotExist)

	_, err = dsconv.ReadDiffuseScattering(filepath.Join(outDir, "y.nxs"))
	require.NoError(t, err)

	// Without --out-dir each output stays next to its source.
	_, err = run(t, append([]string{"batch", "--to", "ds"}, files...)...)
	require.NoError(t, err)
}

func TestOutputPath(t *testing.T) {
	require.Equal(t, filepath.Join("data", "x.nxs"), outputPath(filepath.Join("data", "x.h5"), targetDS, ""))
	require.Equal(t, filepath.Join("out", "x.yell.h5"), outputPath(filepath.Join("data", "x.nxs"), targetYell, "out"))
	require.Equal(t, filepath.Join("data", "x.nxs"), outputPath(filepath.Join("data", "x.yell.h5"), targetDS, ""))
	require.Equal(t, "noext.nxs", outputPath("noext", targetDS, ""))
}

func TestDump(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bytes.bin")
	require.NoError(t, os.WriteFile(path, []byte("\x89HDF\r\n\x1a\nHello, dump!"), 0o600))

	out, err := run(t, "dump", path, "--length", "64")
	require.NoError(t, err)
	require.Contains(t, out, "20 bytes at offset 0x0")
	require.Contains(t, out, "00000000: 89 48 44 46 0d 0a 1a 0a  48 65 6c 6c 6f 2c 20 64")
	require.Contains(t, out, "|.HDF....Hello, d|")
	require.Contains(t, out, "00000010: 75 6d 70 21")

	_, err = run(t, "dump", path, "--offset", "100")
	require.Error(t, err)
}
