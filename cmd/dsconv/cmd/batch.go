package cmd

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"github.com/hashicorp/go-multierror"
	"github.com/schollz/progressbar/v3"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/scigolib/dsconv"
)

// Batch targets and the file suffix each one writes.
const (
	targetDS   = "ds"
	targetYell = "yell"

	suffixDS   = ".nxs"
	suffixYell = ".yell.h5"
)

var exampleForBatchCmd = `
  dsconv batch --to ds data/*.h5

write into another directory, four files at a time:
  dsconv batch --to yell --out-dir legacy/ --jobs 4 data/*.nxs
`

type batchOpts struct {
	to     string
	outDir string
}

func newBatchCmd(v *viper.Viper) *cobra.Command {
	opts := &batchOpts{}
	batchCmd := &cobra.Command{
		Use:     "batch --to ds|yell <files...>",
		Short:   "convert many files concurrently",
		Example: exampleForBatchCmd,
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBatch(args, opts, v.GetInt(keyJobs), conversionOptions(v), cmd.ErrOrStderr())
		},
	}
	flags := batchCmd.Flags()
	flags.StringVar(&opts.to, "to", "", "target layout, ds or yell")
	flags.StringVarP(&opts.outDir, "out-dir", "o", "", "output directory (default is next to each source)")
	_ = batchCmd.MarkFlagRequired("to")
	return batchCmd
}

// runBatch converts every file with at most jobs conversions running. A
// failed file does not stop the others; all failures are returned together.
// Files whose outputs would collide are reported and not converted.
func runBatch(files []string, opts *batchOpts, jobs int, convOpts []dsconv.Option, progress io.Writer) error {
	var convert func(src, dst string, opts ...dsconv.Option) error
	switch opts.to {
	case targetDS:
		convert = dsconv.LegacyToNew
	case targetYell:
		convert = dsconv.NewToLegacy
	default:
		return fmt.Errorf("invalid --to %q, must be %s or %s", opts.to, targetDS, targetYell)
	}
	if jobs < 1 {
		jobs = runtime.NumCPU()
	}

	bar := progressbar.NewOptions(len(files),
		progressbar.OptionSetWriter(progress),
		progressbar.OptionSetDescription("converting"),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowCount(),
	)

	dsts := make([]string, len(files))
	sources := make(map[string][]string, len(files))
	for i, src := range files {
		dsts[i] = filepath.Clean(outputPath(src, opts.to, opts.outDir))
		sources[dsts[i]] = append(sources[dsts[i]], src)
	}

	var (
		mu     sync.Mutex
		result *multierror.Error
		eg     errgroup.Group
	)
	fail := func(src string, err error) {
		mu.Lock()
		result = multierror.Append(result, fmt.Errorf("%s: %w", src, err))
		mu.Unlock()
	}
	eg.SetLimit(jobs)
	for i, src := range files {
		src := src
		dst := dsts[i]
		// Every source of a shared output is skipped.
		if shared := sources[dst]; len(shared) > 1 {
			fail(src, fmt.Errorf("output %s is shared by %s", dst, strings.Join(shared, ", ")))
			_ = bar.Add(1)
			continue
		}
		eg.Go(func() error {
			var err error
			if filepath.Clean(src) == dst {
				err = errors.New("output would overwrite the source")
			} else {
				err = convert(src, dst, convOpts...)
			}
			if err != nil {
				fail(src, err)
			} else {
				logrus.Debugf("converted %s to %s", src, dst)
			}
			_ = bar.Add(1)
			return nil
		})
	}
	_ = eg.Wait()
	_ = bar.Finish()
	fmt.Fprintln(progress)

	return result.ErrorOrNil()
}

// outputPath replaces the extension of src with the target's suffix and
// moves it into outDir when one is given.
func outputPath(src, to, outDir string) string {
	suffix := suffixDS
	if to == targetYell {
		suffix = suffixYell
	}
	base := filepath.Base(src)
	for _, ext := range []string{suffixYell, suffixDS, filepath.Ext(base)} {
		if ext != "" && strings.HasSuffix(base, ext) {
			base = strings.TrimSuffix(base, ext)
			break
		}
	}
	dir := outDir
	if dir == "" {
		dir = filepath.Dir(src)
	}
	return filepath.Join(dir, base+suffix)
}
