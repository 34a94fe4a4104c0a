// Package cmd implements the dsconv subcommands.
package cmd

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"

	"github.com/mitchellh/go-homedir"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/scigolib/dsconv"
	"github.com/scigolib/dsconv/internal/logger"
)

// Configuration keys. Each can be set in the config file, as a DSCONV_*
// environment variable or with the matching flag.
const (
	keyStrictAxes    = "strict_axes"
	keyAxisTolerance = "axis_tolerance"
	keyRadiation     = "radiation"
	keyJobs          = "jobs"
	keyCompression   = "compression"
)

const defaultConfigName = ".dsconv.yaml"

type rootOpts struct {
	cfgFile string
	debug   bool
	noColor bool
}

var longRootCmdDescription = `dsconv converts diffuse-scattering volumes between the legacy
"Yell 1.0" HDF5 layout and the NeXus-style "Disorder scattering 1.0" layout.
`

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		logrus.Errorf("dsconv: %v", err)
		os.Exit(1)
	}
}

// NewRootCmd builds the command tree with its own configuration registry.
func NewRootCmd() *cobra.Command {
	opts := &rootOpts{}
	v := viper.New()

	rootCmd := &cobra.Command{
		Use:           "dsconv",
		Short:         "Convert diffuse-scattering files between Yell 1.0 and Disorder scattering 1.0",
		Long:          longRootCmdDescription,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig(v, opts)
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&opts.cfgFile, "config", "", "config file (default is $HOME/"+defaultConfigName+")")
	flags.BoolVarP(&opts.debug, "debug", "d", false, "turn on debug logging")
	flags.BoolVar(&opts.noColor, "no-color", false, "disable colored log output")
	flags.Bool("strict-axes", false, "fail on coordinate arrays that are not evenly spaced")
	flags.Float64("axis-tolerance", 1e-6, "relative tolerance of --strict-axes")
	flags.String("radiation", string(dsconv.RadiationXRay), "radiation tag written to new-format files")
	flags.Int("compress", 0, "deflate level 1-9 for the written volume, 0 to store it uncompressed")
	flags.IntP("jobs", "j", runtime.NumCPU(), "number of files converted at once in batch mode")

	for key, flag := range map[string]string{
		keyStrictAxes:    "strict-axes",
		keyAxisTolerance: "axis-tolerance",
		keyRadiation:     "radiation",
		keyJobs:          "jobs",
		keyCompression:   "compress",
	} {
		_ = v.BindPFlag(key, flags.Lookup(flag))
	}

	rootCmd.AddCommand(
		newYell2DSCmd(v),
		newDS2YellCmd(v),
		newInspectCmd(),
		newBatchCmd(v),
		newDumpCmd(),
	)
	return rootCmd
}

// initConfig sets up logging and reads the config file and environment.
// A missing default config file is not an error; a missing --config file is.
func initConfig(v *viper.Viper, opts *rootOpts) error {
	logger.Init(logger.Options{Debug: opts.debug, DisableColor: opts.noColor})

	v.SetEnvPrefix("DSCONV")
	v.AutomaticEnv()

	explicit := opts.cfgFile != ""
	cfgFile := opts.cfgFile
	if !explicit {
		home, err := homedir.Dir()
		if err != nil {
			logrus.Debugf("no home directory, skipping default config: %v", err)
			return nil
		}
		cfgFile = filepath.Join(home, defaultConfigName)
	}

	v.SetConfigFile(cfgFile)
	if err := v.ReadInConfig(); err != nil {
		if !explicit && errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to read config file %s: %w", cfgFile, err)
	}
	logrus.Debugf("using config file %s", v.ConfigFileUsed())
	return nil
}

// conversionOptions turns the effective configuration into library options.
func conversionOptions(v *viper.Viper) []dsconv.Option {
	opts := []dsconv.Option{
		dsconv.WithLogger(logrus.StandardLogger()),
		dsconv.WithRadiation(dsconv.Radiation(v.GetString(keyRadiation))),
		dsconv.WithCompression(v.GetInt(keyCompression)),
	}
	if v.GetBool(keyStrictAxes) {
		opts = append(opts, dsconv.WithStrictAxes(v.GetFloat64(keyAxisTolerance)))
	}
	return opts
}
