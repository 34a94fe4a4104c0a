package cmd

import (
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/scigolib/dsconv"
)

var exampleForYell2DSCmd = `
  dsconv yell2ds volume.h5 volume.nxs

tag the output as neutron data:
  dsconv yell2ds volume.h5 volume.nxs --radiation neutron
`

var exampleForDS2YellCmd = `
  dsconv ds2yell volume.nxs volume.h5

refuse unevenly spaced coordinate arrays:
  dsconv ds2yell volume.nxs volume.h5 --strict-axes --axis-tolerance 1e-9
`

func newYell2DSCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:     "yell2ds <src> <dst>",
		Short:   "convert a Yell 1.0 file to Disorder scattering 1.0",
		Example: exampleForYell2DSCmd,
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := dsconv.LegacyToNew(args[0], args[1], conversionOptions(v)...); err != nil {
				return err
			}
			logrus.Infof("wrote %s", args[1])
			return nil
		},
	}
}

func newDS2YellCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:     "ds2yell <src> <dst>",
		Short:   "convert a Disorder scattering 1.0 file to Yell 1.0",
		Example: exampleForDS2YellCmd,
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := dsconv.NewToLegacy(args[0], args[1], conversionOptions(v)...); err != nil {
				return err
			}
			logrus.Infof("wrote %s", args[1])
			return nil
		},
	}
}

func newInspectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "inspect <file>",
		Short: "print the structure and axis summary of a Disorder scattering 1.0 file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := dsconv.Inspect(args[0], cmd.OutOrStdout())
			return err
		},
	}
}
