package main

import (
	"fmt"

	"github.com/soypat/cvmesh"
	"github.com/soypat/cvmesh/geometry"
	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate [config]",
	Short: "Check a configuration and its geometry",
	Long:  `Loads the configuration, applies the defaults and builds the geometry without meshing.`,
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := configPath(cmd, args)
		cfg, err := cvmesh.LoadFile(path)
		if err != nil {
			return err
		}
		g, err := geometry.Build(cfg.Geometry)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		b := g.Bounds()
		fmt.Fprintf(cmd.OutOrStdout(), "%s: %d surfaces, %d feature points, bounds %v to %v\n",
			path, len(g.Surfaces()), len(g.Features().FeaturePoints()), b.Min, b.Max)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

// configPath returns the configuration named by the first argument or,
// without arguments, by the config flag.
func configPath(cmd *cobra.Command, args []string) string {
	path, _ := cmd.Flags().GetString("config")
	if !cmd.Flags().Changed("config") && len(args) > 0 {
		path = args[0]
	}
	return path
}
