package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "cvmesh",
	Short: "cvmesh is a conformal Voronoi polyhedral mesh generator",
	Long: `cvmesh fills the region bounded by a set of surfaces with polyhedral cells,
the Voronoi dual of a Delaunay tessellation whose points are moved towards a
prescribed cell size and alignment and paired across the boundary.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringP("config", "c", "cvmesh.yaml", "YAML configuration file")
	rootCmd.PersistentFlags().String("log-level", "info", "Log level: debug, info, warn or error")
}
