package main

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/soypat/cvmesh"
	"github.com/soypat/cvmesh/internal/logging"
	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run [config]",
	Short: "Generate the mesh",
	Long: `Runs the mesher on the requested number of in-process ranks. An interrupt
stops the motion iterations on every rank and still produces the mesh.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := configPath(cmd, args)
		levelName, _ := cmd.Flags().GetString("log-level")
		procs, _ := cmd.Flags().GetInt("procs")
		outDir, _ := cmd.Flags().GetString("output-dir")
		writeMetrics, _ := cmd.Flags().GetBool("metrics")
		if procs < 1 {
			return fmt.Errorf("--procs must be at least 1, got %d", procs)
		}
		level, err := logging.ParseLevel(levelName)
		if err != nil {
			return err
		}
		cfg, err := cvmesh.LoadFile(path)
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("output-dir") {
			cfg.OutputDir = outDir
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		log := logging.New(level)
		results, err := cvmesh.RunWorld(ctx, cfg, procs, log)
		if err != nil {
			return err
		}
		for rank, res := range results {
			log.Info("rank done", "rank", rank, "state", res.State, "iterations", res.Iterations,
				"cells", res.Mesh.NumCells(), "faces", len(res.Mesh.Faces),
				"patches", len(res.Mesh.Patches), "quality", res.Quality)
			if !writeMetrics {
				continue
			}
			name := filepath.Join(cfg.OutputDir, fmt.Sprintf("metrics_rank%d.prom", rank))
			if err := os.MkdirAll(cfg.OutputDir, 0o755); err != nil {
				return err
			}
			if err := prometheus.WriteToTextfile(name, res.Metrics.Registry); err != nil {
				return err
			}
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().IntP("procs", "n", 1, "Number of ranks")
	runCmd.Flags().StringP("output-dir", "o", ".", "Directory for diagnostic output, overrides outputDir")
	runCmd.Flags().Bool("metrics", false, "Write the counters of every rank in the Prometheus text format")
}
