package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"trailrun-backend/internal/config"
	"trailrun-backend/internal/logger"
)

var (
	configDir string

	cfg *config.Config
	log *logrus.Logger
)

var rootCmd = &cobra.Command{
	Use:   "trailrun-server",
	Short: "Bulk-edit backend for the trail-running catalog",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var paths []string
		if configDir != "" {
			paths = append(paths, configDir)
		}
		c, err := config.Load(paths...)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c
		log = logger.New(cfg.Log)
		return nil
	},
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configDir, "config-dir", "", "directory holding app.yaml")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(bootstrapCmd)
}

func main() {
	// serve is the default when no subcommand is given
	if len(os.Args) == 1 {
		rootCmd.SetArgs([]string{"serve"})
	}
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
