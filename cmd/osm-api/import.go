package main

import (
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/example/osm-edit-engine/internal/importer"
	"github.com/example/osm-edit-engine/internal/store"
)

func init() {
	RootCmd.AddCommand(importCmd)
}

var importCmd = &cobra.Command{
	Use:   "import <OSM PBF file>",
	Short: "Load a PBF extract into a throwaway store and report what it holds",
	Long: `Load a PBF extract into a fresh in-memory store and print element counts.
Useful to validate an extract before seeding a server with it via serve --seed.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		zerolog.TimeFieldFormat = time.RFC3339Nano
		logger := zerolog.New(os.Stderr).With().Timestamp().Logger()

		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()

		stats, err := importer.New(store.New(), logger).Run(cmd.Context(), f)
		if err != nil {
			return err
		}

		fmt.Printf("nodes:     %d\n", stats.Nodes)
		fmt.Printf("ways:      %d\n", stats.Ways)
		fmt.Printf("relations: %d\n", stats.Relations)
		fmt.Printf("elapsed:   %s\n", stats.Elapsed.Round(time.Millisecond))
		return nil
	},
}
