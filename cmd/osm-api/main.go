// Command osm-api runs the versioned OpenStreetMap editing API and its
// supporting tooling.
package main

import (
	"os"

	"github.com/spf13/cobra"
)

// RootCmd is the parent of every osm-api subcommand.
var RootCmd = &cobra.Command{
	Use:   "osm-api",
	Short: "Versioned OpenStreetMap editing API",
	Long:  "Serve the OSM API v0.6 editing surface over named in-memory instances.",
}

func main() {
	if err := RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
