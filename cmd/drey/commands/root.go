package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	version string
	commit  string
	date    string

	hostAddr string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "drey",
	Short: "Drey - Collaborative room host CLI",
	Long: `Drey hosts shared collaboration rooms: an event-driven reducer pipeline
over a shared document store, with presence tracking and an inactivity
watchdog that tears down idle room compute.

This CLI talks to a running drey host (see 'dreyd') and to Docker for
room compute teardown.`,
	Version: version,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

// SetVersionInfo sets the version information for the CLI
func SetVersionInfo(v, c, d string) {
	version = v
	commit = c
	date = d
	rootCmd.Version = fmt.Sprintf("%s (commit: %s, built: %s)", v, c, d)
}

func init() {
	defaultAddr := os.Getenv("DREY_ADDR")
	if defaultAddr == "" {
		defaultAddr = "http://localhost:8080"
	}
	rootCmd.PersistentFlags().StringVar(&hostAddr, "addr", defaultAddr, "Address of the drey host (env: DREY_ADDR)")
}
