// Package cmd provides the command-line interface for locktel.
package cmd

import (
	"github.com/spf13/cobra"
	"github.com/tebeka/atexit"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "locktel",
	Short: "locktel measures how long actors hold a shared lock.",
	Long: `locktel runs a periodic producer, a pool of workers and an ` +
		`interrupt line against one lock-protected state and reports the ` +
		`critical section latency and lock failures of each of them.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags
// appropriately.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		atexit.Exit(1)
	}

	atexit.Exit(0)
}
