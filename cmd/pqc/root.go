package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "pqc",
	Short: "pqc runs electrical sensor characterization sequences on a wafer prober",
	Long: `pqc orchestrates process quality control measurements: it loads a
sequence definition, moves the probe table from contact to contact and runs
the configured measurements against the station's instruments.`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	// Persistent flags (available to all commands)
	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("table", "", "Serial device of the table controller, e.g. /dev/ttyUSB0")
	rootCmd.PersistentFlags().Int("table-baud", 57600, "Baud rate of the table controller")
}
