package main

import (
	"fmt"
	"os"

	"github.com/hephy-dd/pqc/internal/cli"
	"github.com/spf13/cobra"
)

// calibrateCmd represents the calibrate command
var calibrateCmd = &cobra.Command{
	Use:   "calibrate",
	Short: "Calibrate the probe table axes",
	Long: `Runs the full table calibration sequence: each axis is driven onto its
limit switches to find its origin and measure its range. The table finishes
at position (0, 0, 0).`,
	Run: func(cmd *cobra.Command, args []string) {
		logLevel, _ := cmd.Flags().GetString("log-level")
		table, _ := cmd.Flags().GetString("table")
		tableBaud, _ := cmd.Flags().GetInt("table-baud")

		if table == "" {
			fmt.Println("Error: --table is required")
			os.Exit(1)
		}
		err := cli.Calibrate(cmd.Context(), cli.CalibrateOptions{
			TableDevice: table,
			TableBaud:   tableBaud,
			LogLevel:    logLevel,
		})
		if err != nil {
			fmt.Printf("Error: %v\n", err)
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(calibrateCmd)
}
