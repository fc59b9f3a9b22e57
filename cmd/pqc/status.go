package main

import (
	"fmt"
	"os"

	"github.com/hephy-dd/pqc/internal/cli"
	"github.com/spf13/cobra"
)

// statusCmd represents the status command
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the probe table status",
	Long:  `Queries the table controller for its identification, position and calibration state.`,
	Run: func(cmd *cobra.Command, args []string) {
		logLevel, _ := cmd.Flags().GetString("log-level")
		table, _ := cmd.Flags().GetString("table")
		tableBaud, _ := cmd.Flags().GetInt("table-baud")

		if table == "" {
			fmt.Println("Error: --table is required")
			os.Exit(1)
		}
		err := cli.Status(cmd.Context(), cli.StatusOptions{
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
	rootCmd.AddCommand(statusCmd)
}
