package main

import (
	"fmt"
	"os"

	"github.com/hephy-dd/pqc/internal/cli"
	"github.com/spf13/cobra"
)

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run <sequence file>",
	Short: "Run a measurement sequence",
	Long: `Loads the sequence definition, moves the table to each enabled contact
and runs its measurements. Results are written as JSON lines and optionally
published to a Redis stream.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		logLevel, _ := cmd.Flags().GetString("log-level")
		table, _ := cmd.Flags().GetString("table")
		tableBaud, _ := cmd.Flags().GetInt("table-baud")
		hvsrc, _ := cmd.Flags().GetString("hvsrc")
		vsrc, _ := cmd.Flags().GetString("vsrc")
		output, _ := cmd.Flags().GetString("output")
		redisAddr, _ := cmd.Flags().GetString("redis")
		monitorAddr, _ := cmd.Flags().GetString("monitor")
		retryContact, _ := cmd.Flags().GetInt("retry-contact")
		retryMeasurement, _ := cmd.Flags().GetInt("retry-measurement")
		noMove, _ := cmd.Flags().GetBool("no-move")
		contactDelay, _ := cmd.Flags().GetFloat64("contact-delay")
		afterPosition, _ := cmd.Flags().GetFloat64Slice("after-position")

		err := cli.Run(cmd.Context(), cli.RunOptions{
			SequencePath:          args[0],
			LogLevel:              logLevel,
			HVSourceAddr:          hvsrc,
			VSourceAddr:           vsrc,
			TableDevice:           table,
			TableBaud:             tableBaud,
			OutputPath:            output,
			RedisAddr:             redisAddr,
			MonitorAddr:           monitorAddr,
			RetryContactCount:     retryContact,
			RetryMeasurementCount: retryMeasurement,
			NoMove:                noMove,
			ContactDelay:          contactDelay,
			MoveToAfterPosition:   afterPosition,
		})
		if err != nil {
			fmt.Printf("Error: %v\n", err)
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().String("hvsrc", "", "Address of the high voltage source (host:port)")
	runCmd.Flags().String("vsrc", "", "Address of the bias voltage source (host:port)")
	runCmd.Flags().StringP("output", "o", "results.jsonl", "Result output file (JSON lines)")
	runCmd.Flags().String("redis", "", "Redis address to publish result records to")
	runCmd.Flags().String("monitor", "", "Listen address of the monitoring HTTP server")
	runCmd.Flags().Int("retry-contact", 0, "Number of contact re-moves after a failed attempt")
	runCmd.Flags().Int("retry-measurement", 0, "Number of measurement retries per contact attempt")
	runCmd.Flags().Bool("no-move", false, "Skip all table moves")
	runCmd.Flags().Float64("contact-delay", 0, "Settle time in seconds after each touch-down")
	runCmd.Flags().Float64Slice("after-position", nil, "Table position in mm to move to after the run (x,y,z)")
}
