package main

import (
	"fmt"
	"strings"

	"github.com/hephy-dd/pqc"
	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of pqc",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("pqc version %s\n", strings.TrimSpace(pqc.Version))
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
