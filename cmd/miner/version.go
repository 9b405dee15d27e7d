package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"bab_miner/version"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version of the miner",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(version.GetVersionConfig())
	},
}
