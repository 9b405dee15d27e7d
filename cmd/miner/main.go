package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"bab_miner/config"
	"bab_miner/log"
)

var (
	logLevel   string
	configFile string
	jsonLog    bool
)

var rootCmd = &cobra.Command{
	Use:   "miner",
	Short: "Driver for BaB SHA-256d chip chains",
	Long:  "Detects the chips of a BaB board chain, feeds them work over SPI and verifies the nonces they return.",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		log.SetOutput(os.Stderr, !jsonLog)
		if err := log.SetLevel(logLevel); err != nil {
			fmt.Fprintf(os.Stderr, "Invalid log level '%s', using 'info'\n", logLevel)
			_ = log.SetLevel("info")
		}
	},
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Set log level (trace, debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "TOML configuration file, defaults when empty")
	rootCmd.PersistentFlags().BoolVar(&jsonLog, "json-log", false, "Log one JSON object per line")
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(detectCmd)
	rootCmd.AddCommand(monitorCmd)
}

func loadConfig() (config.MinerConfig, error) {
	if configFile == "" {
		cfg := config.Default()
		return cfg, cfg.Validate()
	}
	return config.Load(configFile)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
