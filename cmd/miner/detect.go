package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"bab_miner/device"
)

var detectCmd = &cobra.Command{
	Use:   "detect",
	Short: "Find the chips on each bank and print them",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		mgr, err := device.Open(cfg, nil)
		if err != nil {
			return err
		}
		defer mgr.Close()

		n, err := mgr.Dev.Detect()
		if err != nil {
			return err
		}
		fmt.Printf("%d chips\n", n)
		for _, c := range mgr.Dev.Chips {
			fmt.Printf("chip %3d bank %d speed %d spi %d Hz\n", c.Index, c.Bank, c.Fast(), c.SpiHz)
		}
		return nil
	},
}
