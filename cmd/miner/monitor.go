package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"

	"bab_miner/device/smbus"
	"bab_miner/device/temperature"
)

var watch bool

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Read the board controllers' temperatures and core voltages",
	RunE:  monitorCommand,
}

func init() {
	monitorCmd.Flags().BoolVarP(&watch, "watch", "w", false, "Keep polling on the configured interval")
}

func printReadings(rs []temperature.Reading) {
	for _, r := range rs {
		if r.Err != nil {
			fmt.Printf("slot %2d: %v\n", r.Slot, r.Err)
			continue
		}
		fmt.Printf("slot %2d: %6.1f C  core0 %.3f V  core1 %.3f V\n", r.Slot, r.Temp, r.Core0, r.Core1)
	}
}

func monitorCommand(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	bus, err := smbus.New(cfg.Monitor.Bus)
	if err != nil {
		return fmt.Errorf("%s: %w", cfg.Monitor.Bus, err)
	}
	defer bus.Close()

	mon := temperature.NewMonitor(bus, cfg.Monitor.Slots, cfg.Monitor.Interval.Duration)
	if len(mon.Slots()) == 0 && len(mon.Detect()) == 0 {
		return fmt.Errorf("no board controller on %s", cfg.Monitor.Bus)
	}
	printReadings(mon.Poll())
	if !watch {
		return nil
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	interval := cfg.Monitor.Interval.Duration
	if interval <= 0 {
		interval = temperature.MONITOR_INTERVAL
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			printReadings(mon.Poll())
		}
	}
}
