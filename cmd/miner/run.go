package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"bab_miner/device"
	"bab_miner/device/temperature"
	"bab_miner/job"
	"bab_miner/log"
	"bab_miner/util"
	"bab_miner/version"
)

var (
	statsEvery time.Duration
	jobLimit   int
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Mine the built-in benchmark work until interrupted",
	RunE:  runCommand,
}

func init() {
	runCmd.Flags().DurationVar(&statsEvery, "stats", time.Minute, "Interval of the stats report, 0 disables it")
	runCmd.Flags().IntVar(&jobLimit, "jobs", -1, "Stop handing out work after this many jobs, overrides [work] limit")
}

func printStats(s device.Stats) {
	log.Infof("%s%d %s up %.0fs: tested %d untested %d ignored %d below target %d hw %d, offsets %s, avg tests %.2f avg links %.2f",
		s.Name, s.ID, s.Status, s.Uptime, s.Tested, s.Untested, s.InitialIgnored, s.BelowTarget, s.HWErrors,
		s.OffsetLine(), s.AvgTests, s.AvgLinks)
	log.Infof("Work pool %d/%d free, %d pending, %d grows; results %d queued; transfers %d errors %d",
		s.Work.Free, s.Work.Total, s.Work.Pending, s.Work.Grows, s.Results.Queued, s.Transfers, s.TxErrors)
	for _, l := range s.ChipLines() {
		log.Debugf("%s", l)
	}
	for _, r := range s.Temps {
		log.Infof("Board %d: %.1fC core %.3fV/%.3fV", r.Slot, r.Temp, r.Core0, r.Core1)
	}
	if s.TempTooHigh {
		log.Warnf("%s%d: board temperature at or above %dC", s.Name, s.ID, temperature.HIGH_TEMP)
	}
}

func runCommand(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if jobLimit >= 0 {
		cfg.Work.Limit = jobLimit
	}
	log.Infof("=============== %s start ===============", version.GetVersionConfig())

	src, err := job.NewBenchSource(cfg.Work.Template, cfg.Work.Difficulty, cfg.Work.Limit)
	if err != nil {
		return fmt.Errorf("work source: %w", err)
	}
	mgr, err := device.Open(cfg, src)
	if err != nil {
		return err
	}
	defer mgr.Close()

	if _, err := mgr.Dev.Detect(); err != nil {
		return fmt.Errorf("detect: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := mgr.Start(ctx); err != nil {
		return err
	}

	if statsEvery > 0 {
		go func() {
			ticker := time.NewTicker(statsEvery)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					printStats(mgr.Dev.Stats())
					r5s, r1m, r15m := src.HashRates()
					log.Infof("Shares %d accepted %d duplicate, %.2f/%.2f/%.2f GH/s", src.Accepted.Load(), src.Duplicates.Load(), r5s, r1m, r15m)
				}
			}
		}()
	}

	<-ctx.Done()
	err = mgr.Stop()
	printStats(mgr.Dev.Stats())
	log.Infof("=============== %s stop after %s ===============", version.Agent, util.UptimeInString())
	return err
}
