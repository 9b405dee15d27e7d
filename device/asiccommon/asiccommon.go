package asiccommon

import (
	"context"

	"bab_miner/device/temperature"
	"bab_miner/job"
)

// Framework is the mining framework a device pulls jobs from and reports to.
// Implementations must be safe for use from several goroutines.
type Framework interface {
	// GetNextJob returns job.ErrNoJob when nothing is queued.
	GetNextJob() (*job.Job, error)
	ReportJobComplete(j *job.Job)
	ReportVerifiedShare(j *job.Job, nonce uint32)
	ReportHardwareError(chip int)
}

// BoardMonitor is the optional board controller of a device.
type BoardMonitor interface {
	Run(ctx context.Context) error
	Snapshot() []temperature.Reading
	TempTooHigh() bool
}
