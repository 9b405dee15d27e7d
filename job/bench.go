package job

import (
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"bab_miner/block"
	"bab_miner/log"
	"bab_miner/util"
)

// GenesisHeaderHex is the bitcoin genesis block header, the default template
// of the benchmark source.
const GenesisHeaderHex = "01000000" +
	"0000000000000000000000000000000000000000000000000000000000000000" +
	"3ba3edfd7a7b12b27ac72c3e67768f617fc81bc3888a51323a9fb8aa4b1e5e4a" +
	"29ab5f49" + "ffff001d" + "1dac2b7c"

var ErrNoJob = errors.New("ErrNoJob")

// BenchSource hands out jobs rolled from a header template and keeps the
// books on what the device reports back. It stands in for a pool connection.
type BenchSource struct {
	template block.BlockHeader
	diff     float64
	batch    int
	limit    int

	mx     sync.Mutex
	serial uint32
	q      JobQ
	shares Share
	stats  *PoolStats

	Completed  atomic.Uint64
	Accepted   atomic.Uint64
	Duplicates atomic.Uint64
	HWErrors   atomic.Uint64
	chipErrors sync.Map // int -> *atomic.Uint64
}

// NewBenchSource parses templateHex (empty means the genesis header). limit
// caps the number of jobs handed out, 0 means unlimited. A diff of 0 takes
// the difficulty from the template's nbits.
func NewBenchSource(templateHex string, diff float64, limit int) (*BenchSource, error) {
	if templateHex == "" {
		templateHex = GenesisHeaderHex
	}
	raw, err := hex.DecodeString(templateHex)
	if err != nil {
		return nil, fmt.Errorf("template: %w", block.ErrBadHex)
	}
	bh, err := block.Byte2BlockHeader(raw)
	if err != nil {
		return nil, err
	}
	// 0 mines at the template's own network difficulty
	if diff <= 0 {
		diff = block.NBitsToDifficulty(bh.NBits)
		log.Infof("Bench difficulty from nbits %08x: %.0f", bh.NBits, diff)
	}
	s := &BenchSource{
		diff:  diff,
		batch: 16,
		limit: limit,
		stats: NewPoolStats(),
	}
	s.template = *bh
	s.shares.Init()
	return s, nil
}

// refill rolls ntime to give each job a distinct header.
func (my *BenchSource) refill() error {
	for i := 0; i < my.batch; i++ {
		if my.limit > 0 && my.q.Created >= my.limit {
			break
		}
		bh := my.template
		bh.Time += my.serial
		j, err := NewJob(fmt.Sprintf("bench-%d", my.serial), block.BlockHeader2Byte(bh), my.diff)
		if err != nil {
			return err
		}
		my.serial++
		my.q.Enqueue(j)
	}
	return nil
}

func (my *BenchSource) GetNextJob() (*Job, error) {
	my.mx.Lock()
	defer my.mx.Unlock()

	if my.q.Len() == 0 {
		if err := my.refill(); err != nil {
			return nil, err
		}
	}
	j, err := my.q.Dequeue()
	if err != nil {
		return nil, ErrNoJob
	}
	return j, nil
}

func (my *BenchSource) ReportJobComplete(j *Job) {
	my.Completed.Add(1)
	log.Debugf("Job %s complete after %.3fs", j.JobID, util.NowInSec()-j.NotifyJobTS)
}

func (my *BenchSource) ReportVerifiedShare(j *Job, nonce uint32) {
	r := NewJobResult(j, nonce)
	r.TS = float64(time.Now().UnixMicro()) / 1000000.0
	if my.shares.Add(r) {
		my.Duplicates.Add(1)
		return
	}
	my.Accepted.Add(1)
	diff := uint64(j.Diff)
	if diff == 0 {
		diff = 1
	}
	my.stats.UpdateHashRate(DataPoint{Timestamp: time.Now(), Value: diff})
	log.Infof("Share job %s nonce %08x diff %d hash %s", j.JobID, nonce, r.DiffSubmit, r.BlockHeaderHashBEStr())
}

func (my *BenchSource) ReportHardwareError(chip int) {
	my.HWErrors.Add(1)
	v, _ := my.chipErrors.LoadOrStore(chip, &atomic.Uint64{})
	v.(*atomic.Uint64).Add(1)
}

// ChipErrors returns the hardware errors reported for one chip.
func (my *BenchSource) ChipErrors(chip int) uint64 {
	v, ok := my.chipErrors.Load(chip)
	if !ok {
		return 0
	}
	return v.(*atomic.Uint64).Load()
}

// HashRates returns the 5s, 1m and 15m share rates in GH/s.
func (my *BenchSource) HashRates() (float64, float64, float64) {
	my.shares.RemoveStale()
	return my.stats.Rates(time.Now())
}
