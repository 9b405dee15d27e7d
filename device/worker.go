package device

import (
	"context"

	"bab_miner/device/chip"
	"bab_miner/job"
	"bab_miner/log"
	"bab_miner/util"
)

// ResultLoop drains the result pool oldest first until ctx ends.
func (my *Device) ResultLoop(ctx context.Context) error {
	log.Debugf("%s%d: Results...", my.Name, my.ID)
	for ctx.Err() == nil {
		r, ok := my.Results.PopOldest()
		if !ok {
			util.SleepCtx(ctx, my.timing.ResultSleep)
			continue
		}
		my.checkNonce(r)
	}
	return nil
}

// checkNonce looks for the job a raw nonce belongs to among the jobs still
// on the chip, newest first, trying each nonce offset per job. A match
// retires that job's older siblings; a miss is a hardware error once the
// chip is known to reply properly.
func (my *Device) checkNonce(r ResultRecord) bool {
	c, err := my.chip(r.Chip)
	if err != nil {
		log.Errorf("%s%d: result for %v", my.Name, my.ID, err)
		return false
	}
	if r.AfterFirstReply {
		c.MarkReplied()
	}
	c.CountNonce()
	nonce := chip.DecodeNonce(r.Nonce)

	chain := my.Work.Chain(r.Chip)
	if len(chain) == 0 {
		log.Errorf("%s%d: chip %d has no work!", my.Name, my.ID, r.Chip)
		my.cnt.untested.Add(1)
		return false
	}
	my.cnt.tested.Add(1)

	tests := uint64(0)
	for links, e := range chain {
		if e.Job == nil {
			log.Errorf("%s%d: chip %d links %d has no work!", my.Name, my.ID, r.Chip, links)
			continue
		}
		for i, off := range chip.NonceOffsets {
			tests++
			n := nonce + uint32(off)
			res, _ := e.Job.TestNonce(n)
			if res == job.NONCE_BAD {
				continue
			}
			if res == job.NONCE_SHARE {
				my.fw.ReportVerifiedShare(e.Job, n)
			} else {
				my.cnt.belowTarget.Add(1)
			}
			my.cnt.offsets[i].Add(1)
			c.Good.Add(1)
			my.cnt.newNonces.Add(1)
			if err := my.Work.CountNonce(e.Handle); err != nil {
				log.Debugf("%s%d: chip %d job %s already gone: %v", my.Name, my.ID, r.Chip, e.Job.JobID, err)
			} else if _, err := my.Work.RetireFrom(r.Chip, e.Handle); err != nil {
				log.Debugf("%s%d: chip %d retire %v: %v", my.Name, my.ID, r.Chip, e.Handle, err)
			}
			my.cnt.totalTests.Add(tests)
			storeMax(&my.cnt.maxTests, tests)
			my.cnt.totalLinks.Add(uint64(links))
			storeMax(&my.cnt.maxLinks, uint64(links))
			return true
		}
	}

	if c.HasReplied() {
		c.Bad.Add(1)
		my.cnt.hwErrors.Add(1)
		my.fw.ReportHardwareError(r.Chip)
	} else {
		my.cnt.initialIgnored.Add(1)
	}
	return false
}
