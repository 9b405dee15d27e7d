package asicio

import (
	"bab_miner/device/chip"
)

type commit struct {
	c    *chip.Chip
	fast int
	conf uint8

	oldConf   uint8
	refreshed bool
}

// build lays out one transaction for chips into b. Chip configuration is
// only committed when the whole buffer was encoded, otherwise every chip is
// left as it was, refresh requests included.
func (b *TxBuf) build(chips []*chip.Chip, fixchip int) error {
	b.reset()
	commits := make([]commit, 0, len(chips))

	bank := 0
	b.addBreak()
	for i, c := range chips {
		if c.Bank != bank {
			b.BankOff[bank] = b.Used
			bank = c.Bank
			b.addBreak()
		}

		oldConf := c.Conf
		refreshed := c.TakeRefresh()
		fast := c.Fast()
		conf := c.Conf
		if i == fixchip && (conf&chip.CONF_CFGD != 0 || conf == 0) {
			b.setOsc(fast)
			b.clockRegs(conf)
			if conf != 0 {
				b.hashCore()
				conf ^= chip.CONF_CFGD
			}
		} else {
			if c.OldFast != fast {
				b.setOsc(fast)
			}
			if c.OldConf != conf {
				b.clockRegDeltas(c.OldConf, conf)
			}
		}
		commits = append(commits, commit{c: c, fast: fast, conf: conf, oldConf: oldConf, refreshed: refreshed})

		b.ChipOff[i] = b.Used + 3
		if conf != 0 {
			b.addWork(&c.Input)
		}
		b.addAsync()
	}
	b.ChipOff[len(chips)] = b.Used
	b.BankOff[bank] = b.Used
	b.Chips = len(chips)

	if b.err != nil {
		for _, m := range commits {
			m.c.Conf = m.oldConf
			if m.refreshed {
				m.c.RequestRefresh()
			}
		}
		return b.err
	}
	for _, m := range commits {
		m.c.Commit(m.fast, m.conf)
	}
	return nil
}

// extract copies each configured chip's reply out of the read side.
func (b *TxBuf) extract(chips []*chip.Chip) error {
	for i, c := range chips {
		if i >= b.Chips {
			break
		}
		if c.Conf&0x7f == 0 {
			continue
		}
		off := b.ChipOff[i]
		if err := UnpackReply(b.Read[off:], &c.Reply); err != nil {
			return err
		}
	}
	return nil
}

// buildDetectStep configures chips first..i and sends the test work to chip
// i, which is the only one not yet passing the stream through.
func (b *TxBuf) buildDetectStep(c *chip.Chip, prev []int) {
	b.reset()
	b.addBreak()
	for _, j := range prev {
		b.ChipOff[j] = b.Used + 3
		b.addAsync()
	}
	b.setOsc(c.Fast())
	b.clockRegs(c.Conf)
	b.hashCore()
	b.ChipOff[c.Index] = b.Used + 3
	b.addWork(&testWork)
	b.ChipOff[c.Index+1] = b.Used
	b.BankOff[c.Bank] = b.Used
	b.Chips = c.Index + 1
}

// buildDetectAll sends the test work to chips first..last-1.
func (b *TxBuf) buildDetectAll(bank int, first int, last int) {
	b.reset()
	b.addBreak()
	i := first
	for ; i < last; i++ {
		b.ChipOff[i] = b.Used + 3
		b.addWork(&testWork)
		b.addAsync()
	}
	b.ChipOff[i] = b.Used
	b.BankOff[bank] = b.Used
	b.Chips = i
}
