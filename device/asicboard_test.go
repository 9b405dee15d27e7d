package device

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bab_miner/block"
	"bab_miner/device/chip"
)

func testContext(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func drain(dev *Device) []ResultRecord {
	var out []ResultRecord
	for {
		r, ok := dev.Results.PopOldest()
		if !ok {
			return out
		}
		out = append(out, r)
	}
}

func emptyReply() chip.Reply {
	var r chip.Reply
	for i := range r.Nonce {
		r.Nonce[i] = chip.NONCE_EMPTY
	}
	r.JobSel = chip.NONCE_EMPTY
	return r
}

func TestDiffRepliesNewNonces(t *testing.T) {
	dev, _, _ := newTestDevice(t, 1, nil)
	c := dev.Chips[0]

	c.Reply = emptyReply()
	c.Reply.Nonce[0] = 0xaaaa
	c.Reply.Nonce[1] = 0xbbbb
	s := dev.diffReplies()
	assert.Equal(t, 1, s.pushed)
	assert.Equal(t, 1, c.Busy)
	assert.True(t, c.NonceBefore)
	assert.Equal(t, []ResultRecord{{Chip: 0, Nonce: 0xaaaa}}, drain(dev))

	// the chip moved on to slot 2, slot 1 is complete
	c.Reply = c.Prev
	c.Reply.Nonce[2] = 0xcccc
	dev.diffReplies()
	assert.Equal(t, 2, c.Busy)
	assert.Equal(t, []ResultRecord{{Chip: 0, Nonce: 0xbbbb, AfterFirstReply: true}}, drain(dev))

	// nothing new
	c.Reply = c.Prev
	s = dev.diffReplies()
	assert.Equal(t, 0, s.pushed)
	assert.Equal(t, 2, c.Busy)
	assert.Empty(t, drain(dev))
}

func TestDiffRepliesWraps(t *testing.T) {
	dev, _, _ := newTestDevice(t, 1, nil)
	c := dev.Chips[0]
	c.Busy = 15
	c.Reply = emptyReply()
	c.Reply.Nonce[15] = 0x1515
	c.Reply.Nonce[0] = 0x1600
	c.Reply.Nonce[1] = 0x1601

	dev.diffReplies()
	assert.Equal(t, 1, c.Busy)
	assert.Equal(t, []ResultRecord{{Chip: 0, Nonce: 0x1515}, {Chip: 0, Nonce: 0x1600}}, drain(dev))
}

func TestDiffRepliesMiso(t *testing.T) {
	dev, _, _ := newTestDevice(t, 1, nil)
	c := dev.Chips[0]

	fill := func(v uint32) {
		for i := range c.Reply.Nonce {
			c.Reply.Nonce[i] = v
		}
	}
	fill(0x12345678)
	s := dev.diffReplies()
	assert.Equal(t, 1, s.miso)
	assert.True(t, c.Miso)
	fill(0x87654321)
	dev.diffReplies()
	assert.Equal(t, uint64(1), c.MisoCount.Load())
	assert.Empty(t, drain(dev))
	assert.Equal(t, 0, c.Busy)

	// a sane reply ends the streak
	c.Reply = c.Prev
	dev.diffReplies()
	assert.False(t, c.Miso)
	fill(0x11111111)
	dev.diffReplies()
	assert.Equal(t, uint64(2), c.MisoCount.Load())
}

func TestDiffRepliesIdleLine(t *testing.T) {
	dev, _, _ := newTestDevice(t, 1, nil)
	c := dev.Chips[0]

	c.Reply = emptyReply()
	s := dev.diffReplies()
	assert.Equal(t, 0, s.miso)
	assert.False(t, c.Miso)

	c.Reply = emptyReply()
	s = dev.diffReplies()
	assert.Equal(t, 1, s.miso)
	assert.True(t, c.Miso)

	c.Reply = emptyReply()
	s = dev.diffReplies()
	assert.Equal(t, 0, s.miso)
	assert.True(t, c.Miso)
	assert.Equal(t, uint64(1), c.MisoCount.Load())

	// a new nonce ends the streak
	c.Reply = emptyReply()
	c.Reply.Nonce[0] = 0xabcd
	c.Reply.Nonce[1] = 0xbcde
	dev.diffReplies()
	assert.False(t, c.Miso)
	assert.Zero(t, c.IdlePolls)
	assert.Equal(t, []ResultRecord{{Chip: 0, Nonce: 0xabcd}}, drain(dev))

	c.Reply = c.Prev
	dev.diffReplies()
	assert.False(t, c.Miso)
	c.Reply = c.Prev
	dev.diffReplies()
	assert.True(t, c.Miso)
	assert.Equal(t, uint64(2), c.MisoCount.Load())
}

func TestDiffRepliesFramingError(t *testing.T) {
	dev, _, _ := newTestDevice(t, 2, nil)
	dev.Chips[0].Reply = emptyReply()
	dev.Chips[0].Reply.JobSel = 0x00c0ffee
	dev.Chips[1].Reply = emptyReply()
	dev.Chips[1].Reply.JobSel = 0

	s := dev.diffReplies()
	assert.Equal(t, 1, s.framing)
	assert.Equal(t, uint64(1), dev.Chips[0].FramingErrors.Load())
	assert.Equal(t, uint64(0), dev.Chips[1].FramingErrors.Load())
}

func TestDiffRepliesEmptySlots(t *testing.T) {
	dev, _, _ := newTestDevice(t, 1, nil)
	c := dev.Chips[0]
	c.Reply = emptyReply()
	c.Reply.Nonce[0] = chip.NONCE_ZEROED
	c.Reply.Nonce[1] = chip.NONCE_ZEROED
	c.Reply.Nonce[2] = 0x2222

	s := dev.diffReplies()
	assert.Equal(t, 0, s.pushed)
	assert.Equal(t, 2, s.patched)
	assert.Equal(t, 2, c.Busy)
	assert.False(t, c.NonceBefore)
	assert.Equal(t, uint32(chip.NONCE_EMPTY), c.Prev.Nonce[0])
	assert.Equal(t, uint32(chip.NONCE_EMPTY), c.Prev.Nonce[1])
	assert.Empty(t, drain(dev))
}

func TestDiffRepliesSkipsUnconfigured(t *testing.T) {
	dev, _, _ := newTestDevice(t, 1, nil)
	c := dev.Chips[0]
	c.Conf = 0
	c.Reply = emptyReply()
	c.Reply.Nonce[0] = 1
	c.Reply.Nonce[1] = 2
	dev.diffReplies()
	assert.Empty(t, drain(dev))
}

func TestFillInput(t *testing.T) {
	j := testJob(t, "G", 0)
	var in chip.WorkSend
	fillInput(&in, j)

	tail := j.Tail()
	assert.Equal(t, j.Midstate(), in.Midstate)
	assert.Equal(t, block.MS3Steps(j.Midstate(), tail), in.MS3Steps)
	assert.Equal(t, tail[0], in.Merkle7)
	assert.Equal(t, tail[1], in.NTime)
	assert.Equal(t, tail[2], in.Bits)
	assert.Equal(t, uint32(0xffff001d), in.Bits)
}

func TestDoWorkShortWorkList(t *testing.T) {
	dev, _, _ := newTestDevice(t, 2, nil)
	_, err := dev.Work.AllocJobSlot(testJob(t, "J1", 1))
	require.NoError(t, err)

	assert.False(t, dev.doWork())
	c := dev.Work.Counts()
	assert.Equal(t, 1, c.Pending)
	assert.Equal(t, []int{0, 0}, c.PerChip)
}

func TestDoWorkCycle(t *testing.T) {
	dev, fw, _ := newTestDevice(t, 1, nil)
	fw.queue = testJobs(t, 2)

	require.False(t, dev.QueueFull())
	// built, nothing on the wire yet
	assert.False(t, dev.doWork())
	assert.Equal(t, []string{"J1"}, chainIDs(dev, 0))

	sent, err := dev.Pipe.Transmit()
	require.True(t, sent)
	require.NoError(t, err)
	assert.False(t, dev.Pipe.LastDid().IsZero())

	require.False(t, dev.QueueFull())
	assert.True(t, dev.doWork())
	assert.Equal(t, []string{"J2", "J1"}, chainIDs(dev, 0))
	assert.Equal(t, uint64(1), dev.Stats().Cycles)
}
