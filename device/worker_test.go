package device

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bab_miner/config"
	"bab_miner/device/chip"
)

func TestCheckNonceCleanMatch(t *testing.T) {
	dev, fw, _ := newTestDevice(t, 3, nil)
	assign(t, dev, 2, testJob(t, "G", 0))

	dev.Results.Push(2, chip.EncodeNonce(genesisNonce), true)
	r, ok := dev.Results.PopOldest()
	require.True(t, ok)
	assert.True(t, dev.checkNonce(r))

	assert.Equal(t, []share{{JobID: "G", Nonce: genesisNonce}}, fw.shares)
	assert.Equal(t, []string{"G"}, fw.Completed())
	assert.Empty(t, dev.Work.Chain(2))
	assert.Equal(t, uint64(1), dev.Chips[2].Good.Load())
	assert.Equal(t, uint64(1), dev.Chips[2].Nonces.Load())
	assert.True(t, dev.Chips[2].HasReplied())

	s := dev.Stats()
	assert.Equal(t, []uint64{0, 1, 0}, s.OffsetCounts)
	assert.Equal(t, uint64(1), s.Tested)
	assert.Equal(t, uint64(2), s.TotalTests)
	assert.Equal(t, uint64(0), s.TotalLinks)
	assert.Empty(t, fw.hw)
}

func TestCheckNonceOffset(t *testing.T) {
	dev, fw, _ := newTestDevice(t, 1, nil)
	assign(t, dev, 0, testJob(t, "G", 0))

	ok := dev.checkNonce(ResultRecord{Chip: 0, Nonce: chip.EncodeNonce(genesisNonce + 0x400000), AfterFirstReply: true})
	require.True(t, ok)
	assert.Equal(t, []share{{JobID: "G", Nonce: genesisNonce}}, fw.shares)
	assert.Equal(t, []uint64{0, 0, 1}, dev.Stats().OffsetCounts)
	assert.Equal(t, uint64(3), dev.Stats().MaxTests)
}

func TestCheckNoncePrunesStale(t *testing.T) {
	dev, fw, _ := newTestDevice(t, 1, nil)
	assign(t, dev, 0, testJob(t, "J1", 1))
	assign(t, dev, 0, testJob(t, "J2", 0))
	assign(t, dev, 0, testJob(t, "J3", 2))

	require.True(t, dev.checkNonce(ResultRecord{Chip: 0, Nonce: chip.EncodeNonce(genesisNonce), AfterFirstReply: true}))
	assert.Equal(t, []string{"J3"}, chainIDs(dev, 0))
	assert.Equal(t, []string{"J2", "J1"}, fw.Completed())
	assert.Equal(t, uint64(1), dev.Stats().MaxLinks)
	assert.Equal(t, uint64(5), dev.Stats().TotalTests)
}

func TestCheckNonceRetainMatched(t *testing.T) {
	dev, fw, _ := newTestDevice(t, 1, func(c *config.MinerConfig) {
		c.Pool.RetainMatched = true
	})
	assign(t, dev, 0, testJob(t, "J1", 1))
	assign(t, dev, 0, testJob(t, "J2", 0))
	assign(t, dev, 0, testJob(t, "J3", 2))

	require.True(t, dev.checkNonce(ResultRecord{Chip: 0, Nonce: chip.EncodeNonce(genesisNonce), AfterFirstReply: true}))
	assert.Equal(t, []string{"J3", "J2"}, chainIDs(dev, 0))
	assert.Equal(t, []string{"J1"}, fw.Completed())
	assert.Equal(t, 1, dev.Work.Chain(0)[1].Nonces)
}

func TestCheckNonceStartupNoise(t *testing.T) {
	dev, fw, _ := newTestDevice(t, 2, nil)
	assign(t, dev, 1, testJob(t, "J1", 1))
	junk := chip.EncodeNonce(0x12345678)

	assert.False(t, dev.checkNonce(ResultRecord{Chip: 1, Nonce: junk}))
	assert.Empty(t, fw.hw)
	assert.Equal(t, uint64(1), dev.Stats().InitialIgnored)
	assert.Equal(t, uint64(0), dev.Chips[1].Bad.Load())

	assert.False(t, dev.checkNonce(ResultRecord{Chip: 1, Nonce: junk, AfterFirstReply: true}))
	assert.Equal(t, []int{1}, fw.hw)
	assert.Equal(t, uint64(1), dev.Chips[1].Bad.Load())
	assert.Equal(t, uint64(1), dev.Stats().HWErrors)
	assert.Equal(t, []string{"J1"}, chainIDs(dev, 1))
}

func TestCheckNonceUntested(t *testing.T) {
	dev, fw, _ := newTestDevice(t, 1, nil)

	assert.False(t, dev.checkNonce(ResultRecord{Chip: 0, Nonce: chip.EncodeNonce(genesisNonce), AfterFirstReply: true}))
	assert.Equal(t, uint64(1), dev.Stats().Untested)
	assert.Equal(t, uint64(0), dev.Stats().Tested)
	assert.Empty(t, fw.hw)
	assert.False(t, dev.checkNonce(ResultRecord{Chip: 9, Nonce: 1}))
}

func TestCheckNonceBelowTarget(t *testing.T) {
	dev, fw, _ := newTestDevice(t, 1, nil)
	j := testJob(t, "G", 0)
	// far beyond what the genesis hash meets
	j.Target.Rsh(j.Target, 64)
	assign(t, dev, 0, j)

	require.True(t, dev.checkNonce(ResultRecord{Chip: 0, Nonce: chip.EncodeNonce(genesisNonce), AfterFirstReply: true}))
	assert.Empty(t, fw.shares)
	assert.Equal(t, uint64(1), dev.Stats().BelowTarget)
	assert.Equal(t, uint64(1), dev.Chips[0].Good.Load())
}

func TestScanWorkHashCount(t *testing.T) {
	dev, _, _ := newTestDevice(t, 1, nil)
	assign(t, dev, 0, testJob(t, "G", 0))
	require.True(t, dev.checkNonce(ResultRecord{Chip: 0, Nonce: chip.EncodeNonce(genesisNonce), AfterFirstReply: true}))

	assert.Equal(t, int64(0xffffffff), dev.ScanWork(testContext(t)))
	assert.Equal(t, int64(0), dev.ScanWork(testContext(t)))
}
