package asicio

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bab_miner/device/chip"
)

const (
	workBytes   = 3 + chip.WORK_SIZE
	configBytes = (3 + OSC_BYTES) + 10*(3+4) + (3 + 16) + (3 + 64) + (3 + 32) + (3 + 32)
)

func newChips(n int, bank int) []*chip.Chip {
	chips := make([]*chip.Chip, n)
	for i := range chips {
		chips[i] = chip.New(i, bank, 54)
	}
	return chips
}

func TestBuildPlainWork(t *testing.T) {
	b := newTxBuf()
	chips := newChips(1, 0)
	require.NoError(t, b.build(chips, 0))

	assert.Equal(t, 1+workBytes+1, b.Used)
	assert.Equal(t, CMD_BREAK, b.Write[0])
	assert.Equal(t, uint8(0xF2), b.Write[1])
	assert.Equal(t, uint8(0x30), b.Write[2])
	assert.Equal(t, uint8(0x00), b.Write[3])
	assert.Equal(t, CMD_ASYNC, b.Write[b.Used-1])
	assert.Equal(t, 4, b.ChipOff[0])
	assert.Equal(t, b.Used, b.ChipOff[1])
	assert.Equal(t, b.Used, b.BankOff[0])
	assert.Equal(t, 1, b.Chips)
}

func TestBuildRefreshSendsFullConfig(t *testing.T) {
	b := newTxBuf()
	chips := newChips(2, 0)
	chips[0].RequestRefresh()
	chips[1].RequestRefresh()
	require.NoError(t, b.build(chips, 0))

	// only the fix chip gets the full config, the other one keeps CFGD
	assert.Equal(t, 1+configBytes+workBytes+1+workBytes+1, b.Used)
	assert.Equal(t, 1+configBytes+3, b.ChipOff[0])
	assert.Equal(t, uint8(chip.CONF_DEFAULT), chips[0].Conf)
	assert.Equal(t, uint8(chip.CONF_DEFAULT|chip.CONF_CFGD), chips[1].Conf)

	require.NoError(t, b.build(chips, 1))
	assert.Equal(t, 1+workBytes+1+configBytes+workBytes+1, b.Used)
	assert.Equal(t, uint8(chip.CONF_DEFAULT), chips[1].Conf)
	assert.Equal(t, uint8(chip.CONF_DEFAULT), chips[1].PublishedConf())
}

func TestBuildSpeedDelta(t *testing.T) {
	b := newTxBuf()
	chips := newChips(2, 0)
	chips[1].SetFast(56)
	require.NoError(t, b.build(chips, 0))

	assert.Equal(t, 1+workBytes+1+(3+OSC_BYTES)+workBytes+1, b.Used)
	assert.Equal(t, 56, chips[1].OldFast)

	// asserted, nothing to resend
	require.NoError(t, b.build(chips, 0))
	assert.Equal(t, 1+2*(workBytes+1), b.Used)
}

func TestBuildBankBoundaries(t *testing.T) {
	b := newTxBuf()
	chips := []*chip.Chip{chip.New(0, 1, 54), chip.New(1, 2, 54)}
	require.NoError(t, b.build(chips, 0))

	assert.Equal(t, 1, b.BankOff[0])
	assert.Equal(t, 1+1+workBytes+1, b.BankOff[1])
	assert.Equal(t, b.BankOff[1]+1+3, b.ChipOff[1])
	assert.Equal(t, b.Used, b.BankOff[2])
	assert.Equal(t, CMD_BREAK, b.Write[b.BankOff[1]])
}

func TestBuildOverflowLeavesChipsAlone(t *testing.T) {
	size := 1 + workBytes + 1 + configBytes/2
	b := &TxBuf{Write: make([]byte, size), Read: make([]byte, size)}
	chips := newChips(2, 0)
	chips[0].RequestRefresh()
	chips[1].RequestRefresh()
	chips[1].SetFast(56)

	err := b.build(chips, 1)
	require.ErrorIs(t, err, ErrBufferOverflow)
	for _, c := range chips {
		assert.Equal(t, uint8(chip.CONF_DEFAULT), c.Conf)
		assert.Equal(t, uint8(chip.CONF_DEFAULT), c.OldConf)
		assert.Equal(t, 54, c.OldFast)
	}

	// the refresh requests are still there for the next build
	b = newTxBuf()
	require.NoError(t, b.build(chips, 0))
	assert.Equal(t, 1+configBytes+workBytes+1+(3+OSC_BYTES)+workBytes+1, b.Used)
	assert.Equal(t, uint8(chip.CONF_DEFAULT), chips[0].Conf)
	assert.Equal(t, uint8(chip.CONF_DEFAULT|chip.CONF_CFGD), chips[1].Conf)
	assert.Equal(t, 56, chips[1].OldFast)
}

func TestBuildUnconfiguredChipGetsNoWork(t *testing.T) {
	b := newTxBuf()
	chips := newChips(1, 0)
	chips[0].Conf = 0
	chips[0].OldConf = 0
	require.NoError(t, b.build(chips, 0))

	// osc and clock registers only
	assert.Equal(t, 1+(3+OSC_BYTES)+10*(3+4)+1, b.Used)
}

func TestAddDataSizes(t *testing.T) {
	b := newTxBuf()
	b.addData(ADDR_OSC, []byte{1, 2, 3})
	assert.ErrorIs(t, b.Err(), ErrBadDataSize)

	b.reset()
	b.addData(ADDR_OSC, make([]byte, DATA_MAX+4))
	assert.ErrorIs(t, b.Err(), ErrBadDataSize)

	b.reset()
	b.addData(ADDR_REG+32, []byte{0x01, 0x02, 0x80, 0x00})
	require.NoError(t, b.Err())
	assert.Equal(t, []byte{0xE0, 0x70, 0x20, 0x80, 0x40, 0x01, 0x00}, b.Bytes())
}

func TestAddBufOverflowIsSticky(t *testing.T) {
	b := newTxBuf()
	b.addBuf(make([]byte, MAX_BUF-1))
	require.NoError(t, b.Err())
	b.addBreak()
	assert.ErrorIs(t, b.Err(), ErrBufferOverflow)
	used := b.Used
	b.addAsync()
	assert.Equal(t, used, b.Used)
}

func TestOscCode(t *testing.T) {
	assert.Equal(t, [OSC_BYTES]uint8{0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0x3f, 0}, OscCode(54))
	assert.Equal(t, [OSC_BYTES]uint8{0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0x0f, 0}, OscCode(52))
	assert.Equal(t, [OSC_BYTES]uint8{0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0x01}, OscCode(57))
	assert.Equal(t, [OSC_BYTES]uint8{0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff}, OscCode(64))
	assert.Equal(t, [OSC_BYTES]uint8{}, OscCode(0))
}

func TestExtractReply(t *testing.T) {
	b := newTxBuf()
	chips := newChips(2, 0)
	chips[1].Conf = 0
	chips[1].OldConf = 0
	require.NoError(t, b.build(chips, 0))

	off := b.ChipOff[0]
	b.Read[off] = 0x44
	b.Read[off+1] = 0x33
	b.Read[off+2] = 0x22
	b.Read[off+3] = 0x11
	b.Read[off+64] = 0x01
	require.NoError(t, b.extract(chips))

	assert.Equal(t, uint32(0x11223344), chips[0].Reply.Nonce[0])
	assert.Equal(t, uint32(1), chips[0].Reply.JobSel)
	assert.Equal(t, chip.Reply{}, chips[1].Reply)
}
