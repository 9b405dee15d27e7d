package asicio

import (
	"errors"

	"bab_miner/device/chip"
)

// Bus stream markers
const (
	CMD_BREAK uint8 = 0x04 // stop feeding the stream to the chips downstream
	CMD_ASYNC uint8 = 0x05 // pass the rest of the stream one chip further
	CMD_SYNC  uint8 = 0x06
	CMD_WRITE uint8 = 0xE0 // | (words - 1), followed by addr hi, addr lo
)

// Chip register addresses
const (
	ADDR_COUNT uint16 = 0x0100
	ADDR_W1A   uint16 = 0x1000
	ADDR_W1B   uint16 = 0x1400
	ADDR_W2    uint16 = 0x1900
	ADDR_INP   uint16 = 0x3000
	ADDR_OSC   uint16 = 0x6000
	ADDR_REG   uint16 = 0x7000 // + reg * 32
)

// Clock control registers
const (
	REG_AUTO = 0
	REG_ICLK = 1
	REG_FAST = 2
	REG_DIV2 = 3
	REG_SLOW = 4
	REG_OCLK = 6

	REG_CLR_FROM = 7
	REG_CLR_TO   = 11
)

const (
	MAX_CHIPS  = chip.CHIP_MAX
	MAX_BANKS  = 4
	MAX_BUF    = MAX_CHIPS * 512
	SPI_BUFSIZ = 1024
	SPI_SPEED  = 96000

	DATA_MIN = 4
	DATA_MAX = 128

	OSC_BYTES = 8

	BUFFERS = 2
)

// Buffer slot states
const (
	STATE_DONE    = 0 // idle, may be built
	STATE_READY   = 1 // built, waiting for the bus
	STATE_SENDING = 2 // owned by the I/O loop
	STATE_SENT    = 3 // reply captured
	STATE_READING = 4 // replies being extracted
)

func StateName(s int) string {
	switch s {
	case STATE_DONE:
		return "Done"
	case STATE_READY:
		return "Ready"
	case STATE_SENDING:
		return "Sending"
	case STATE_SENT:
		return "Sent"
	case STATE_READING:
		return "Reading"
	default:
		return "Unknown"
	}
}

var (
	ErrBufferOverflow = errors.New("ErrBufferOverflow")
	ErrBadDataSize    = errors.New("ErrBadDataSize")
	ErrNotClaimable   = errors.New("ErrNotClaimable")
	ErrNoBank         = errors.New("ErrNoBank")
	ErrNoChips        = errors.New("ErrNoChips")
)

var oscBits = [OSC_BYTES]uint8{0x01, 0x03, 0x07, 0x0F, 0x1F, 0x3F, 0x7F, 0xFF}

var regEnable = []byte{0xc1, 0x6a, 0x59, 0xe3}
var regDisable = []byte{0x00, 0x00, 0x00, 0x00}

const (
	baseA = 4
	baseB = 61
)

var counters = []byte{
	64, 64,
	baseA, baseA + 4,
	baseA + 2, baseA + 2 + 16,
	baseA, baseA + 1,
	baseB % 65, (baseB + 1) % 65,
	(baseB + 3) % 65, (baseB + 3 + 16) % 65,
	(baseB + 4) % 65, (baseB + 4 + 4) % 65,
	(baseB + 3 + 3) % 65, (baseB + 3 + 1 + 3) % 65,
}

var w1 = [16]uint32{
	0, 0, 0, 0xffffffff,
	0x80000000, 0, 0, 0,
	0, 0, 0, 0,
	0, 0, 0, 0x00000280,
}

var w2 = [8]uint32{
	0x80000000, 0, 0, 0,
	0, 0, 0, 0x00000100,
}

// Known work sent to every chip during detection.
var testWork = chip.WorkSend{
	Midstate: [8]uint32{
		0xb0e72d8e, 0x1dc5b862, 0xe9e7c4a6, 0x3050f1f5,
		0x8a1a6b7e, 0x7ec384e8, 0x42c1c3fc, 0x8ed158a1,
	},
	MS3Steps: [8]uint32{
		0x8a1a6b7e, 0x6f484872, 0x4ff0bb9b, 0x12c97f07,
		0xb0e72d8e, 0x55d979bc, 0x39403296, 0x40f09e84,
	},
	Merkle7: 0x8a0bb7b7,
	NTime:   0x33af304f,
	Bits:    0x0b290c1a,
}

// TxBuf is one side of the double buffer.
type TxBuf struct {
	state int
	Write []byte
	Read  []byte
	Used  int
	// Chips is the chip count the buffer was built for
	Chips   int
	ChipOff [MAX_CHIPS + 1]int
	BankOff [MAX_BANKS + 1]int
	err     error
}

func newTxBuf() *TxBuf {
	return &TxBuf{
		Write: make([]byte, MAX_BUF),
		Read:  make([]byte, MAX_BUF),
	}
}

// reset empties the buffer for a new build.
func (b *TxBuf) reset() {
	b.Used = 0
	b.Chips = 0
	b.err = nil
	b.ChipOff = [MAX_CHIPS + 1]int{}
	b.BankOff = [MAX_BANKS + 1]int{}
}

// Err is the first encoding error since the last reset.
func (b *TxBuf) Err() error {
	return b.err
}

// Bytes is the stream to send.
func (b *TxBuf) Bytes() []byte {
	return b.Write[:b.Used]
}
