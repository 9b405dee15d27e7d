package asicio

import (
	"fmt"
	"math/bits"

	"bab_miner/device/chip"
)

// The add* helpers keep the first error and turn every later call into a
// no-op, so a build can be checked once at the end.

func (b *TxBuf) addBuf(data []byte) {
	if b.err != nil {
		return
	}
	if b.Used+len(data) >= len(b.Write) {
		b.err = fmt.Errorf("%w: %d+%d of %d", ErrBufferOverflow, b.Used, len(data), len(b.Write))
		return
	}
	copy(b.Write[b.Used:], data)
	b.Used += len(data)
}

// addBufRev appends data with each byte bit reversed, the chips shift LSB first.
func (b *TxBuf) addBufRev(data []byte) {
	if b.err != nil {
		return
	}
	if b.Used+len(data) >= len(b.Write) {
		b.err = fmt.Errorf("%w: %d+%d of %d", ErrBufferOverflow, b.Used, len(data), len(b.Write))
		return
	}
	for i, v := range data {
		b.Write[b.Used+i] = bits.Reverse8(v)
	}
	b.Used += len(data)
}

func (b *TxBuf) addBreak() {
	b.addBuf([]byte{CMD_BREAK})
}

func (b *TxBuf) addAsync() {
	b.addBuf([]byte{CMD_ASYNC})
}

// addData writes a register block: header then the reversed payload.
func (b *TxBuf) addData(addr uint16, data []byte) {
	if b.err != nil {
		return
	}
	if len(data) < DATA_MIN || len(data) > DATA_MAX || len(data)%4 != 0 {
		b.err = fmt.Errorf("%w: %d bytes at 0x%04x", ErrBadDataSize, len(data), addr)
		return
	}
	words := len(data) / 4
	b.addBuf([]byte{uint8(words-1) | CMD_WRITE, uint8(addr >> 8), uint8(addr)})
	b.addBufRev(data)
}

func (b *TxBuf) addWords(addr uint16, words []uint32) {
	data, err := PackWords(words)
	if err != nil && b.err == nil {
		b.err = err
		return
	}
	b.addData(addr, data)
}

func (b *TxBuf) configReg(reg int, enable bool) {
	addr := ADDR_REG + uint16(reg*32)
	if enable {
		b.addData(addr, regEnable)
	} else {
		b.addData(addr, regDisable)
	}
}

// OscCode is the thermometer code for an oscillator speed: whole groups of 8
// set bits, then the partial group, then zeros.
func OscCode(fast int) [OSC_BYTES]uint8 {
	var osc [OSC_BYTES]uint8
	i := 0
	for ; i < OSC_BYTES && fast > OSC_BYTES; i++ {
		osc[i] = 0xff
		fast -= OSC_BYTES
	}
	if i < OSC_BYTES && fast > 0 && fast <= OSC_BYTES {
		osc[i] = oscBits[fast-1]
	}
	return osc
}

func (b *TxBuf) setOsc(fast int) {
	osc := OscCode(fast)
	b.addData(ADDR_OSC, osc[:])
}

// Register values derived from a conf byte. ICLK and DIV2 are inverted.
func iclkBit(conf uint8) bool { return conf&chip.CONF_ICLK == 0 }
func fastBit(conf uint8) bool { return conf&chip.CONF_FAST != 0 }
func div2Bit(conf uint8) bool { return conf&chip.CONF_DIV2 == 0 }
func slowBit(conf uint8) bool { return conf&chip.CONF_SLOW != 0 }
func oclkBit(conf uint8) bool { return conf&chip.CONF_OCLK != 0 }

// clockRegs writes all five clock control registers and clears the unused ones.
func (b *TxBuf) clockRegs(conf uint8) {
	b.configReg(REG_ICLK, iclkBit(conf))
	b.configReg(REG_FAST, fastBit(conf))
	b.configReg(REG_DIV2, div2Bit(conf))
	b.configReg(REG_SLOW, slowBit(conf))
	b.configReg(REG_OCLK, oclkBit(conf))
	for reg := REG_CLR_FROM; reg <= REG_CLR_TO; reg++ {
		b.configReg(reg, false)
	}
}

// clockRegDeltas writes only the registers whose bit changed.
func (b *TxBuf) clockRegDeltas(old uint8, conf uint8) {
	if old&chip.CONF_ICLK != conf&chip.CONF_ICLK {
		b.configReg(REG_ICLK, iclkBit(conf))
	}
	if old&chip.CONF_FAST != conf&chip.CONF_FAST {
		b.configReg(REG_FAST, fastBit(conf))
	}
	if old&chip.CONF_DIV2 != conf&chip.CONF_DIV2 {
		b.configReg(REG_DIV2, div2Bit(conf))
	}
	if old&chip.CONF_SLOW != conf&chip.CONF_SLOW {
		b.configReg(REG_SLOW, slowBit(conf))
	}
	if old&chip.CONF_OCLK != conf&chip.CONF_OCLK {
		b.configReg(REG_OCLK, oclkBit(conf))
	}
}

// hashCore loads the fixed counter and W tables.
func (b *TxBuf) hashCore() {
	b.addData(ADDR_COUNT, counters)
	b.addWords(ADDR_W1A, w1[:])
	b.addWords(ADDR_W1B, w1[:len(w1)/2])
	b.addWords(ADDR_W2, w2[:])
}

// addWork writes the job payload into the chip input registers.
func (b *TxBuf) addWork(ws *chip.WorkSend) {
	data, err := PackWork(ws)
	if err != nil {
		if b.err == nil {
			b.err = err
		}
		return
	}
	b.addData(ADDR_INP, data)
}
