package chip

import "math/bits"

const (
	CHIP_MAX = 256

	REPLY_NONCES = 16
	// bytes of a packed Reply and WorkSend
	REPLY_SIZE = (REPLY_NONCES + 1) * 4
	WORK_SIZE  = 19 * 4

	// reply slot values that carry no nonce
	NONCE_EMPTY  = 0xffffffff
	NONCE_ZEROED = 0
)

// WorkSend is the job payload written to a chip's input registers.
type WorkSend struct {
	Midstate [8]uint32
	MS3Steps [8]uint32
	Merkle7  uint32
	NTime    uint32
	Bits     uint32
}

// Reply is what a chip hands back each transaction: a ring of result slots
// and the job selector echo.
type Reply struct {
	Nonce  [REPLY_NONCES]uint32
	JobSel uint32
}

func IsEmptyNonce(n uint32) bool {
	return n == NONCE_EMPTY || n == NONCE_ZEROED
}

// Offsets tried, in order, when matching a decoded nonce to a job.
var NonceOffsets = [...]int32{-0x800000, 0, -0x400000}

const nonceBias = 0x800004

func reverse24(v uint32) uint32 {
	b := bits.ReverseBytes32(bits.Reverse32(v))
	return b & 0xffffff
}

// DecodeNonce turns a raw reply slot into the nonce the chip found: the low
// byte moves to the top, the rest is bit reversed per byte and rotated, then
// the chip's bias is removed.
func DecodeNonce(in uint32) uint32 {
	out := (in & 0xff) << 24
	in = reverse24(in >> 8)
	out |= (in >> 2) & 0x3fffff
	if in&1 != 0 {
		out |= 1 << 23
	}
	if in&2 != 0 {
		out |= 1 << 22
	}
	return out - nonceBias
}

// EncodeNonce is the inverse of DecodeNonce, what the chip does to a nonce
// before placing it in a reply slot.
func EncodeNonce(n uint32) uint32 {
	v := n + nonceBias
	low := v >> 24
	r := (v&0x3fffff)<<2 | (v>>23)&1 | ((v>>22)&1)<<1
	return reverse24(r)<<8 | low
}
