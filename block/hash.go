package block

import (
	"crypto/sha256"
	"encoding"
	"encoding/binary"
	"errors"
	"math/bits"
)

var ErrMidstate = errors.New("ErrMidstate")

// DoubleSHA256 is the block header hash, in the byte order sha256 produces it
// (little endian when read as a number).
func DoubleSHA256(b []byte) [32]byte {
	sum := sha256.Sum256(b)
	return sha256.Sum256(sum[:])
}

// Midstate returns the SHA-256 state words after compressing the first 64
// bytes of the header.
func Midstate(header []byte) ([8]uint32, error) {
	var ms [8]uint32
	if len(header) < 64 {
		return ms, ErrBytesLenNot80
	}
	h := sha256.New()
	h.Write(header[:64])
	m, ok := h.(encoding.BinaryMarshaler)
	if !ok {
		return ms, ErrMidstate
	}
	state, err := m.MarshalBinary()
	if err != nil {
		return ms, err
	}
	// "sha\x03" magic, then the eight state words big endian
	if len(state) < 4+32 {
		return ms, ErrMidstate
	}
	for i := range ms {
		ms[i] = binary.BigEndian.Uint32(state[4+i*4:])
	}
	return ms, nil
}

// TailWords are the message words 16..18 of the header: the last merkle root
// word, ntime and nbits, as the second sha256 block reads them.
func TailWords(header []byte) [3]uint32 {
	return [3]uint32{
		binary.BigEndian.Uint32(header[64:68]),
		binary.BigEndian.Uint32(header[68:72]),
		binary.BigEndian.Uint32(header[72:76]),
	}
}

var sha256K = [3]uint32{0x428a2f98, 0x71374491, 0xb5c0fbcf}

// MS3Steps runs the first three compression rounds of the second block on top
// of the midstate. The result is stored h..a, as the chips expect it.
func MS3Steps(ms [8]uint32, w [3]uint32) [8]uint32 {
	a, b, c, d := ms[0], ms[1], ms[2], ms[3]
	e, f, g, h := ms[4], ms[5], ms[6], ms[7]
	for i := 0; i < 3; i++ {
		ch := (e & f) ^ (^e & g)
		maj := (a & b) ^ (a & c) ^ (b & c)
		s1 := bits.RotateLeft32(e, -6) ^ bits.RotateLeft32(e, -11) ^ bits.RotateLeft32(e, -25)
		s0 := bits.RotateLeft32(a, -2) ^ bits.RotateLeft32(a, -13) ^ bits.RotateLeft32(a, -22)
		t1 := w[i] + sha256K[i] + h + ch + s1
		newE := t1 + d
		newA := t1 + s0 + maj
		d, c, b, a = c, b, a, newA
		h, g, f, e = g, f, e, newE
	}
	return [8]uint32{h, g, f, e, d, c, b, a}
}
