package block

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"math/bits"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const genesisHex = "01000000" +
	"0000000000000000000000000000000000000000000000000000000000000000" +
	"3ba3edfd7a7b12b27ac72c3e67768f617fc81bc3888a51323a9fb8aa4b1e5e4a" +
	"29ab5f49" + "ffff001d" + "1dac2b7c"

const genesisHashBE = "000000000019d6689c085ae165831e934ff763ae46a2a6c172b3f1b60a8ce26f"

var k = [64]uint32{
	0x428a2f98, 0x71374491, 0xb5c0fbcf, 0xe9b5dba5, 0x3956c25b, 0x59f111f1, 0x923f82a4, 0xab1c5ed5,
	0xd807aa98, 0x12835b01, 0x243185be, 0x550c7dc3, 0x72be5d74, 0x80deb1fe, 0x9bdc06a7, 0xc19bf174,
	0xe49b69c1, 0xefbe4786, 0x0fc19dc6, 0x240ca1cc, 0x2de92c6f, 0x4a7484aa, 0x5cb0a9dc, 0x76f988da,
	0x983e5152, 0xa831c66d, 0xb00327c8, 0xbf597fc7, 0xc6e00bf3, 0xd5a79147, 0x06ca6351, 0x14292967,
	0x27b70a85, 0x2e1b2138, 0x4d2c6dfc, 0x53380d13, 0x650a7354, 0x766a0abb, 0x81c2c92e, 0x92722c85,
	0xa2bfe8a1, 0xa81a664b, 0xc24b8b70, 0xc76c51a3, 0xd192e819, 0xd6990624, 0xf40e3585, 0x106aa070,
	0x19a4c116, 0x1e376c08, 0x2748774c, 0x34b0bcb5, 0x391c0cb3, 0x4ed8aa4a, 0x5b9cca4f, 0x682e6ff3,
	0x748f82ee, 0x78a5636f, 0x84c87814, 0x8cc70208, 0x90befffa, 0xa4506ceb, 0xbef9a3f7, 0xc67178f2,
}

var iv = [8]uint32{0x6a09e667, 0xbb67ae85, 0x3c6ef372, 0xa54ff53a, 0x510e527f, 0x9b05688c, 0x1f83d9ab, 0x5be0cd19}

// rounds runs n rounds of the sha256 compression on one 64 byte block and
// returns the working variables a..h, without the final feed forward.
func rounds(state [8]uint32, blk []byte, n int) [8]uint32 {
	var w [64]uint32
	for i := 0; i < 16; i++ {
		w[i] = binary.BigEndian.Uint32(blk[i*4:])
	}
	for i := 16; i < 64; i++ {
		s0 := bits.RotateLeft32(w[i-15], -7) ^ bits.RotateLeft32(w[i-15], -18) ^ (w[i-15] >> 3)
		s1 := bits.RotateLeft32(w[i-2], -17) ^ bits.RotateLeft32(w[i-2], -19) ^ (w[i-2] >> 10)
		w[i] = w[i-16] + s0 + w[i-7] + s1
	}
	a, b, c, d, e, f, g, h := state[0], state[1], state[2], state[3], state[4], state[5], state[6], state[7]
	for i := 0; i < n; i++ {
		s1 := bits.RotateLeft32(e, -6) ^ bits.RotateLeft32(e, -11) ^ bits.RotateLeft32(e, -25)
		ch := (e & f) ^ (^e & g)
		t1 := h + s1 + ch + k[i] + w[i]
		s0 := bits.RotateLeft32(a, -2) ^ bits.RotateLeft32(a, -13) ^ bits.RotateLeft32(a, -22)
		maj := (a & b) ^ (a & c) ^ (b & c)
		h, g, f, e, d, c, b, a = g, f, e, d+t1, c, b, a, t1+s0+maj
	}
	return [8]uint32{a, b, c, d, e, f, g, h}
}

func compress(state [8]uint32, blk []byte) [8]uint32 {
	v := rounds(state, blk, 64)
	for i := range v {
		v[i] += state[i]
	}
	return v
}

func genesis(t *testing.T) []byte {
	t.Helper()
	b, err := hex.DecodeString(genesisHex)
	require.NoError(t, err)
	return b
}

// secondBlock is the padded last 16 bytes of an 80 byte header.
func secondBlock(hdr []byte) []byte {
	blk := make([]byte, 64)
	copy(blk, hdr[64:80])
	blk[16] = 0x80
	binary.BigEndian.PutUint64(blk[56:], 80*8)
	return blk
}

func TestMidstate(t *testing.T) {
	hdr := genesis(t)
	ms, err := Midstate(hdr)
	require.NoError(t, err)
	assert.Equal(t, compress(iv, hdr[:64]), ms)

	// finishing the midstate gives the real first hash
	var got [32]byte
	for i, v := range compress(ms, secondBlock(hdr)) {
		binary.BigEndian.PutUint32(got[i*4:], v)
	}
	assert.Equal(t, sha256.Sum256(hdr), got)

	_, err = Midstate(hdr[:63])
	assert.ErrorIs(t, err, ErrBytesLenNot80)
}

func TestMS3Steps(t *testing.T) {
	hdr := genesis(t)
	ms, err := Midstate(hdr)
	require.NoError(t, err)
	tail := TailWords(hdr)
	assert.Equal(t, binary.BigEndian.Uint32(hdr[72:76]), tail[2])

	v := rounds(ms, secondBlock(hdr), 3)
	want := [8]uint32{v[7], v[6], v[5], v[4], v[3], v[2], v[1], v[0]}
	assert.Equal(t, want, MS3Steps(ms, tail))
}

func TestGenesisHash(t *testing.T) {
	hash := DoubleSHA256(genesis(t))
	assert.Equal(t, genesisHashBE, hex.EncodeToString(SwapByteInSHA256(hash[:])))
	assert.Equal(t, uint64(2048), CalcDifficulty(hash))
	assert.True(t, MeetsTarget(hash, Pdiff1Target))
	assert.False(t, MeetsTarget(hash, nil))

	hash[28] = 1
	assert.Equal(t, uint64(0), CalcDifficulty(hash))
	assert.False(t, MeetsTarget(hash, Pdiff1Target))
}

func TestPutChipNonce(t *testing.T) {
	hdr := genesis(t)
	nonce := binary.BigEndian.Uint32(hdr[76:80])
	assert.Equal(t, uint32(0x1DAC2B7C), nonce)

	PutChipNonce(hdr, 0)
	PutChipNonce(hdr, nonce)
	assert.Equal(t, genesis(t), hdr)
}

func TestBlockHeaderBytes(t *testing.T) {
	hdr := genesis(t)
	bh, err := Byte2BlockHeader(hdr)
	require.NoError(t, err)
	assert.Equal(t, uint32(1), bh.Version)
	assert.Equal(t, uint32(0x495fab29), bh.Time)
	assert.Equal(t, uint32(0x1d00ffff), bh.NBits)
	assert.Equal(t, hdr, BlockHeader2Byte(*bh))

	_, err = Byte2BlockHeader(hdr[:79])
	assert.ErrorIs(t, err, ErrBytesLenNot80)
}

func TestDifficulty(t *testing.T) {
	assert.Equal(t, 0, DifficultyToTarget(1).Cmp(Pdiff1Target))
	assert.Equal(t, 0, DifficultyToTarget(0).Cmp(Pdiff1Target))
	assert.InDelta(t, 1024.0, TargetToDifficulty(DifficultyToTarget(1024)), 1e-6)
	assert.Zero(t, TargetToDifficulty(nil))

	assert.InDelta(t, 1.0, NBitsToDifficulty(0x1d00ffff), 1e-9)
	// block 100000
	assert.InDelta(t, 14484.16, NBitsToDifficulty(0x1b04864c), 0.01)
}

func TestSwapByteInSHA256(t *testing.T) {
	assert.Nil(t, SwapByteInSHA256(make([]byte, 31)))
	in := make([]byte, 32)
	in[0] = 1
	assert.Equal(t, byte(1), SwapByteInSHA256(in)[31])
}
