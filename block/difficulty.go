package block

import (
	"math"
	"math/big"
)

// Pdiff1Target is the target of a difficulty 1 share:
// 0x00000000FFFF0000000000000000000000000000000000000000000000000000
var Pdiff1Target = new(big.Int).Lsh(big.NewInt(0xFFFF), 208)

// CalcDifficulty returns the power of two difficulty reached by a header hash
// given in sha256 output order. Hashes without 32 leading zero bits are 0.
func CalcDifficulty(hash [32]byte) uint64 {
	if hash[31] != 0 || hash[30] != 0 || hash[29] != 0 || hash[28] != 0 {
		return 0
	}
	difficulty := uint64(1)
	i := 27
	for i > 0 && hash[i] == 0 && difficulty < 1<<55 {
		difficulty *= 256
		i--
	}
	c := hash[i]
	for j := 0; j < 8 && c&0x80 == 0 && difficulty < 1<<62; j++ {
		c <<= 1
		difficulty *= 2
	}
	return difficulty
}

// HashToBig turns a hash in sha256 output order into its numeric value.
func HashToBig(hash [32]byte) *big.Int {
	return new(big.Int).SetBytes(SwapByteInSHA256(hash[:]))
}

// MeetsTarget reports whether the hash, read as a number, is not above target.
func MeetsTarget(hash [32]byte, target *big.Int) bool {
	if target == nil {
		return false
	}
	return HashToBig(hash).Cmp(target) <= 0
}

// DifficultyToTarget converts a pool difficulty into the 256 bit target.
// Difficulties below 1 are treated as 1.
func DifficultyToTarget(diff float64) *big.Int {
	if diff < 1 || math.IsNaN(diff) || math.IsInf(diff, 0) {
		diff = 1
	}
	t := new(big.Float).SetInt(Pdiff1Target)
	t.Quo(t, big.NewFloat(diff))
	out, _ := t.Int(nil)
	return out
}

// TargetToDifficulty is the inverse of DifficultyToTarget.
func TargetToDifficulty(target *big.Int) float64 {
	if target == nil || target.Sign() <= 0 {
		return 0
	}
	d := new(big.Float).SetInt(Pdiff1Target)
	d.Quo(d, new(big.Float).SetInt(target))
	f, _ := d.Float64()
	return f
}

func NBitsToDifficulty(nbits uint32) float64 {
	exponent := (nbits >> 24) & 0xff
	if exponent > 0x1d {
		exponent = 0x1d
	}
	exponent_diff := int(8 * (0x1d - exponent))
	significand := float64(nbits & 0xffffff)
	diff := math.Ldexp(0x00FFFF/significand, exponent_diff)
	return diff
}
