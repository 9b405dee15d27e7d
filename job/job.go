package job

import (
	"errors"
	"math/big"

	"bab_miner/block"
	"bab_miner/util"
)

// Result of checking a nonce against a job.
const (
	NONCE_BAD   = iota // hash does not have 32 leading zero bits
	NONCE_DIFF1        // a valid chip result, below the job target
	NONCE_SHARE        // meets the job target
)

var ErrBadHeader = errors.New("ErrBadHeader")

// Job is the unit of work handed to one chip: a full block header and the
// target a share has to meet.
type Job struct {
	JobID  string
	Header [block.HeaderSize]byte
	Target *big.Int
	Diff   float64

	NotifyJobTS float64

	midstate [8]uint32
	tail     [3]uint32
}

// NewJob precomputes the midstate of header. A diff below 1 gives a
// difficulty 1 target.
func NewJob(id string, header []byte, diff float64) (*Job, error) {
	if len(header) != block.HeaderSize {
		return nil, ErrBadHeader
	}
	j := &Job{
		JobID:       id,
		Target:      block.DifficultyToTarget(diff),
		NotifyJobTS: util.NowInSec(),
	}
	j.Diff = block.TargetToDifficulty(j.Target)
	copy(j.Header[:], header)

	ms, err := block.Midstate(j.Header[:])
	if err != nil {
		return nil, err
	}
	j.midstate = ms
	j.tail = block.TailWords(j.Header[:])
	return j, nil
}

func (j *Job) Midstate() [8]uint32 {
	return j.midstate
}

// Tail returns merkle7, ntime and nbits as sha256 message words.
func (j *Job) Tail() [3]uint32 {
	return j.tail
}

// HashWithNonce hashes the header with the chip nonce in place.
func (j *Job) HashWithNonce(nonce uint32) [32]byte {
	var hdr [block.HeaderSize]byte
	copy(hdr[:], j.Header[:])
	block.PutChipNonce(hdr[:], nonce)
	return block.DoubleSHA256(hdr[:])
}

// TestNonce classifies a nonce reported for this job.
func (j *Job) TestNonce(nonce uint32) (int, [32]byte) {
	hash := j.HashWithNonce(nonce)
	if hash[28] != 0 || hash[29] != 0 || hash[30] != 0 || hash[31] != 0 {
		return NONCE_BAD, hash
	}
	if block.MeetsTarget(hash, j.Target) {
		return NONCE_SHARE, hash
	}
	return NONCE_DIFF1, hash
}
