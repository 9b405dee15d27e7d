package job

import (
	"fmt"
	"math/big"

	"bab_miner/block"
)

// JobResult is one verified nonce of a job.
type JobResult struct {
	JobID      string
	Nonce      uint32
	Hash       [32]byte
	DiffSubmit uint64
	HashVal    *big.Int
	TS         float64
}

func NewJobResult(j *Job, nonce uint32) JobResult {
	r := JobResult{
		JobID: j.JobID,
		Nonce: nonce,
		Hash:  j.HashWithNonce(nonce),
	}
	r.DiffSubmit = block.CalcDifficulty(r.Hash)
	r.HashVal = block.HashToBig(r.Hash)
	return r
}

// Key identifies a result independently of which chip reported it.
func (r *JobResult) Key() string {
	return fmt.Sprintf("%s/%08x", r.JobID, r.Nonce)
}

// BlockHeaderHashBEStr is the hash as block explorers print it.
func (r *JobResult) BlockHeaderHashBEStr() string {
	return fmt.Sprintf("%x", block.SwapByteInSHA256(r.Hash[:]))
}
