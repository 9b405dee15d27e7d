package job

import (
	"errors"
	"sync"

	"bab_miner/log"
	"bab_miner/util"
)

type JobQ struct {
	queue   []*Job
	mx      sync.Mutex
	Created int
}

func (q *JobQ) Enqueue(j *Job) {
	q.mx.Lock()
	defer q.mx.Unlock()
	j.NotifyJobTS = util.NowInSec()
	q.queue = append(q.queue, j) // Enqueue
	q.Created++
}

var ErrEmptyJobQ = errors.New("empty jobQ")

func (q *JobQ) Dequeue() (*Job, error) {
	q.mx.Lock()
	defer q.mx.Unlock()

	if len(q.queue) == 0 {
		return nil, ErrEmptyJobQ
	}

	j := q.queue[0]
	q.queue[0] = nil
	q.queue = q.queue[1:]
	log.Debugf("Dequeue job %s, %d left", j.JobID, len(q.queue))
	return j, nil
}

func (q *JobQ) Len() int {
	q.mx.Lock()
	defer q.mx.Unlock()

	return len(q.queue)
}
