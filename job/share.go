package job

import (
	"sync"

	"bab_miner/log"
	"bab_miner/util"
)

type ShareEntry struct {
	R  JobResult
	ts float64
	n  int
}

// Share remembers recently reported results so a nonce reported twice is
// counted once.
type Share struct {
	mx       sync.Mutex
	shmap    map[string]*ShareEntry
	staleTTL float64
}

func (my *Share) Init() {
	my.shmap = make(map[string]*ShareEntry)

	my.staleTTL = 120.0 //2 minutes
}

// Add records r and reports whether it was already known.
func (my *Share) Add(r JobResult) bool {
	my.mx.Lock()
	defer my.mx.Unlock()

	key := r.Key()
	entry, ok := my.shmap[key]
	if ok {
		entry.n++
		log.Infof("Share %s exists, %d'th report", key, entry.n)
		return true
	}
	my.shmap[key] = &ShareEntry{
		R:  r,
		ts: util.NowInSec(),
		n:  1,
	}
	return false
}

func (my *Share) RemoveStale() int {
	my.mx.Lock()
	defer my.mx.Unlock()

	ts := util.NowInSec()
	nStale := 0

	for k, v := range my.shmap {
		if v.ts+my.staleTTL < ts {
			delete(my.shmap, k)
			nStale++
		}
	}
	return nStale
}

func (my *Share) Len() int {
	my.mx.Lock()
	defer my.mx.Unlock()

	return len(my.shmap)
}
