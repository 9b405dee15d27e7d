package job

import (
	"sync"
	"time"
)

type DataPoint struct {
	Timestamp time.Time
	Value     uint64
}

// MovingWindow sums difficulty-1 units over the last WindowSize.
type MovingWindow struct {
	WindowSize time.Duration
	Values     []DataPoint
	Sum        uint64
}

func NewMovingWindow(windowSize time.Duration) *MovingWindow {
	return &MovingWindow{
		WindowSize: windowSize,
		Values:     make([]DataPoint, 0),
	}
}

func (w *MovingWindow) expire(now time.Time) {
	for len(w.Values) > 0 && now.Sub(w.Values[0].Timestamp) > w.WindowSize {
		w.Sum -= w.Values[0].Value
		w.Values = w.Values[1:]
	}
}

func (w *MovingWindow) Update(point DataPoint) {
	w.expire(point.Timestamp)
	w.Values = append(w.Values, point)
	w.Sum += point.Value
}

// HashRateGhs converts the window sum into GH/s, one unit being 2^32 hashes.
func (w *MovingWindow) HashRateGhs(now time.Time) float64 {
	w.expire(now)
	return float64(w.Sum) * 4.294967296 / w.WindowSize.Seconds()
}

type PoolStats struct {
	mx          sync.Mutex
	HashRate5s  *MovingWindow
	HashRate1m  *MovingWindow
	HashRate15m *MovingWindow
}

func NewPoolStats() *PoolStats {
	return &PoolStats{
		HashRate5s:  NewMovingWindow(5 * time.Second),
		HashRate1m:  NewMovingWindow(time.Minute),
		HashRate15m: NewMovingWindow(15 * time.Minute),
	}
}

func (p *PoolStats) UpdateHashRate(data DataPoint) {
	p.mx.Lock()
	defer p.mx.Unlock()
	p.HashRate5s.Update(data)
	p.HashRate1m.Update(data)
	p.HashRate15m.Update(data)
}

// Rates returns the 5s, 1m and 15m averages in GH/s.
func (p *PoolStats) Rates(now time.Time) (float64, float64, float64) {
	p.mx.Lock()
	defer p.mx.Unlock()
	return p.HashRate5s.HashRateGhs(now), p.HashRate1m.HashRateGhs(now), p.HashRate15m.HashRateGhs(now)
}
