// Package admission bounds how many extractions and hover computations run
// at once.
package admission

import (
	"context"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/semaphore"

	"github.com/standardbeagle/bladelsp/internal/config"
)

// Kind selects a permit pool.
type Kind int

const (
	Extraction Kind = iota
	Hover
)

func (k Kind) String() string {
	if k == Extraction {
		return "extraction"
	}
	return "hover"
}

type pool struct {
	sem      *semaphore.Weighted
	capacity int64
	inUse    atomic.Int64
	waiting  atomic.Int64
	acquired atomic.Int64
	waited   atomic.Int64
}

// PoolSnapshot is a point-in-time view of one pool
type PoolSnapshot struct {
	Capacity  int64 `json:"capacity"`
	InUse     int64 `json:"in_use"`
	Available int64 `json:"available"`
	Waiting   int64 `json:"waiting"`
	Acquired  int64 `json:"acquired"`
	Waited    int64 `json:"waited"` // acquisitions that had to queue
}

type Snapshot struct {
	Extraction PoolSnapshot `json:"extraction"`
	Hover      PoolSnapshot `json:"hover"`
	UnderLoad  bool         `json:"under_load"`
}

// Controller hands out permits. It never rejects work; Acquire blocks until
// a permit frees up or ctx is done.
type Controller struct {
	pools    [2]*pool
	lowWater float64
}

func New(cfg config.Admission) *Controller {
	ratio := cfg.LowWaterRatio
	if ratio <= 0 {
		ratio = 0.25
	}
	return &Controller{
		pools: [2]*pool{
			newPool(cfg.ExtractionPermits),
			newPool(cfg.HoverPermits),
		},
		lowWater: ratio,
	}
}

func newPool(n int) *pool {
	if n <= 0 {
		n = 1
	}
	return &pool{sem: semaphore.NewWeighted(int64(n)), capacity: int64(n)}
}

// Acquire takes one permit of kind. The returned release func must be called
// exactly once; extra calls are ignored.
func (c *Controller) Acquire(ctx context.Context, kind Kind) (func(), error) {
	p := c.pools[kind]
	if !p.sem.TryAcquire(1) {
		p.waiting.Add(1)
		err := p.sem.Acquire(ctx, 1)
		p.waiting.Add(-1)
		if err != nil {
			return nil, err
		}
		p.waited.Add(1)
	}
	p.inUse.Add(1)
	p.acquired.Add(1)

	var once sync.Once
	return func() {
		once.Do(func() {
			p.inUse.Add(-1)
			p.sem.Release(1)
		})
	}, nil
}

// Available returns the free permits of kind
func (c *Controller) Available(kind Kind) int64 {
	p := c.pools[kind]
	return p.capacity - p.inUse.Load()
}

// UnderLoad reports whether either pool has fewer free permits than its
// low-water mark.
func (c *Controller) UnderLoad() bool {
	for _, p := range c.pools {
		if float64(p.capacity-p.inUse.Load()) < float64(p.capacity)*c.lowWater {
			return true
		}
	}
	return false
}

func (c *Controller) Snapshot() Snapshot {
	return Snapshot{
		Extraction: c.pools[Extraction].snapshot(),
		Hover:      c.pools[Hover].snapshot(),
		UnderLoad:  c.UnderLoad(),
	}
}

func (p *pool) snapshot() PoolSnapshot {
	inUse := p.inUse.Load()
	return PoolSnapshot{
		Capacity:  p.capacity,
		InUse:     inUse,
		Available: p.capacity - inUse,
		Waiting:   p.waiting.Load(),
		Acquired:  p.acquired.Load(),
		Waited:    p.waited.Load(),
	}
}
