package wire

import (
	"fmt"
	"sync"
	"sync/atomic"
)

var receivePool = &ReceivePool{m: &PoolMetrics{}}

// AcquireReceive returns an empty frame from the pool. Hand it back with
// ReleaseReceive once its payload is no longer referenced.
func AcquireReceive(maxSize int) *Receive { return receivePool.acquire(maxSize) }

func ReleaseReceive(r *Receive) { receivePool.release(r) }

type ReceivePool struct {
	sp sync.Pool
	m  *PoolMetrics
}

func (p *ReceivePool) acquire(maxSize int) *Receive {
	v := p.sp.Get()
	if v == nil {
		v = &Receive{}
		atomic.AddUint32(&p.m.na, uint32(1))
	} else {
		atomic.AddUint32(&p.m.nr, uint32(1))
	}
	r := v.(*Receive)
	r.reset(maxSize)
	r.pooled = true
	return r
}

func (p *ReceivePool) release(r *Receive) {
	if !r.pooled {
		return
	}
	r.pooled = false
	r.release()
	p.sp.Put(r)
	atomic.AddUint32(&p.m.np, uint32(1))
}

// na + nr equal the total number of acquires
// na + nr - np equal the number still in use.
type PoolMetrics struct {
	na uint32 // number of new acquires
	nr uint32 // number of reuse from pool
	np uint32 // number of put back to pool
}

type PoolStats struct {
	New     uint32
	Reused  uint32
	PutBack uint32
}

func (s PoolStats) InUse() int { return int(s.New) + int(s.Reused) - int(s.PutBack) }

func (s PoolStats) String() string {
	return fmt.Sprintf("[ %d|%d|%d ]", s.New, s.Reused, s.PutBack)
}

func (m *PoolMetrics) Stats() PoolStats {
	return PoolStats{
		New:     atomic.LoadUint32(&m.na),
		Reused:  atomic.LoadUint32(&m.nr),
		PutBack: atomic.LoadUint32(&m.np),
	}
}

func ReceivePoolStats() PoolStats { return receivePool.m.Stats() }

func JsonStringPoolMetrics() string {
	s := ReceivePoolStats()
	return fmt.Sprintf("{\"receivePool\": {\"new\": %d, \"reuse\": %d, \"putback\": %d}}", s.New, s.Reused, s.PutBack)
}
