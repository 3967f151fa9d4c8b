package pool

import (
	"sync"

	"github.com/vkngwrapper/arsenal/regions"
)

// SyncPool is a mutex-protected wrapper around a PoolAllocator for use from multiple
// goroutines. The core allocators deliberately carry no locking of their own- the
// value of a pool is replacing a general allocator's bookkeeping and synchronization
// with pointer arithmetic- so sharing one across goroutines means paying for exactly
// one mutex, here, rather than inside every pool.
type SyncPool struct {
	mutex sync.Mutex
	pool  *PoolAllocator
}

// NewSyncPool builds a PoolAllocator from the provided create info and wraps it for
// concurrent use.
func NewSyncPool(source regions.RegionSource, info PoolCreateInfo) (*SyncPool, error) {
	inner, err := NewPool(source, info)
	if err != nil {
		return nil, err
	}

	return &SyncPool{pool: inner}, nil
}

// Alloc pops a slot off the free list under the wrapper's mutex.
func (p *SyncPool) Alloc() ([]byte, error) {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	return p.pool.Alloc()
}

// Free pushes a slot back onto the free list under the wrapper's mutex.
func (p *SyncPool) Free(buf []byte) error {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	return p.pool.Free(buf)
}

// Destroy releases every owned region under the wrapper's mutex.
func (p *SyncPool) Destroy() error {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	return p.pool.Destroy()
}

// Validate runs the inner pool's consistency checks under the wrapper's mutex.
func (p *SyncPool) Validate() error {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	return p.pool.Validate()
}

// FreeSlotCount returns the number of slots currently on the free list.
func (p *SyncPool) FreeSlotCount() int {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	return p.pool.FreeSlotCount()
}

// AllocationCount returns the number of slots currently lent out to callers.
func (p *SyncPool) AllocationCount() int {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	return p.pool.AllocationCount()
}

// AddStatistics sums the inner pool's allocation statistics into the provided
// regions.Statistics object under the wrapper's mutex.
func (p *SyncPool) AddStatistics(stats *regions.Statistics) {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	p.pool.AddStatistics(stats)
}
