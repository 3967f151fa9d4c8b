package regions

import (
	cerrors "github.com/cockroachdb/errors"
)

// Region is one contiguous block of raw memory obtained from a RegionSource. A Region
// is exclusively owned by the allocator that acquired it for the allocator's whole
// lifetime, and must be passed back to Release exactly once, when the allocator is
// destroyed.
type Region struct {
	// Bytes is the raw backing memory of the region. The region's capacity is len(Bytes).
	Bytes []byte
}

// Capacity returns the size of the region in bytes.
func (r Region) Capacity() int {
	return len(r.Bytes)
}

// IsNil returns true if this Region does not refer to any memory- either it was never
// acquired or it has already been released.
func (r Region) IsNil() bool {
	return r.Bytes == nil
}

// RegionSource is the sole boundary between the allocators in this module and the
// environment that supplies their backing memory. It is an injected capability rather
// than a singleton so that allocators can be tested against deterministic sources such
// as LimitSource.
//
// Implementations do not need to be goroutine-safe unless they are shared between
// allocators on different goroutines.
type RegionSource interface {
	// Acquire obtains a region of at least size bytes. When the environment cannot supply
	// the memory, Acquire returns an error matching ErrOutOfMemory via errors.Is. Acquire
	// is the only operation in this module that may block.
	Acquire(size int) (Region, error)
	// Release returns a region previously obtained from Acquire. Release must never fail-
	// there is nowhere for the failure to go, since allocators release regions during
	// destruction.
	Release(region Region)
}

// SystemSource is a RegionSource backed by the Go heap. Released regions are left for
// the garbage collector once no live allocation window refers to them.
type SystemSource struct{}

var _ RegionSource = SystemSource{}

func (SystemSource) Acquire(size int) (Region, error) {
	if size <= 0 {
		return Region{}, cerrors.Wrapf(ErrOutOfMemory, "requested region size %d is not positive", size)
	}

	return Region{Bytes: make([]byte, size)}, nil
}

func (SystemSource) Release(region Region) {}

// LimitSource wraps another RegionSource and enforces a total byte budget across all
// live regions. Acquire fails deterministically with ErrOutOfMemory once the budget
// would be exceeded; Release returns the region's bytes to the budget.
type LimitSource struct {
	inner  RegionSource
	budget int
	inUse  int
}

var _ RegionSource = &LimitSource{}

// NewLimitSource creates a LimitSource wrapping inner with the provided budget in bytes.
func NewLimitSource(inner RegionSource, budget int) *LimitSource {
	return &LimitSource{
		inner:  inner,
		budget: budget,
	}
}

// Budget returns the total byte budget of this source.
func (s *LimitSource) Budget() int { return s.budget }

// BytesInUse returns the number of budget bytes consumed by live regions.
func (s *LimitSource) BytesInUse() int { return s.inUse }

func (s *LimitSource) Acquire(size int) (Region, error) {
	if size <= 0 {
		return Region{}, cerrors.Wrapf(ErrOutOfMemory, "requested region size %d is not positive", size)
	}
	if s.inUse+size > s.budget {
		return Region{}, cerrors.Wrapf(ErrOutOfMemory, "requested %d bytes, but only %d of a %d-byte budget remain", size, s.budget-s.inUse, s.budget)
	}

	region, err := s.inner.Acquire(size)
	if err != nil {
		return Region{}, err
	}

	s.inUse += region.Capacity()
	return region, nil
}

func (s *LimitSource) Release(region Region) {
	s.inUse -= region.Capacity()
	if s.inUse < 0 {
		panic("region budget underflow: a region was released that was never counted against this source")
	}
	s.inner.Release(region)
}
