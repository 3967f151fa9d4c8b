package regions

import "github.com/pkg/errors"

// PowerOfTwoError is the error returned from CheckPow2 or other methods if the number being tested is not a power of two
var PowerOfTwoError error = errors.New("number must be a power of two")

// ErrOutOfMemory is returned when a RegionSource cannot supply a region of the requested
// size. It is never retried internally- callers may retry with a smaller request or abort.
var ErrOutOfMemory error = errors.New("region source could not supply a region")

// ErrArenaExhausted is returned from arena allocations that cannot fit in the arena's
// remaining capacity. The arena remains valid and unchanged- the failure is recoverable
// via Reset, Rewind, or a fallback allocator.
var ErrArenaExhausted error = errors.New("arena capacity exhausted")

// ErrPoolExhausted is returned from pool allocations when the pool has a fixed region
// count and every slot in every owned region is in use. The pool remains valid.
var ErrPoolExhausted error = errors.New("pool slots exhausted")

// ErrPartitionExhausted is returned from double-ended arena allocations that would cause
// the low and high cursors to cross. Wrapped errors carry the side that failed. Both
// cursors are left unchanged.
var ErrPartitionExhausted error = errors.New("arena partition exhausted")

// ErrInvalidMarker is returned from Rewind when the marker is beyond the current cursor.
// Rewinding forward is a programmer error, kept distinct from resource exhaustion so it
// is never mistaken for legitimate memory pressure.
var ErrInvalidMarker error = errors.New("marker is beyond the current allocation cursor")

// ErrUseAfterDestroy is returned from any operation on an allocator whose Destroy method
// has already run. This is a programmer error- the allocator's regions are gone.
var ErrUseAfterDestroy error = errors.New("allocator used after destroy")

// ErrDoubleFree is returned by checked pools when a slot that is already on the free
// list is freed again. Unchecked pools do not detect this and will corrupt the free list.
var ErrDoubleFree error = errors.New("slot is already free")

// ErrNotOwned is returned from pool frees when the provided buffer is not a slot issued
// by this pool- a foreign pointer, a misaligned pointer, or a slot from another pool.
var ErrNotOwned error = errors.New("buffer is not a slot owned by this pool")
