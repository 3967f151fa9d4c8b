// Package arena provides allocators that carve many small allocations out of one
// contiguous memory region with nothing but cursor arithmetic: BumpArena (linear
// allocation, wholesale reset), StackAllocator (marker/rewind for nested scopes) and
// DoubleEndedArena (two cursors growing from opposite ends of a single region).
//
// None of the allocators in this package synchronize internally. Each is meant to be
// owned by a single goroutine for a bounded scope- a request, a frame, a compilation
// phase- and reset or destroyed when the scope ends.
package arena

import (
	cerrors "github.com/cockroachdb/errors"
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/pkg/errors"
	"github.com/vkngwrapper/arsenal/regions"
)

// BumpArena satisfies allocation requests by advancing a single cursor through one
// region. Individual allocations cannot be freed- the whole arena is recycled at once
// with Reset, which invalidates every window it has issued.
type BumpArena struct {
	source regions.RegionSource
	region regions.Region

	used            int
	allocationCount int
	epoch           uint64
	destroyed       bool
}

var _ regions.StatsReporter = &BumpArena{}

// NewBumpArena acquires one region of at least capacity bytes from source and builds a
// BumpArena over it. A nil source uses regions.SystemSource. Fails with
// regions.ErrOutOfMemory when the source cannot supply the region.
func NewBumpArena(source regions.RegionSource, capacity int) (*BumpArena, error) {
	if capacity <= 0 {
		return nil, errors.Errorf("arena capacity must be greater than 0, but was %d", capacity)
	}
	if source == nil {
		source = regions.SystemSource{}
	}

	region, err := source.Acquire(capacity)
	if err != nil {
		return nil, err
	}

	return &BumpArena{
		source: source,
		region: region,
	}, nil
}

// Alloc returns a window of size bytes whose offset from the region base is a multiple
// of alignment, which must be a power of two. On failure the arena is left unchanged:
// either the window fits in the remaining capacity and the cursor advances past it, or
// regions.ErrArenaExhausted is returned and nothing moves.
func (a *BumpArena) Alloc(size int, alignment uint) (Window, error) {
	if a.destroyed {
		return Window{}, cerrors.Wrap(regions.ErrUseAfterDestroy, "bump arena")
	}
	if size <= 0 {
		return Window{}, errors.Errorf("allocation size must be greater than 0, but was %d", size)
	}
	err := regions.CheckPow2(alignment, "allocation alignment")
	if err != nil {
		return Window{}, err
	}

	offset := regions.AlignUp(a.used, alignment)
	if offset+size+regions.DebugMargin > a.region.Capacity() {
		return Window{}, cerrors.Wrapf(regions.ErrArenaExhausted,
			"allocation of %d bytes aligned to %d needs offset %d in a %d-byte arena with %d bytes used",
			size, alignment, offset, a.region.Capacity(), a.used)
	}

	regions.WriteMagicValue(a.region.Bytes, offset+size)

	a.used = offset + size + regions.DebugMargin
	a.allocationCount++

	return Window{
		data:   a.region.Bytes[offset : offset+size : offset+size],
		offset: offset,
		epoch:  a.epoch,
		life:   &a.epoch,
	}, nil
}

// Reset moves the cursor back to the start of the region, invalidating every window the
// arena has issued. The arena neither detects nor prevents continued use of stale
// windows beyond the epoch tag they carry.
func (a *BumpArena) Reset() error {
	if a.destroyed {
		return cerrors.Wrap(regions.ErrUseAfterDestroy, "bump arena")
	}

	a.used = 0
	a.allocationCount = 0
	a.epoch++
	return nil
}

// Destroy releases the arena's region back to its source. The arena must not be used
// afterward- every subsequent operation fails with regions.ErrUseAfterDestroy.
func (a *BumpArena) Destroy() error {
	if a.destroyed {
		return cerrors.Wrap(regions.ErrUseAfterDestroy, "bump arena destroyed twice")
	}

	a.source.Release(a.region)
	a.region = regions.Region{}
	a.used = 0
	a.allocationCount = 0
	a.epoch++
	a.destroyed = true
	return nil
}

// Capacity returns the size in bytes of the arena's region.
func (a *BumpArena) Capacity() int {
	return a.region.Capacity()
}

// Used returns the number of bytes consumed so far, including alignment padding.
func (a *BumpArena) Used() int {
	return a.used
}

// FreeSpace returns the number of bytes remaining past the cursor.
func (a *BumpArena) FreeSpace() int {
	return a.region.Capacity() - a.used
}

// AllocationCount returns the number of live allocations- successful Alloc calls since
// the last Reset.
func (a *BumpArena) AllocationCount() int {
	return a.allocationCount
}

// Epoch returns the arena's current epoch. The epoch increments every time existing
// allocations are invalidated (Reset and Destroy).
func (a *BumpArena) Epoch() uint64 {
	return a.epoch
}

// Validate performs internal consistency checks on the arena. When the implementation
// is functioning correctly it should not be possible for this method to return an
// error.
func (a *BumpArena) Validate() error {
	if a.destroyed {
		if !a.region.IsNil() {
			return errors.New("the arena is destroyed but still holds a region")
		}
		return nil
	}

	if a.used < 0 {
		return errors.Errorf("the cursor is at %d, before the start of the region", a.used)
	}
	if a.used > a.region.Capacity() {
		return errors.Errorf("the cursor is at %d, past the end of the %d-byte region", a.used, a.region.Capacity())
	}
	if a.allocationCount < 0 {
		return errors.Errorf("the arena reports %d live allocations", a.allocationCount)
	}
	if a.allocationCount > 0 && a.used == 0 {
		return errors.Errorf("the arena reports %d live allocations but no bytes used", a.allocationCount)
	}

	return nil
}

// AddStatistics sums this arena's allocation statistics into the statistics currently
// present in the provided regions.Statistics object. AllocationBytes includes alignment
// padding, since the arena does not account for it separately.
func (a *BumpArena) AddStatistics(stats *regions.Statistics) {
	if a.destroyed {
		return
	}

	stats.RegionCount++
	stats.RegionBytes += a.region.Capacity()
	stats.AllocationCount += a.allocationCount
	stats.AllocationBytes += a.used
}

// AddDetailedStatistics sums this arena's allocation statistics into the statistics
// currently present in the provided regions.DetailedStatistics object.
func (a *BumpArena) AddDetailedStatistics(stats *regions.DetailedStatistics) {
	a.AddStatistics(&stats.Statistics)
	if a.destroyed {
		return
	}

	if free := a.FreeSpace(); free > 0 {
		stats.AddUnusedRange(free)
	}
}

// JsonData populates a json object with information about this arena.
func (a *BumpArena) JsonData(json jwriter.ObjectState) {
	json.Name("TotalBytes").Int(a.region.Capacity())
	json.Name("UsedBytes").Int(a.used)
	json.Name("Allocations").Int(a.allocationCount)
	json.Name("Epoch").Int(int(a.epoch))
	json.Name("Destroyed").Bool(a.destroyed)
}
