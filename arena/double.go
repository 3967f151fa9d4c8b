package arena

import (
	cerrors "github.com/cockroachdb/errors"
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/pkg/errors"
	"github.com/vkngwrapper/arsenal/regions"
)

// Partition identifies one of the two sides of a DoubleEndedArena.
type Partition uint32

const (
	// PartitionLow is the side that grows upward from the base of the region
	PartitionLow Partition = iota
	// PartitionHigh is the side that grows downward from the end of the region
	PartitionHigh
)

var partitionMapping = map[Partition]string{
	PartitionLow:  "PartitionLow",
	PartitionHigh: "PartitionHigh",
}

func (p Partition) String() string {
	return partitionMapping[p]
}

// DoubleEndedArena is a single region with two bump cursors growing from opposite
// ends. Long-lived ("permanent") data is typically placed on one side and per-cycle
// ("temporary") data on the other, so the temporary side can be recycled with
// ResetHigh or ResetLow without disturbing the permanent side. The two sides share
// the region's free space and exhaustion occurs when the cursors would cross.
type DoubleEndedArena struct {
	source regions.RegionSource
	region regions.Region

	low  int
	high int

	lowAllocations  int
	highAllocations int
	lowEpoch        uint64
	highEpoch       uint64
	destroyed       bool
}

var _ regions.StatsReporter = &DoubleEndedArena{}

// NewDoubleEndedArena acquires one region of at least capacity bytes from source and
// builds a DoubleEndedArena over it. A nil source uses regions.SystemSource. Fails
// with regions.ErrOutOfMemory when the source cannot supply the region.
func NewDoubleEndedArena(source regions.RegionSource, capacity int) (*DoubleEndedArena, error) {
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

	return &DoubleEndedArena{
		source: source,
		region: region,
		high:   region.Capacity(),
	}, nil
}

// AllocLow returns a window of size bytes from the bottom of the region, at the
// smallest offset >= the low cursor that is a multiple of alignment. Fails with
// regions.ErrPartitionExhausted when the window would reach into the high side,
// leaving both cursors unchanged.
func (a *DoubleEndedArena) AllocLow(size int, alignment uint) (Window, error) {
	err := a.checkAlloc(size, alignment)
	if err != nil {
		return Window{}, err
	}

	offset := regions.AlignUp(a.low, alignment)
	if offset+size+regions.DebugMargin > a.high {
		return Window{}, cerrors.Wrapf(regions.ErrPartitionExhausted,
			"%s: allocation of %d bytes aligned to %d needs offset %d, but the high cursor is at %d",
			PartitionLow, size, alignment, offset, a.high)
	}

	regions.WriteMagicValue(a.region.Bytes, offset+size)

	a.low = offset + size + regions.DebugMargin
	a.lowAllocations++

	return Window{
		data:   a.region.Bytes[offset : offset+size : offset+size],
		offset: offset,
		epoch:  a.lowEpoch,
		life:   &a.lowEpoch,
	}, nil
}

// AllocHigh returns a window of size bytes from the top of the region. The window's
// offset is a multiple of alignment measured from the region's base, found by aligning
// the high cursor downward. Fails with regions.ErrPartitionExhausted when the window
// would reach into the low side, leaving both cursors unchanged.
func (a *DoubleEndedArena) AllocHigh(size int, alignment uint) (Window, error) {
	err := a.checkAlloc(size, alignment)
	if err != nil {
		return Window{}, err
	}

	offset := regions.AlignDown(a.high-size, alignment)
	if offset-regions.DebugMargin < a.low {
		return Window{}, cerrors.Wrapf(regions.ErrPartitionExhausted,
			"%s: allocation of %d bytes aligned to %d needs offset %d, but the low cursor is at %d",
			PartitionHigh, size, alignment, offset, a.low)
	}

	if regions.DebugMargin > 0 {
		regions.WriteMagicValue(a.region.Bytes, offset-regions.DebugMargin)
	}

	a.high = offset - regions.DebugMargin
	a.highAllocations++

	return Window{
		data:   a.region.Bytes[offset : offset+size : offset+size],
		offset: offset,
		epoch:  a.highEpoch,
		life:   &a.highEpoch,
	}, nil
}

func (a *DoubleEndedArena) checkAlloc(size int, alignment uint) error {
	if a.destroyed {
		return cerrors.Wrap(regions.ErrUseAfterDestroy, "double-ended arena")
	}
	if size <= 0 {
		return errors.Errorf("allocation size must be greater than 0, but was %d", size)
	}
	return regions.CheckPow2(alignment, "allocation alignment")
}

// ResetLow moves the low cursor back to the base of the region, invalidating every
// low-side window. The high side is untouched.
func (a *DoubleEndedArena) ResetLow() error {
	if a.destroyed {
		return cerrors.Wrap(regions.ErrUseAfterDestroy, "double-ended arena")
	}

	a.low = 0
	a.lowAllocations = 0
	a.lowEpoch++
	return nil
}

// ResetHigh moves the high cursor back to the end of the region, invalidating every
// high-side window. The low side is untouched.
func (a *DoubleEndedArena) ResetHigh() error {
	if a.destroyed {
		return cerrors.Wrap(regions.ErrUseAfterDestroy, "double-ended arena")
	}

	a.high = a.region.Capacity()
	a.highAllocations = 0
	a.highEpoch++
	return nil
}

// Reset recycles both sides at once.
func (a *DoubleEndedArena) Reset() error {
	err := a.ResetLow()
	if err != nil {
		return err
	}
	return a.ResetHigh()
}

// Destroy releases the arena's region back to its source. The arena must not be used
// afterward- every subsequent operation fails with regions.ErrUseAfterDestroy.
func (a *DoubleEndedArena) Destroy() error {
	if a.destroyed {
		return cerrors.Wrap(regions.ErrUseAfterDestroy, "double-ended arena destroyed twice")
	}

	a.source.Release(a.region)
	a.region = regions.Region{}
	a.low = 0
	a.high = 0
	a.lowAllocations = 0
	a.highAllocations = 0
	a.lowEpoch++
	a.highEpoch++
	a.destroyed = true
	return nil
}

// Capacity returns the size in bytes of the arena's region.
func (a *DoubleEndedArena) Capacity() int {
	return a.region.Capacity()
}

// UsedLow returns the number of bytes consumed by the low side, including alignment
// padding.
func (a *DoubleEndedArena) UsedLow() int {
	return a.low
}

// UsedHigh returns the number of bytes consumed by the high side, including alignment
// padding.
func (a *DoubleEndedArena) UsedHigh() int {
	return a.region.Capacity() - a.high
}

// FreeSpace returns the number of bytes remaining between the two cursors.
func (a *DoubleEndedArena) FreeSpace() int {
	return a.high - a.low
}

// AllocationCount returns the number of live allocations across both sides.
func (a *DoubleEndedArena) AllocationCount() int {
	return a.lowAllocations + a.highAllocations
}

// Epoch returns the current epoch of the requested side. A side's epoch increments
// every time its allocations are invalidated.
func (a *DoubleEndedArena) Epoch(side Partition) uint64 {
	if side == PartitionHigh {
		return a.highEpoch
	}
	return a.lowEpoch
}

// Validate performs internal consistency checks on the arena. When the implementation
// is functioning correctly it should not be possible for this method to return an
// error.
func (a *DoubleEndedArena) Validate() error {
	if a.destroyed {
		if !a.region.IsNil() {
			return errors.New("the arena is destroyed but still holds a region")
		}
		return nil
	}

	if a.low < 0 {
		return errors.Errorf("the low cursor is at %d, before the start of the region", a.low)
	}
	if a.high > a.region.Capacity() {
		return errors.Errorf("the high cursor is at %d, past the end of the %d-byte region", a.high, a.region.Capacity())
	}
	if a.low > a.high {
		return errors.Errorf("the low cursor (%d) has crossed the high cursor (%d)", a.low, a.high)
	}
	if a.lowAllocations < 0 || a.highAllocations < 0 {
		return errors.Errorf("the arena reports %d low and %d high live allocations", a.lowAllocations, a.highAllocations)
	}

	return nil
}

// AddStatistics sums this arena's allocation statistics into the statistics currently
// present in the provided regions.Statistics object. AllocationBytes includes alignment
// padding, since the arena does not account for it separately.
func (a *DoubleEndedArena) AddStatistics(stats *regions.Statistics) {
	if a.destroyed {
		return
	}

	stats.RegionCount++
	stats.RegionBytes += a.region.Capacity()
	stats.AllocationCount += a.lowAllocations + a.highAllocations
	stats.AllocationBytes += a.UsedLow() + a.UsedHigh()
}

// AddDetailedStatistics sums this arena's allocation statistics into the statistics
// currently present in the provided regions.DetailedStatistics object.
func (a *DoubleEndedArena) AddDetailedStatistics(stats *regions.DetailedStatistics) {
	a.AddStatistics(&stats.Statistics)
	if a.destroyed {
		return
	}

	if free := a.FreeSpace(); free > 0 {
		stats.AddUnusedRange(free)
	}
}

// JsonData populates a json object with information about this arena.
func (a *DoubleEndedArena) JsonData(json jwriter.ObjectState) {
	json.Name("TotalBytes").Int(a.region.Capacity())
	json.Name("UsedLowBytes").Int(a.UsedLow())
	json.Name("UsedHighBytes").Int(a.UsedHigh())
	json.Name("LowAllocations").Int(a.lowAllocations)
	json.Name("HighAllocations").Int(a.highAllocations)
	json.Name("LowEpoch").Int(int(a.lowEpoch))
	json.Name("HighEpoch").Int(int(a.highEpoch))
	json.Name("Destroyed").Bool(a.destroyed)
}
