// Package pool provides a fixed-slot allocator built from one or more regions divided
// into equal-size slots chained through an intrusive free list, giving O(1) allocate
// and deallocate. Freed slot memory doubles as the free-list link, so the pool carries
// no per-slot bookkeeping of its own- the optional checked mode adds some to convert
// double-free and foreign-free corruption into reported errors.
package pool

import (
	"encoding/binary"
	"math"
	"unsafe"

	cerrors "github.com/cockroachdb/errors"
	"github.com/dolthub/swiss"
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/pkg/errors"
	"github.com/vkngwrapper/arsenal/regions"
	"golang.org/x/exp/slog"
)

const (
	// linkSize is the number of leading bytes of a free slot that hold its free-list
	// link, and therefore the minimum slot size
	linkSize = 8
	// minSlotAlignment is the boundary every slot is placed on within its region
	minSlotAlignment uint = 8

	// noSlot is the free-list sentinel
	noSlot uint64 = math.MaxUint64
)

// PoolCreateFlags are optional behaviors for a PoolAllocator, requested at creation.
type PoolCreateFlags uint32

const (
	// PoolCreateChecked maintains a set of free slots so that double frees and frees of
	// buffers the pool does not own are reported as errors instead of corrupting the
	// free list. It costs one map entry per free slot.
	PoolCreateChecked PoolCreateFlags = 1 << iota
)

// PoolCreateInfo parametrizes a new PoolAllocator.
type PoolCreateInfo struct {
	// SlotSize is the size in bytes of each slot. It is rounded up to at least the
	// free-list link size and to the pool's minimum slot alignment.
	SlotSize int
	// SlotsPerRegion is the number of slots each acquired region is divided into.
	SlotsPerRegion int
	// MaxRegions caps how many regions the pool may acquire. Zero means unlimited. With
	// a cap in place, allocation from a full pool fails with regions.ErrPoolExhausted
	// rather than growing.
	MaxRegions int
	Flags      PoolCreateFlags
}

// PoolAllocator hands out fixed-size slots in O(1) by popping the head of an intrusive
// free list threaded through the free slots themselves. When the list is empty it
// acquires one more region from its source and formats it into slots. Regions are only
// released on Destroy- never individually, since a stale free list could otherwise
// reference a released region.
type PoolAllocator struct {
	source regions.RegionSource

	slotSize       int
	slotsPerRegion int
	maxRegions     int

	owned     []regions.Region
	freeHead  uint64
	freeCount int

	// freeSet mirrors the free list when PoolCreateChecked is set
	freeSet   *swiss.Map[uint64, struct{}]
	destroyed bool
}

var _ regions.StatsReporter = &PoolAllocator{}

// NewPool builds a PoolAllocator from the provided create info. No region is acquired
// until the first Alloc. A nil source uses regions.SystemSource.
func NewPool(source regions.RegionSource, info PoolCreateInfo) (*PoolAllocator, error) {
	if info.SlotSize <= 0 {
		return nil, errors.Errorf("slot size must be greater than 0, but was %d", info.SlotSize)
	}
	if info.SlotsPerRegion <= 0 {
		return nil, errors.Errorf("slots per region must be greater than 0, but was %d", info.SlotsPerRegion)
	}
	if info.MaxRegions < 0 {
		return nil, errors.Errorf("max regions must not be negative, but was %d", info.MaxRegions)
	}
	if source == nil {
		source = regions.SystemSource{}
	}

	slotSize := info.SlotSize
	if slotSize < linkSize {
		slotSize = linkSize
	}
	slotSize = regions.AlignUp(slotSize, minSlotAlignment)

	pool := &PoolAllocator{
		source:         source,
		slotSize:       slotSize,
		slotsPerRegion: info.SlotsPerRegion,
		maxRegions:     info.MaxRegions,
		freeHead:       noSlot,
	}

	if info.Flags&PoolCreateChecked != 0 {
		pool.freeSet = swiss.NewMap[uint64, struct{}](uint32(info.SlotsPerRegion))
	}

	return pool, nil
}

func makeSlotRef(regionIndex, slotIndex int) uint64 {
	return uint64(regionIndex)<<32 | uint64(uint32(slotIndex))
}

func splitSlotRef(ref uint64) (regionIndex, slotIndex int) {
	return int(ref >> 32), int(uint32(ref))
}

func (p *PoolAllocator) slotBytes(ref uint64) []byte {
	regionIndex, slotIndex := splitSlotRef(ref)
	offset := slotIndex * p.slotSize
	return p.owned[regionIndex].Bytes[offset : offset+p.slotSize : offset+p.slotSize]
}

// Alloc pops a slot off the free list and returns it in amortized O(1). When the free
// list is empty it acquires one more region, formats it into slots linked in address
// order, and retries- failing with regions.ErrPoolExhausted if the pool's region count
// is capped, or with regions.ErrOutOfMemory if the source cannot supply a region.
//
// The returned buffer's contents are undefined; the pool treats in-use slots as opaque
// caller storage.
func (p *PoolAllocator) Alloc() ([]byte, error) {
	if p.destroyed {
		return nil, cerrors.Wrap(regions.ErrUseAfterDestroy, "pool allocator")
	}

	if p.freeHead == noSlot {
		err := p.grow()
		if err != nil {
			return nil, err
		}
	}

	ref := p.freeHead
	slot := p.slotBytes(ref)
	p.freeHead = binary.LittleEndian.Uint64(slot)
	p.freeCount--

	if p.freeSet != nil {
		p.freeSet.Delete(ref)
	}

	return slot, nil
}

// grow acquires one more region and prepends its slots to the free list in address
// order.
func (p *PoolAllocator) grow() error {
	if p.maxRegions > 0 && len(p.owned) >= p.maxRegions {
		return cerrors.Wrapf(regions.ErrPoolExhausted,
			"all %d slots across the pool's maximum of %d regions are in use",
			len(p.owned)*p.slotsPerRegion, p.maxRegions)
	}

	region, err := p.source.Acquire(p.slotSize * p.slotsPerRegion)
	if err != nil {
		return err
	}

	regionIndex := len(p.owned)
	p.owned = append(p.owned, region)

	for slotIndex := 0; slotIndex < p.slotsPerRegion; slotIndex++ {
		next := makeSlotRef(regionIndex, slotIndex+1)
		if slotIndex == p.slotsPerRegion-1 {
			next = p.freeHead
		}

		binary.LittleEndian.PutUint64(region.Bytes[slotIndex*p.slotSize:], next)

		if p.freeSet != nil {
			p.freeSet.Put(makeSlotRef(regionIndex, slotIndex), struct{}{})
		}
	}

	p.freeHead = makeSlotRef(regionIndex, 0)
	p.freeCount += p.slotsPerRegion
	return nil
}

// Free pushes a slot previously returned by Alloc back onto the free list in O(1).
// The buffer must not be used after Free returns.
//
// Buffers that are not slot-aligned or that belong to some other allocator fail with
// regions.ErrNotOwned. Freeing a slot twice corrupts the free list unless the pool was
// created with PoolCreateChecked, in which case it fails with regions.ErrDoubleFree.
func (p *PoolAllocator) Free(buf []byte) error {
	if p.destroyed {
		return cerrors.Wrap(regions.ErrUseAfterDestroy, "pool allocator")
	}
	if len(buf) == 0 {
		return cerrors.Wrap(regions.ErrNotOwned, "cannot free an empty buffer")
	}

	ref, err := p.resolveSlot(buf)
	if err != nil {
		return err
	}

	if p.freeSet != nil {
		if p.freeSet.Has(ref) {
			regionIndex, slotIndex := splitSlotRef(ref)
			return cerrors.Wrapf(regions.ErrDoubleFree, "slot %d of region %d", slotIndex, regionIndex)
		}
		p.freeSet.Put(ref, struct{}{})
		p.poisonSlot(ref)
	}

	slot := p.slotBytes(ref)
	binary.LittleEndian.PutUint64(slot, p.freeHead)
	p.freeHead = ref
	p.freeCount++
	return nil
}

// resolveSlot maps a caller buffer back to the slot it was carved from, verifying that
// the buffer lies inside an owned region on a slot boundary.
func (p *PoolAllocator) resolveSlot(buf []byte) (uint64, error) {
	bufBase := uintptr(unsafe.Pointer(unsafe.SliceData(buf)))

	for regionIndex := range p.owned {
		data := p.owned[regionIndex].Bytes
		regionBase := uintptr(unsafe.Pointer(unsafe.SliceData(data)))

		if bufBase < regionBase || bufBase >= regionBase+uintptr(len(data)) {
			continue
		}

		offset := int(bufBase - regionBase)
		if offset%p.slotSize != 0 {
			return 0, cerrors.Wrapf(regions.ErrNotOwned,
				"buffer is inside region %d at offset %d, which is not a multiple of the %d-byte slot size",
				regionIndex, offset, p.slotSize)
		}

		return makeSlotRef(regionIndex, offset/p.slotSize), nil
	}

	return 0, cerrors.Wrap(regions.ErrNotOwned, "buffer does not lie inside any region owned by this pool")
}

// poisonSlot overwrites a freed slot's payload with the corruption-detection pattern in
// debug builds, making use-after-free reads recognizable.
func (p *PoolAllocator) poisonSlot(ref uint64) {
	if regions.DebugMargin == 0 {
		return
	}

	regionIndex, slotIndex := splitSlotRef(ref)
	data := p.owned[regionIndex].Bytes
	for offset := slotIndex*p.slotSize + linkSize; offset+regions.DebugMargin <= (slotIndex+1)*p.slotSize; offset += regions.DebugMargin {
		regions.WriteMagicValue(data, offset)
	}
}

// Destroy releases every owned region back to the source. Slots must not be used
// afterward- every subsequent operation fails with regions.ErrUseAfterDestroy.
func (p *PoolAllocator) Destroy() error {
	if p.destroyed {
		return cerrors.Wrap(regions.ErrUseAfterDestroy, "pool allocator destroyed twice")
	}

	for _, region := range p.owned {
		p.source.Release(region)
	}

	p.owned = nil
	p.freeHead = noSlot
	p.freeCount = 0
	p.freeSet = nil
	p.destroyed = true
	return nil
}

// SlotSize returns the size in bytes of each slot, after rounding.
func (p *PoolAllocator) SlotSize() int {
	return p.slotSize
}

// SlotsPerRegion returns the number of slots each acquired region is divided into.
func (p *PoolAllocator) SlotsPerRegion() int {
	return p.slotsPerRegion
}

// RegionCount returns the number of regions the pool currently owns.
func (p *PoolAllocator) RegionCount() int {
	return len(p.owned)
}

// SlotCount returns the total number of formatted slots across all owned regions.
func (p *PoolAllocator) SlotCount() int {
	return len(p.owned) * p.slotsPerRegion
}

// FreeSlotCount returns the number of slots currently on the free list.
func (p *PoolAllocator) FreeSlotCount() int {
	return p.freeCount
}

// AllocationCount returns the number of slots currently lent out to callers.
func (p *PoolAllocator) AllocationCount() int {
	return p.SlotCount() - p.freeCount
}

// Validate walks the free list and performs internal consistency checks: every link
// must reference a formatted slot, the list must be cycle-free, and its length must
// match the pool's free-slot count (the conservation property- slots in use plus slots
// reachable through the free list always equals the formatted slot count). When the
// implementation is functioning correctly it should not be possible for this method to
// return an error.
func (p *PoolAllocator) Validate() error {
	if p.destroyed {
		if p.owned != nil {
			return errors.New("the pool is destroyed but still holds regions")
		}
		return nil
	}

	walked := 0
	for ref := p.freeHead; ref != noSlot; {
		regionIndex, slotIndex := splitSlotRef(ref)
		if regionIndex >= len(p.owned) {
			return errors.Errorf("the free list references region %d, but the pool owns %d regions", regionIndex, len(p.owned))
		}
		if slotIndex >= p.slotsPerRegion {
			return errors.Errorf("the free list references slot %d, but regions are formatted into %d slots", slotIndex, p.slotsPerRegion)
		}

		walked++
		if walked > p.SlotCount() {
			return errors.New("the free list contains a cycle")
		}

		if p.freeSet != nil && !p.freeSet.Has(ref) {
			return errors.Errorf("slot %d of region %d is on the free list but not in the checked free set", slotIndex, regionIndex)
		}

		ref = binary.LittleEndian.Uint64(p.slotBytes(ref))
	}

	if walked != p.freeCount {
		return errors.Errorf("the free list contains %d slots, but the pool expects %d to be free", walked, p.freeCount)
	}
	if p.freeSet != nil && p.freeSet.Count() != p.freeCount {
		return errors.Errorf("the checked free set contains %d slots, but the pool expects %d to be free", p.freeSet.Count(), p.freeCount)
	}

	return nil
}

// AddStatistics sums this pool's allocation statistics into the statistics currently
// present in the provided regions.Statistics object.
func (p *PoolAllocator) AddStatistics(stats *regions.Statistics) {
	if p.destroyed {
		return
	}

	inUse := p.AllocationCount()
	stats.RegionCount += len(p.owned)
	stats.RegionBytes += p.SlotCount() * p.slotSize
	stats.AllocationCount += inUse
	stats.AllocationBytes += inUse * p.slotSize
}

// AddDetailedStatistics sums this pool's allocation statistics into the statistics
// currently present in the provided regions.DetailedStatistics object. Each free slot
// counts as one unused range, matching how the free list fragments the regions.
func (p *PoolAllocator) AddDetailedStatistics(stats *regions.DetailedStatistics) {
	if p.destroyed {
		return
	}

	inUse := p.AllocationCount()
	stats.RegionCount += len(p.owned)
	stats.RegionBytes += p.SlotCount() * p.slotSize

	for i := 0; i < inUse; i++ {
		stats.AddAllocation(p.slotSize)
	}
	for i := 0; i < p.freeCount; i++ {
		stats.AddUnusedRange(p.slotSize)
	}
}

// JsonData populates a json object with information about this pool.
func (p *PoolAllocator) JsonData(json jwriter.ObjectState) {
	json.Name("SlotSize").Int(p.slotSize)
	json.Name("SlotsPerRegion").Int(p.slotsPerRegion)
	json.Name("Regions").Int(len(p.owned))
	json.Name("TotalSlots").Int(p.SlotCount())
	json.Name("FreeSlots").Int(p.freeCount)
	json.Name("InUseSlots").Int(p.AllocationCount())
	json.Name("Checked").Bool(p.freeSet != nil)
	json.Name("Destroyed").Bool(p.destroyed)
}

// DebugLogRegions walks the free list and logs a per-region occupancy summary to the
// provided logger at debug level. This is slow and should only be used for diagnostics.
func (p *PoolAllocator) DebugLogRegions(logger *slog.Logger) {
	freePerRegion := make([]int, len(p.owned))
	for ref := p.freeHead; ref != noSlot; {
		regionIndex, _ := splitSlotRef(ref)
		freePerRegion[regionIndex]++
		ref = binary.LittleEndian.Uint64(p.slotBytes(ref))
	}

	for regionIndex, free := range freePerRegion {
		logger.Debug("pool region",
			slog.Int("region", regionIndex),
			slog.Int("slotSize", p.slotSize),
			slog.Int("freeSlots", free),
			slog.Int("inUseSlots", p.slotsPerRegion-free),
		)
	}
}
