package pool_test

import (
	"errors"
	"testing"
	"unsafe"

	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/arsenal/regions"
	mock_regions "github.com/vkngwrapper/arsenal/regions/mocks"
	"github.com/vkngwrapper/arsenal/regions/pool"
	"go.uber.org/mock/gomock"
)

func bufferAddress(buf []byte) uintptr {
	return uintptr(unsafe.Pointer(unsafe.SliceData(buf)))
}

func TestPoolAllocSpacing(t *testing.T) {
	allocator, err := pool.NewPool(nil, pool.PoolCreateInfo{
		SlotSize:       16,
		SlotsPerRegion: 4,
	})
	require.NoError(t, err)
	defer func() {
		require.NoError(t, allocator.Destroy())
	}()

	require.Equal(t, 0, allocator.RegionCount())

	var slots [][]byte
	for i := 0; i < 4; i++ {
		slot, err := allocator.Alloc()
		require.NoError(t, err)
		require.Len(t, slot, 16)
		slots = append(slots, slot)
	}

	require.Equal(t, 1, allocator.RegionCount())
	for i := 1; i < 4; i++ {
		require.Equal(t, uintptr(16), bufferAddress(slots[i])-bufferAddress(slots[i-1]))
	}

	// A fifth allocation formats a second region
	fifth, err := allocator.Alloc()
	require.NoError(t, err)
	require.Equal(t, 2, allocator.RegionCount())
	require.Equal(t, 3, allocator.FreeSlotCount())

	// A freed slot is handed right back out
	first := slots[0]
	require.NoError(t, allocator.Free(first))
	recycled, err := allocator.Alloc()
	require.NoError(t, err)
	require.Equal(t, bufferAddress(first), bufferAddress(recycled))

	require.NoError(t, allocator.Free(fifth))
	require.NoError(t, allocator.Validate())
}

func TestPoolSlotRounding(t *testing.T) {
	allocator, err := pool.NewPool(nil, pool.PoolCreateInfo{
		SlotSize:       3,
		SlotsPerRegion: 2,
	})
	require.NoError(t, err)
	require.Equal(t, 8, allocator.SlotSize())
	require.NoError(t, allocator.Destroy())

	allocator, err = pool.NewPool(nil, pool.PoolCreateInfo{
		SlotSize:       12,
		SlotsPerRegion: 2,
	})
	require.NoError(t, err)
	require.Equal(t, 16, allocator.SlotSize())
	require.NoError(t, allocator.Destroy())
}

func TestPoolConservation(t *testing.T) {
	allocator, err := pool.NewPool(nil, pool.PoolCreateInfo{
		SlotSize:       32,
		SlotsPerRegion: 8,
	})
	require.NoError(t, err)
	defer func() {
		require.NoError(t, allocator.Destroy())
	}()

	var slots [][]byte
	for i := 0; i < 12; i++ {
		slot, err := allocator.Alloc()
		require.NoError(t, err)
		slots = append(slots, slot)

		require.Equal(t, allocator.SlotCount(), allocator.AllocationCount()+allocator.FreeSlotCount())
		require.NoError(t, allocator.Validate())
	}

	require.Equal(t, 2, allocator.RegionCount())
	require.Equal(t, 16, allocator.SlotCount())
	require.Equal(t, 12, allocator.AllocationCount())

	for _, slot := range slots {
		require.NoError(t, allocator.Free(slot))
		require.Equal(t, allocator.SlotCount(), allocator.AllocationCount()+allocator.FreeSlotCount())
		require.NoError(t, allocator.Validate())
	}

	require.Equal(t, 0, allocator.AllocationCount())
	require.Equal(t, 16, allocator.FreeSlotCount())
}

func TestPoolMaxRegions(t *testing.T) {
	allocator, err := pool.NewPool(nil, pool.PoolCreateInfo{
		SlotSize:       16,
		SlotsPerRegion: 2,
		MaxRegions:     1,
	})
	require.NoError(t, err)
	defer func() {
		require.NoError(t, allocator.Destroy())
	}()

	first, err := allocator.Alloc()
	require.NoError(t, err)
	_, err = allocator.Alloc()
	require.NoError(t, err)

	_, err = allocator.Alloc()
	require.Error(t, err)
	require.True(t, errors.Is(err, regions.ErrPoolExhausted))

	// The pool is still usable after exhaustion
	require.NoError(t, allocator.Free(first))
	recycled, err := allocator.Alloc()
	require.NoError(t, err)
	require.Equal(t, bufferAddress(first), bufferAddress(recycled))
}

func TestPoolOutOfMemory(t *testing.T) {
	source := regions.NewLimitSource(regions.SystemSource{}, 16)

	allocator, err := pool.NewPool(source, pool.PoolCreateInfo{
		SlotSize:       16,
		SlotsPerRegion: 4,
	})
	require.NoError(t, err)
	defer func() {
		require.NoError(t, allocator.Destroy())
	}()

	_, err = allocator.Alloc()
	require.Error(t, err)
	require.True(t, errors.Is(err, regions.ErrOutOfMemory))
	require.Equal(t, 0, allocator.RegionCount())
}

func TestPoolFreeForeignBuffer(t *testing.T) {
	allocator, err := pool.NewPool(nil, pool.PoolCreateInfo{
		SlotSize:       16,
		SlotsPerRegion: 4,
	})
	require.NoError(t, err)
	defer func() {
		require.NoError(t, allocator.Destroy())
	}()

	slot, err := allocator.Alloc()
	require.NoError(t, err)

	foreign := make([]byte, 16)
	err = allocator.Free(foreign)
	require.Error(t, err)
	require.True(t, errors.Is(err, regions.ErrNotOwned))

	// A pointer into a slot's interior is not a slot
	err = allocator.Free(slot[4:])
	require.Error(t, err)
	require.True(t, errors.Is(err, regions.ErrNotOwned))

	require.NoError(t, allocator.Free(slot))
}

func TestPoolCheckedDoubleFree(t *testing.T) {
	allocator, err := pool.NewPool(nil, pool.PoolCreateInfo{
		SlotSize:       16,
		SlotsPerRegion: 4,
		Flags:          pool.PoolCreateChecked,
	})
	require.NoError(t, err)
	defer func() {
		require.NoError(t, allocator.Destroy())
	}()

	slot, err := allocator.Alloc()
	require.NoError(t, err)
	require.NoError(t, allocator.Free(slot))

	err = allocator.Free(slot)
	require.Error(t, err)
	require.True(t, errors.Is(err, regions.ErrDoubleFree))

	require.NoError(t, allocator.Validate())
	require.Equal(t, 4, allocator.FreeSlotCount())
}

func TestPoolDestroyReleasesRegions(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	source := mock_regions.NewMockRegionSource(ctrl)
	source.EXPECT().Acquire(32).
		DoAndReturn(func(size int) (regions.Region, error) {
			return regions.Region{Bytes: make([]byte, size)}, nil
		}).
		Times(2)
	source.EXPECT().Release(gomock.Any()).Times(2)

	allocator, err := pool.NewPool(source, pool.PoolCreateInfo{
		SlotSize:       16,
		SlotsPerRegion: 2,
	})
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err = allocator.Alloc()
		require.NoError(t, err)
	}
	require.Equal(t, 2, allocator.RegionCount())

	require.NoError(t, allocator.Destroy())

	_, err = allocator.Alloc()
	require.True(t, errors.Is(err, regions.ErrUseAfterDestroy))
	require.True(t, errors.Is(allocator.Free(nil), regions.ErrUseAfterDestroy))
	require.True(t, errors.Is(allocator.Destroy(), regions.ErrUseAfterDestroy))
}

func TestPoolStatistics(t *testing.T) {
	allocator, err := pool.NewPool(nil, pool.PoolCreateInfo{
		SlotSize:       16,
		SlotsPerRegion: 4,
	})
	require.NoError(t, err)
	defer func() {
		require.NoError(t, allocator.Destroy())
	}()

	slot, err := allocator.Alloc()
	require.NoError(t, err)
	_, err = allocator.Alloc()
	require.NoError(t, err)

	var stats regions.DetailedStatistics
	stats.Clear()
	allocator.AddDetailedStatistics(&stats)

	require.Equal(t, regions.DetailedStatistics{
		Statistics: regions.Statistics{
			RegionCount:     1,
			RegionBytes:     64,
			AllocationCount: 2,
			AllocationBytes: 32,
		},
		UnusedRangeCount:   2,
		AllocationSizeMin:  16,
		AllocationSizeMax:  16,
		UnusedRangeSizeMin: 16,
		UnusedRangeSizeMax: 16,
	}, stats)

	str := regions.BuildStatsString(allocator)
	require.Contains(t, str, `"TotalSlots":4`)
	require.Contains(t, str, `"InUseSlots":2`)

	require.NoError(t, allocator.Free(slot))
}
