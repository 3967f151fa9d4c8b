package arena_test

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/arsenal/regions"
	"github.com/vkngwrapper/arsenal/regions/arena"
	mock_regions "github.com/vkngwrapper/arsenal/regions/mocks"
	"go.uber.org/mock/gomock"
)

func TestBumpAlloc(t *testing.T) {
	bump, err := arena.NewBumpArena(nil, 64)
	require.NoError(t, err)
	defer func() {
		require.NoError(t, bump.Destroy())
	}()

	first, err := bump.Alloc(10, 8)
	require.NoError(t, err)
	require.Equal(t, 0, first.Offset())
	require.Equal(t, 10, first.Size())

	second, err := bump.Alloc(10, 8)
	require.NoError(t, err)
	require.Equal(t, 16, second.Offset())

	usedBefore := bump.Used()
	_, err = bump.Alloc(40, 8)
	require.Error(t, err)
	require.True(t, errors.Is(err, regions.ErrArenaExhausted))
	require.Equal(t, usedBefore, bump.Used())
	require.Equal(t, 2, bump.AllocationCount())

	require.NoError(t, bump.Validate())
}

func TestBumpAlignment(t *testing.T) {
	bump, err := arena.NewBumpArena(nil, 4096)
	require.NoError(t, err)
	defer func() {
		require.NoError(t, bump.Destroy())
	}()

	for _, alignment := range []uint{1, 2, 4, 8, 16, 32, 64} {
		window, err := bump.Alloc(3, alignment)
		require.NoError(t, err)
		require.Zero(t, window.Offset()%int(alignment))
	}
}

func TestBumpRejectsBadArguments(t *testing.T) {
	bump, err := arena.NewBumpArena(nil, 64)
	require.NoError(t, err)
	defer func() {
		require.NoError(t, bump.Destroy())
	}()

	_, err = bump.Alloc(0, 8)
	require.Error(t, err)

	_, err = bump.Alloc(-5, 8)
	require.Error(t, err)

	_, err = bump.Alloc(8, 3)
	require.Error(t, err)
	require.True(t, errors.Is(err, regions.PowerOfTwoError))

	require.Equal(t, 0, bump.Used())
}

func TestBumpMonotonicity(t *testing.T) {
	bump, err := arena.NewBumpArena(nil, 1024)
	require.NoError(t, err)
	defer func() {
		require.NoError(t, bump.Destroy())
	}()

	lastEnd := 0
	for i := 0; i < 10; i++ {
		window, err := bump.Alloc(13, 4)
		require.NoError(t, err)
		require.GreaterOrEqual(t, window.Offset(), lastEnd)
		lastEnd = window.Offset() + window.Size()
	}

	require.LessOrEqual(t, lastEnd, bump.Capacity())
}

func TestBumpReset(t *testing.T) {
	bump, err := arena.NewBumpArena(nil, 64)
	require.NoError(t, err)
	defer func() {
		require.NoError(t, bump.Destroy())
	}()

	stale, err := bump.Alloc(48, 8)
	require.NoError(t, err)
	require.True(t, stale.Valid())

	require.NoError(t, bump.Reset())
	require.False(t, stale.Valid())
	require.Equal(t, 0, bump.Used())
	require.Equal(t, 0, bump.AllocationCount())

	fresh, err := bump.Alloc(64, 8)
	require.NoError(t, err)
	require.Equal(t, 0, fresh.Offset())
	require.True(t, fresh.Valid())
}

func TestBumpOutOfMemory(t *testing.T) {
	source := regions.NewLimitSource(regions.SystemSource{}, 32)

	_, err := arena.NewBumpArena(source, 64)
	require.Error(t, err)
	require.True(t, errors.Is(err, regions.ErrOutOfMemory))
	require.Equal(t, 0, source.BytesInUse())
}

func TestBumpDestroy(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	source := mock_regions.NewMockRegionSource(ctrl)
	region := regions.Region{Bytes: make([]byte, 64)}
	source.EXPECT().Acquire(64).Return(region, nil)
	source.EXPECT().Release(gomock.Any()).Times(1)

	bump, err := arena.NewBumpArena(source, 64)
	require.NoError(t, err)

	window, err := bump.Alloc(8, 8)
	require.NoError(t, err)

	require.NoError(t, bump.Destroy())
	require.False(t, window.Valid())
	require.NoError(t, bump.Validate())

	_, err = bump.Alloc(8, 8)
	require.True(t, errors.Is(err, regions.ErrUseAfterDestroy))
	require.True(t, errors.Is(bump.Reset(), regions.ErrUseAfterDestroy))
	require.True(t, errors.Is(bump.Destroy(), regions.ErrUseAfterDestroy))
}

func TestBumpStatistics(t *testing.T) {
	bump, err := arena.NewBumpArena(nil, 1000)
	require.NoError(t, err)
	defer func() {
		require.NoError(t, bump.Destroy())
	}()

	_, err = bump.Alloc(100, 1)
	require.NoError(t, err)
	_, err = bump.Alloc(50, 1)
	require.NoError(t, err)

	var stats regions.DetailedStatistics
	stats.Clear()
	bump.AddDetailedStatistics(&stats)

	require.Equal(t, regions.DetailedStatistics{
		Statistics: regions.Statistics{
			RegionCount:     1,
			RegionBytes:     1000,
			AllocationCount: 2,
			AllocationBytes: 150,
		},
		UnusedRangeCount:   1,
		AllocationSizeMin:  math.MaxInt,
		AllocationSizeMax:  0,
		UnusedRangeSizeMin: 850,
		UnusedRangeSizeMax: 850,
	}, stats)

	str := regions.BuildStatsString(bump)
	require.Contains(t, str, `"TotalBytes":1000`)
	require.Contains(t, str, `"UsedBytes":150`)
}

func TestTypedAlloc(t *testing.T) {
	bump, err := arena.NewBumpArena(nil, 1024)
	require.NoError(t, err)
	defer func() {
		require.NoError(t, bump.Destroy())
	}()

	// Force the cursor off of T's natural alignment
	_, err = bump.Alloc(1, 1)
	require.NoError(t, err)

	value, err := arena.Alloc[uint64](bump)
	require.NoError(t, err)
	require.Zero(t, *value)

	*value = 0xDEADBEEF
	require.Equal(t, uint64(0xDEADBEEF), *value)

	slice, err := arena.AllocSlice[uint32](bump, 16)
	require.NoError(t, err)
	require.Len(t, slice, 16)
	for _, element := range slice {
		require.Zero(t, element)
	}
}
