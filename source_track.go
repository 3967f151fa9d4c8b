package regions

import (
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"golang.org/x/exp/slog"
)

// SourceStatistics is a snapshot of the counters gathered by a TrackingSource.
type SourceStatistics struct {
	// AcquireCount is the number of successful Acquire calls
	AcquireCount int
	// ReleaseCount is the number of Release calls
	ReleaseCount int
	// BytesAcquired is the total number of bytes handed out across all Acquire calls
	BytesAcquired int
	// BytesReleased is the total number of bytes returned across all Release calls
	BytesReleased int
	// BytesInUse is the number of bytes in live regions right now
	BytesInUse int
	// PeakBytesInUse is the high-water mark of BytesInUse
	PeakBytesInUse int
}

// LiveRegionCount returns the number of regions that have been acquired but not yet
// released. Allocators release all their regions on Destroy, so a nonzero value after
// all allocators are destroyed indicates a leak.
func (s SourceStatistics) LiveRegionCount() int {
	return s.AcquireCount - s.ReleaseCount
}

// TrackingSource wraps another RegionSource and counts traffic through it: acquires,
// releases, byte totals and the in-use high-water mark. It is useful for sizing region
// budgets and for catching allocators that are destroyed without releasing everything
// they acquired.
type TrackingSource struct {
	inner RegionSource
	stats SourceStatistics
}

var _ RegionSource = &TrackingSource{}

// NewTrackingSource creates a TrackingSource wrapping inner.
func NewTrackingSource(inner RegionSource) *TrackingSource {
	return &TrackingSource{inner: inner}
}

// Statistics returns a snapshot of the source's counters.
func (s *TrackingSource) Statistics() SourceStatistics {
	return s.stats
}

func (s *TrackingSource) Acquire(size int) (Region, error) {
	region, err := s.inner.Acquire(size)
	if err != nil {
		return Region{}, err
	}

	s.stats.AcquireCount++
	s.stats.BytesAcquired += region.Capacity()
	s.stats.BytesInUse += region.Capacity()
	if s.stats.BytesInUse > s.stats.PeakBytesInUse {
		s.stats.PeakBytesInUse = s.stats.BytesInUse
	}

	return region, nil
}

func (s *TrackingSource) Release(region Region) {
	s.stats.ReleaseCount++
	s.stats.BytesReleased += region.Capacity()
	s.stats.BytesInUse -= region.Capacity()

	s.inner.Release(region)
}

// JsonData populates a json object with this source's counters.
func (s *TrackingSource) JsonData(json jwriter.ObjectState) {
	json.Name("AcquireCount").Int(s.stats.AcquireCount)
	json.Name("ReleaseCount").Int(s.stats.ReleaseCount)
	json.Name("LiveRegions").Int(s.stats.LiveRegionCount())
	json.Name("BytesAcquired").Int(s.stats.BytesAcquired)
	json.Name("BytesReleased").Int(s.stats.BytesReleased)
	json.Name("BytesInUse").Int(s.stats.BytesInUse)
	json.Name("PeakBytesInUse").Int(s.stats.PeakBytesInUse)
}

// DebugLogStatistics writes the source's counters to the provided logger at debug level.
func (s *TrackingSource) DebugLogStatistics(logger *slog.Logger) {
	logger.Debug("region source statistics",
		slog.Int("acquireCount", s.stats.AcquireCount),
		slog.Int("releaseCount", s.stats.ReleaseCount),
		slog.Int("liveRegions", s.stats.LiveRegionCount()),
		slog.Int("bytesInUse", s.stats.BytesInUse),
		slog.Int("peakBytesInUse", s.stats.PeakBytesInUse),
	)
}
