package arena

import (
	cerrors "github.com/cockroachdb/errors"
	"github.com/vkngwrapper/arsenal/regions"
)

// Marker is an opaque snapshot of a StackAllocator's cursor, taken with Mark and handed
// back to Rewind. A marker is valid while the issuing allocator is alive and no rewind
// to an earlier-or-equal marker has occurred- honoring that is caller discipline, the
// allocator only detects rewinding forward.
type Marker struct {
	offset      int
	allocations int
}

// Offset returns the cursor position the marker captured, for diagnostics.
func (m Marker) Offset() int {
	return m.offset
}

// StackAllocator is a BumpArena extended with marker/rewind semantics for nested
// scopes: take a marker before entering a scope, allocate freely inside it, and rewind
// to the marker on every exit path. This gives bulk deallocation finer granularity than
// a full Reset.
type StackAllocator struct {
	BumpArena
}

// NewStackAllocator acquires one region of at least capacity bytes from source and
// builds a StackAllocator over it. A nil source uses regions.SystemSource. Fails with
// regions.ErrOutOfMemory when the source cannot supply the region.
func NewStackAllocator(source regions.RegionSource, capacity int) (*StackAllocator, error) {
	bump, err := NewBumpArena(source, capacity)
	if err != nil {
		return nil, err
	}

	return &StackAllocator{BumpArena: *bump}, nil
}

// Mark returns an opaque snapshot of the current cursor. Marking a fresh or
// freshly-reset allocator captures the start of the region.
func (a *StackAllocator) Mark() Marker {
	return Marker{
		offset:      a.used,
		allocations: a.allocationCount,
	}
}

// Rewind moves the cursor back to the provided marker, invalidating every window issued
// since the marker was taken. Rewinding to a marker beyond the current cursor is a
// programmer error and fails with regions.ErrInvalidMarker, leaving the allocator
// unchanged.
func (a *StackAllocator) Rewind(marker Marker) error {
	if a.destroyed {
		return cerrors.Wrap(regions.ErrUseAfterDestroy, "stack allocator")
	}
	if marker.offset > a.used {
		return cerrors.Wrapf(regions.ErrInvalidMarker,
			"marker is at offset %d, but the cursor is at %d- markers cannot rewind forward",
			marker.offset, a.used)
	}

	a.used = marker.offset
	a.allocationCount = marker.allocations
	a.epoch++
	return nil
}
