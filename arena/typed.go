package arena

import (
	"unsafe"
)

// ByteAllocator is the allocation surface shared by BumpArena and StackAllocator,
// used by the typed helpers in this package.
type ByteAllocator interface {
	Alloc(size int, alignment uint) (Window, error)
}

// Alloc places a zeroed T inside the allocator's region and returns a pointer to it,
// aligned to T's natural alignment. The pointer is subject to the same lifetime
// contract as a Window: it is invalidated by Reset, Rewind and Destroy, with nothing
// but caller discipline enforcing that.
//
// Alignment is measured from the region base, so this helper assumes the backing
// region itself is at least pointer-aligned- true for regions handed out by
// regions.SystemSource, which allocates them on the Go heap.
func Alloc[T any](allocator ByteAllocator) (*T, error) {
	var zero T
	size := int(unsafe.Sizeof(zero))
	if size == 0 {
		return new(T), nil
	}

	window, err := allocator.Alloc(size, uint(unsafe.Alignof(zero)))
	if err != nil {
		return nil, err
	}

	data := window.Bytes()
	clear(data)
	return (*T)(unsafe.Pointer(unsafe.SliceData(data))), nil
}

// AllocSlice places a zeroed []T of length count inside the allocator's region,
// aligned to T's natural alignment. The slice is subject to the same lifetime contract
// as a Window.
func AllocSlice[T any](allocator ByteAllocator, count int) ([]T, error) {
	var zero T
	elementSize := int(unsafe.Sizeof(zero))
	if count <= 0 {
		return nil, nil
	}
	if elementSize == 0 {
		return make([]T, count), nil
	}

	window, err := allocator.Alloc(elementSize*count, uint(unsafe.Alignof(zero)))
	if err != nil {
		return nil, err
	}

	data := window.Bytes()
	clear(data)
	return unsafe.Slice((*T)(unsafe.Pointer(unsafe.SliceData(data))), count), nil
}
