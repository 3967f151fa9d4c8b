package arena

// Window is a non-owning view of memory carved from an arena. The arena performs no
// lifetime tracking for windows- a window's bytes are valid until the next Reset,
// Rewind or Destroy on the side of the arena that issued it, and continued use after
// that point is the caller's responsibility.
//
// As a cheap defense, every window is tagged with the issuing arena's epoch, which the
// arena increments each time existing allocations are invalidated. Valid reports
// whether the window's epoch is still current, catching most use-after-reset bugs
// without any per-allocation bookkeeping.
type Window struct {
	data   []byte
	offset int
	epoch  uint64
	life   *uint64
}

// Bytes returns the window's backing memory. The epoch is deliberately not checked
// here- access stays free of branches, and callers who want the check use Valid.
func (w Window) Bytes() []byte {
	return w.data
}

// Offset returns the window's offset in bytes from the base of the owning region.
func (w Window) Offset() int {
	return w.offset
}

// Size returns the size of the window in bytes.
func (w Window) Size() int {
	return len(w.data)
}

// Valid returns true while the issuing side of the arena has not been reset, rewound,
// or destroyed since the window was issued. The check is conservative: a rewind to a
// marker taken after this window still invalidates it.
func (w Window) Valid() bool {
	return w.life != nil && *w.life == w.epoch
}
