//go:build !debug_region_alloc

package regions

const (
	// DebugMargin is the number of bytes of poisoned padding placed between arena
	// allocations in regions managed by this module
	DebugMargin int = 0
)

// ValidateMagicValue verifies that the easy-to-identify marker written by WriteMagicValue
// is still present. It returns true if the value is still present and false otherwise.
// This method no-ops unless the debug_region_alloc build tag is present.
func ValidateMagicValue(data []byte, offset int) bool {
	return true
}

// WriteMagicValue writes an easy-to-identify marker across DebugMargin bytes of the
// provided region data, beginning at offset.
// This method no-ops unless the debug_region_alloc build tag is present.
func WriteMagicValue(data []byte, offset int) {
}

// DebugValidate will call Validate on the provided object and panics if any errors are returned. This
// method no-ops unless the debug_region_alloc build tag is present
func DebugValidate(validatable Validatable) {
}

// DebugCheckPow2 will verify that the numerical value passed in is a power of two, and panics if it is not.
// This method no-ops unless the debug_region_alloc build tag is present.
func DebugCheckPow2[T Number](value T, name string) {

}
