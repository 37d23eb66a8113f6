package block

import "unsafe"

// uintptrOf returns the address of a slice's backing array, used only to
// compute alignment padding in AlignedBuffer. It does not retain the
// pointer or defeat the garbage collector: the returned slice still
// references the same backing array.
func uintptrOf(b []byte) uintptr {
	if len(b) == 0 {
		return 0
	}
	return uintptr(unsafe.Pointer(&b[0]))
}
