package lump

import "github.com/lusfblk/lusf/internal/alloc"

// Binding is what a key currently maps to: either an extent in the data
// region (a non-embedded Put), or a small value stored inline in the
// journal itself (an Embed, §4.4/§6 embed_threshold_bytes). Exactly one
// of Extent/Data is meaningful, selected by Embedded.
type Binding struct {
	Embedded bool
	Extent   alloc.Extent // valid when !Embedded
	Length   uint64       // valid when !Embedded: exact value length (<= Extent.Count*blockSize)
	Checksum uint64       // valid when !Embedded: optional read-path integrity checksum (§A.5), 0 if unset
	Data     []byte       // valid when Embedded; owned copy
}

// Equal reports whether two bindings describe the same value: the same
// embedded bytes, or the same extent and length.
func (b Binding) Equal(o Binding) bool {
	if b.Embedded != o.Embedded {
		return false
	}
	if b.Embedded {
		return string(b.Data) == string(o.Data)
	}
	return b.Extent == o.Extent && b.Length == o.Length
}

// Size returns the logical value length in bytes.
func (b Binding) Size(blockSize uint32) uint64 {
	if b.Embedded {
		return uint64(len(b.Data))
	}
	return b.Length
}
