package engine

import (
	"encoding/binary"

	"github.com/zeebo/xxh3"
	"golang.org/x/crypto/blake2b"
)

// IntegrityAlgorithm selects the hash used for a Put's optional
// read-path checksum (§A.5). The spec's two wire-format checksums
// (header CRC, journal record CRC) always use Adler-32 regardless of
// this setting — see internal/header and internal/journal.
type IntegrityAlgorithm int

const (
	// AlgXXHash3 is the default: fastest, used when a caller wants bit-rot
	// detection without the per-Put cost of a cryptographic hash.
	AlgXXHash3 IntegrityAlgorithm = iota
	// AlgBlake2b trades speed for a cryptographic-strength checksum.
	AlgBlake2b
)

// checksum computes data's read-path integrity checksum under alg,
// truncated to 64 bits to fit journal.Record's fixed Checksum field.
func checksum(alg IntegrityAlgorithm, data []byte) uint64 {
	if alg == AlgBlake2b {
		sum := blake2b.Sum256(data)
		return binary.LittleEndian.Uint64(sum[:8])
	}
	return xxh3.Hash(data)
}

// fingerprint identifies an embedded record's payload during inline
// journal GC's liveness check (§4.4, §A.5): "AlgXXHash3 ... used to
// fingerprint a live record's payload during inline journal GC so a
// superseded record can be recognized without a full byte compare."
// Always xxh3, independent of Options.IntegrityAlgorithm — the GC
// liveness check runs on every inline-GC step over an embedded record,
// proactive or reactive, and stays cheap
// regardless of which algorithm the caller picked for read verification.
func fingerprint(data []byte) uint64 { return xxh3.Hash(data) }
