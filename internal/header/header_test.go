package header

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	l := Layout{BlockSize: 4096, JournalBlocks: 16, DataBlocks: 1024, UUID: NewUUID()}
	buf, err := Encode(l, 4096)
	require.NoError(t, err)
	require.Len(t, buf, 4096)

	got, err := Decode(buf)
	require.NoError(t, err)
	require.Equal(t, l.JournalBlocks, got.JournalBlocks)
	require.Equal(t, l.DataBlocks, got.DataBlocks)
	require.Equal(t, l.UUID, got.UUID)
	require.Equal(t, uint32(4096), got.BlockSize)
}

func TestDecodeRejectsBadMagic(t *testing.T) {
	buf := make([]byte, 512)
	_, err := Decode(buf)
	require.ErrorIs(t, err, ErrBadMagic)
}

func TestDecodeRejectsCorruptCRC(t *testing.T) {
	l := Layout{BlockSize: 512, JournalBlocks: 4, DataBlocks: 100, UUID: NewUUID()}
	buf, err := Encode(l, 512)
	require.NoError(t, err)

	buf[50] ^= 0xFF // flip a reserved byte, invalidating the CRC
	_, err = Decode(buf)
	require.ErrorIs(t, err, ErrCorrupt)
}

func TestEncodeRejectsBadBlockSize(t *testing.T) {
	_, err := Encode(Layout{}, 500) // not a power of two
	require.ErrorIs(t, err, ErrBlockSizeTooSmall)

	_, err = Encode(Layout{}, 256) // below MinBlockSize
	require.ErrorIs(t, err, ErrBlockSizeTooSmall)
}

func TestLayoutOffsets(t *testing.T) {
	l := Layout{JournalBlocks: 16, DataBlocks: 1000}
	require.Equal(t, uint64(1), l.JournalStart())
	require.Equal(t, uint64(17), l.DataStart())
	require.Equal(t, uint64(1017), l.TotalBlocks())
}
