package block

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFileDeviceRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "dev.img")

	d, err := CreateFileDevice(path, 512, 8)
	require.NoError(t, err)
	defer d.Close()

	require.Equal(t, uint32(512), d.BlockSize())

	buf := AlignedBuffer(512, 512*2)
	for i := range buf {
		buf[i] = byte(i)
	}
	require.NoError(t, d.WriteAt(2, buf))
	require.NoError(t, d.Sync())

	out := AlignedBuffer(512, 512*2)
	require.NoError(t, d.ReadAt(2, 2, out))
	require.True(t, bytes.Equal(buf, out))
}

func TestCheckAlignedPanicsOnMismatch(t *testing.T) {
	require.Panics(t, func() {
		CheckAligned(512, 2, make([]byte, 100))
	})
}

func TestAlignedBufferIsBlockAligned(t *testing.T) {
	buf := AlignedBuffer(4096, 8192)
	require.Len(t, buf, 8192)
	require.Equal(t, uintptr(0), uintptrOf(buf)%4096)
}
