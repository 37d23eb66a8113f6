package lusf

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/lusfblk/lusf/internal/lump"
)

func testConfig() Config {
	return Config{
		BlockSize:   512,
		JournalSize: 64 * 1024,
		DataSize:    256 * 1024,
	}
}

func deadline() time.Time { return time.Now().Add(5 * time.Second) }

func TestCreatePutGet(t *testing.T) {
	dir := t.TempDir()
	d, err := Create(dir, "store.lusf", testConfig())
	require.NoError(t, err)
	defer d.Close()

	ctx := context.Background()
	id := lump.FromUint64(42)

	created, err := d.Put(ctx, id, []byte("hello"), deadline())
	require.NoError(t, err)
	require.True(t, created)

	data, ok, err := d.Get(ctx, id, deadline())
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("hello"), data)
}

func TestPutReplaceReturnsFalse(t *testing.T) {
	dir := t.TempDir()
	d, err := Create(dir, "store.lusf", testConfig())
	require.NoError(t, err)
	defer d.Close()

	ctx := context.Background()
	id := lump.FromUint64(1)

	created, err := d.Put(ctx, id, []byte("v1"), deadline())
	require.NoError(t, err)
	require.True(t, created)

	created, err = d.Put(ctx, id, []byte("v2"), deadline())
	require.NoError(t, err)
	require.False(t, created)

	data, ok, err := d.Get(ctx, id, deadline())
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("v2"), data)
}

func TestDeleteAndList(t *testing.T) {
	dir := t.TempDir()
	d, err := Create(dir, "store.lusf", testConfig())
	require.NoError(t, err)
	defer d.Close()

	ctx := context.Background()
	for i := uint64(1); i <= 3; i++ {
		_, err := d.Put(ctx, lump.FromUint64(i), []byte("v"), deadline())
		require.NoError(t, err)
	}

	existed, err := d.Delete(ctx, lump.FromUint64(2), deadline())
	require.NoError(t, err)
	require.True(t, existed)

	keys, err := d.List(ctx, deadline())
	require.NoError(t, err)
	require.Equal(t, []lump.Id{lump.FromUint64(1), lump.FromUint64(3)}, keys)
}

func TestDeleteRangeInclusive(t *testing.T) {
	dir := t.TempDir()
	d, err := Create(dir, "store.lusf", testConfig())
	require.NoError(t, err)
	defer d.Close()

	ctx := context.Background()
	for i := uint64(1); i <= 5; i++ {
		_, err := d.Put(ctx, lump.FromUint64(i), []byte("v"), deadline())
		require.NoError(t, err)
	}

	n, err := d.DeleteRange(ctx, lump.Range{Low: lump.FromUint64(2), High: lump.FromUint64(4)}, deadline())
	require.NoError(t, err)
	require.Equal(t, 3, n)

	keys, err := d.List(ctx, deadline())
	require.NoError(t, err)
	require.Equal(t, []lump.Id{lump.FromUint64(1), lump.FromUint64(5)}, keys)
}

func TestContextCanceledBeforeDispatchReturnsCtxErr(t *testing.T) {
	dir := t.TempDir()
	d, err := Create(dir, "store.lusf", testConfig())
	require.NoError(t, err)
	defer d.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = d.Put(ctx, lump.FromUint64(1), []byte("v"), deadline())
	require.ErrorIs(t, err, context.Canceled)
}

func TestOpenReplaysAfterCreate(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig()

	d, err := Create(dir, "store.lusf", cfg)
	require.NoError(t, err)
	ctx := context.Background()
	_, err = d.Put(ctx, lump.FromUint64(7), []byte("persisted"), deadline())
	require.NoError(t, err)
	require.NoError(t, d.Close())

	reopened, err := Open(dir, "store.lusf", cfg)
	require.NoError(t, err)
	defer reopened.Close()

	data, ok, err := reopened.Get(ctx, lump.FromUint64(7), deadline())
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("persisted"), data)
}

func TestVerifyOnReadRoundTripThroughFacade(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig()
	cfg.VerifyOnRead = true
	cfg.EmbedThreshold = 1

	d, err := Create(dir, "store.lusf", cfg)
	require.NoError(t, err)
	defer d.Close()

	ctx := context.Background()
	id := lump.FromUint64(99)
	_, err = d.Put(ctx, id, []byte("verified on read"), deadline())
	require.NoError(t, err)

	data, ok, err := d.Get(ctx, id, deadline())
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("verified on read"), data)
}

func TestOversizeValueFails(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig()
	cfg.MaxLumpSize = 64

	d, err := Create(dir, "store.lusf", cfg)
	require.NoError(t, err)
	defer d.Close()

	ctx := context.Background()
	_, err = d.Put(ctx, lump.FromUint64(1), make([]byte, 128), deadline())
	require.ErrorIs(t, err, ErrInvalidInput)
}
