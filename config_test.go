package lusf

import (
	"testing"
	"time"

	"github.com/c2h5oh/datasize"
	"github.com/stretchr/testify/require"

	"github.com/lusfblk/lusf/internal/engine"
)

func TestConfigDefaultsApplied(t *testing.T) {
	cfg := Config{}.withDefaults()

	require.Equal(t, uint32(defaultBlockSize), cfg.BlockSize)
	require.Equal(t, defaultJournalSize, cfg.JournalSize)
	require.Equal(t, defaultDataSize, cfg.DataSize)
	require.Equal(t, maxEmbedThreshold(uint32(defaultBlockSize)), cfg.EmbedThreshold)
	require.Equal(t, defaultMaxLumpSize, cfg.MaxLumpSize)
	require.Equal(t, float64(defaultGCTriggerRatio), cfg.JournalGCTriggerRatio)
	require.Equal(t, defaultGCStepsPerOp, cfg.JournalGCStepsPerOp)
	require.Equal(t, time.Duration(defaultDeadlineGraceMS)*time.Millisecond, cfg.DeadlineGrace)
	require.NotNil(t, cfg.Logger)
	require.Equal(t, engine.AlgXXHash3, cfg.IntegrityAlgorithm)
	require.False(t, cfg.VerifyOnRead)
}

func TestConfigCustomValuesOverrideDefaults(t *testing.T) {
	cfg := Config{
		BlockSize:      4096,
		JournalSize:    8 * datasize.MB,
		DataSize:       2 * datasize.GB,
		EmbedThreshold: 1 * datasize.KB,
		MaxLumpSize:    16 * datasize.MB,
	}.withDefaults()

	require.Equal(t, uint32(4096), cfg.BlockSize)
	require.Equal(t, 8*datasize.MB, cfg.JournalSize)
	require.Equal(t, 2*datasize.GB, cfg.DataSize)
	require.Equal(t, 1*datasize.KB, cfg.EmbedThreshold)
	require.Equal(t, 16*datasize.MB, cfg.MaxLumpSize)
}

func TestEmbedThresholdClampedToBlockSize(t *testing.T) {
	cfg := Config{BlockSize: 512, EmbedThreshold: 1 * datasize.MB}.withDefaults()
	require.Equal(t, maxEmbedThreshold(512), cfg.EmbedThreshold)
	require.Less(t, uint64(cfg.EmbedThreshold.Bytes()), uint64(512))
}

func TestJournalAndDataBlocksRoundUp(t *testing.T) {
	cfg := Config{BlockSize: 512, JournalSize: 1025, DataSize: 512}.withDefaults()
	require.Equal(t, uint64(3), cfg.journalBlocks())
	require.Equal(t, uint64(1), cfg.dataBlocks())
}

func TestEngineOptionsTranslation(t *testing.T) {
	cfg := Config{
		EmbedThreshold:        256,
		MaxLumpSize:           1024,
		JournalGCTriggerRatio: 0.75,
		JournalGCStepsPerOp:   4,
	}.withDefaults()

	opts := cfg.engineOptions()
	require.Equal(t, uint64(256), opts.EmbedThresholdBytes)
	require.Equal(t, uint64(1024), opts.MaxLumpSize)
	require.Equal(t, 0.75, opts.JournalGCTriggerRatio)
	require.Equal(t, 4, opts.JournalGCStepsPerOp)
	require.Equal(t, engine.AlgXXHash3, opts.IntegrityAlgorithm)
	require.False(t, opts.VerifyOnRead)
}

func TestEngineOptionsTranslatesIntegritySettings(t *testing.T) {
	cfg := Config{IntegrityAlgorithm: engine.AlgBlake2b, VerifyOnRead: true}.withDefaults()

	opts := cfg.engineOptions()
	require.Equal(t, engine.AlgBlake2b, opts.IntegrityAlgorithm)
	require.True(t, opts.VerifyOnRead)
}
