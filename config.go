package lusf

import (
	"time"

	"github.com/c2h5oh/datasize"
	"go.uber.org/zap"

	"github.com/lusfblk/lusf/internal/engine"
	"github.com/lusfblk/lusf/internal/header"
	"github.com/lusfblk/lusf/internal/journal"
)

// Config configures a Device (SPEC_FULL.md §6 Configuration). Sizes use
// datasize.ByteSize so callers write `4 * datasize.MB` instead of a raw
// byte count.
type Config struct {
	// BlockSize is the device's fixed block size. Must be a power of two
	// >= header.MinBlockSize (512).
	BlockSize uint32

	// JournalSize and DataSize size the journal ring and data region on
	// Create; ignored by Open, which reads the sizes already committed
	// to the header.
	JournalSize datasize.ByteSize
	DataSize    datasize.ByteSize

	// EmbedThreshold is embed_threshold_bytes (§9): values at or under
	// this size are stored inline in the journal rather than allocated
	// an extent in the data region.
	EmbedThreshold datasize.ByteSize

	// MaxLumpSize bounds the largest value Put accepts.
	MaxLumpSize datasize.ByteSize

	// JournalGCTriggerRatio and JournalGCStepsPerOp tune inline journal
	// GC (§4.4, §6 journal_gc_trigger_ratio/journal_gc_steps_per_op).
	JournalGCTriggerRatio float64
	JournalGCStepsPerOp   int

	// DeadlineGrace is the scheduler's expiration grace period (§4.7,
	// §6 deadline_grace_ms).
	DeadlineGrace time.Duration

	// IntegrityAlgorithm selects the hash used for VerifyOnRead's
	// optional read-path checksum (§A.5). Ignored when VerifyOnRead is
	// false.
	IntegrityAlgorithm engine.IntegrityAlgorithm

	// VerifyOnRead, when true, has Put compute and store a checksum of
	// every non-embedded value and Get verify it, returning
	// ErrStorageCorrupted on mismatch (§A.5). Off by default: the spec's
	// baseline get()/put() carry no such cost.
	VerifyOnRead bool

	// Logger receives structured diagnostic output. Defaults to a no-op
	// logger if nil.
	Logger *zap.SugaredLogger
}

const (
	defaultBlockSize       = header.MinBlockSize
	defaultJournalSize     = 64 * datasize.MB
	defaultDataSize        = 1 * datasize.GB
	defaultMaxLumpSize     = 4 * datasize.MB
	defaultGCTriggerRatio  = 0.5
	defaultGCStepsPerOp    = 8
	defaultDeadlineGraceMS = 10
)

// maxEmbedThreshold returns block_size - record_overhead (§6: an embed
// record must still fit in the one block/one write budget §4.4
// promises an embedded Put). blockSize is assumed already validated
// against header.MinBlockSize.
func maxEmbedThreshold(blockSize uint32) datasize.ByteSize {
	overhead := uint64(journal.FrameOverhead + 16) // TagEmbed's fixed payload prefix, see journal.Len
	bs := uint64(blockSize)
	if overhead >= bs {
		return 0
	}
	return datasize.ByteSize(bs - overhead)
}

func (c Config) withDefaults() Config {
	if c.BlockSize == 0 {
		c.BlockSize = defaultBlockSize
	}
	if c.JournalSize == 0 {
		c.JournalSize = defaultJournalSize
	}
	if c.DataSize == 0 {
		c.DataSize = defaultDataSize
	}
	max := maxEmbedThreshold(c.BlockSize)
	if c.EmbedThreshold == 0 {
		c.EmbedThreshold = max
	} else if c.EmbedThreshold > max {
		c.EmbedThreshold = max
	}
	if c.MaxLumpSize == 0 {
		c.MaxLumpSize = defaultMaxLumpSize
	}
	if c.JournalGCTriggerRatio == 0 {
		c.JournalGCTriggerRatio = defaultGCTriggerRatio
	}
	if c.JournalGCStepsPerOp == 0 {
		c.JournalGCStepsPerOp = defaultGCStepsPerOp
	}
	if c.DeadlineGrace == 0 {
		c.DeadlineGrace = defaultDeadlineGraceMS * time.Millisecond
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop().Sugar()
	}
	return c
}

// journalBlocks and dataBlocks round the configured byte sizes up to a
// whole number of blocks.
func (c Config) journalBlocks() uint64 {
	return blocksFor(uint64(c.JournalSize.Bytes()), c.BlockSize)
}

func (c Config) dataBlocks() uint64 {
	return blocksFor(uint64(c.DataSize.Bytes()), c.BlockSize)
}

func blocksFor(bytes uint64, blockSize uint32) uint64 {
	bs := uint64(blockSize)
	return (bytes + bs - 1) / bs
}

func (c Config) engineOptions() engine.Options {
	return engine.Options{
		EmbedThresholdBytes:   uint64(c.EmbedThreshold.Bytes()),
		JournalGCTriggerRatio: c.JournalGCTriggerRatio,
		JournalGCStepsPerOp:   c.JournalGCStepsPerOp,
		MaxLumpSize:           uint64(c.MaxLumpSize.Bytes()),
		IntegrityAlgorithm:    c.IntegrityAlgorithm,
		VerifyOnRead:          c.VerifyOnRead,
		Logger:                c.Logger,
	}
}
