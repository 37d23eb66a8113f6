// Package lusf is an embedded, persistent key-value store for large
// rotational-disk-backed lumps addressed by a 128-bit key (§1-§3): a
// fixed-layout journaling allocator underneath, a deadline I/O scheduler
// in front, bounded at one or two device reads/writes per operation plus
// a journal-cursor write for each mutation and any bounded inline
// journal GC.
package lusf

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/natefinch/atomic"

	"github.com/lusfblk/lusf/internal/block"
	"github.com/lusfblk/lusf/internal/engine"
	"github.com/lusfblk/lusf/internal/lump"
	"github.com/lusfblk/lusf/internal/scheduler"
)

// Device is an open lusf store backed by a single file. All mutating and
// reading operations are serialized through a deadline scheduler
// (internal/scheduler), matching §4.6's "no background I/O, one
// operation runs to completion before the next is dispatched" — every
// Device operation runs the engine on the scheduler's dispatch
// goroutine; only Engine hands the engine out directly.
type Device struct {
	path     string
	lock     *fileLock
	lockFile *os.File

	dev   block.Device
	eng   *engine.Engine
	sched *scheduler.Scheduler

	closeOnce sync.Once
	cancel    context.CancelFunc
	runDone   chan struct{}
}

// Create initializes a brand-new store at filepath.Join(dir, name),
// sized per cfg (§4.2 create()), and starts its dispatch loop.
func Create(dir, name string, cfg Config) (*Device, error) {
	cfg = cfg.withDefaults()
	path := filepath.Join(dir, name)

	// Materialize the header+journal prefix as one atomic rename (§4.2):
	// a concurrent Open on this path never observes a half-truncated or
	// half-zeroed file, only "absent" or "fully zeroed prefix". The data
	// region is left for block.CreateFileDevice's Truncate to extend
	// sparsely — its bytes are insignificant until the allocator hands
	// out an extent, so there is nothing to gain from zero-filling it
	// through the same atomic write.
	prefixBlocks := 1 + cfg.journalBlocks()
	zeroPrefix := make([]byte, prefixBlocks*uint64(cfg.BlockSize))
	if err := atomic.WriteFile(path, bytes.NewReader(zeroPrefix)); err != nil {
		return nil, fmt.Errorf("lusf: zero-fill create: %w", err)
	}

	lockFile, err := os.OpenFile(path, os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("lusf: open lock file: %w", err)
	}
	lock := &fileLock{}
	lock.setFile(lockFile)
	if err := lock.Lock(LockExclusive); err != nil {
		lockFile.Close()
		return nil, fmt.Errorf("lusf: acquire exclusive lock: %w", err)
	}

	dev, err := block.CreateFileDevice(path, cfg.BlockSize, 1+cfg.journalBlocks()+cfg.dataBlocks())
	if err != nil {
		lock.Unlock()
		lockFile.Close()
		return nil, err
	}

	eng, err := engine.Create(dev, cfg.journalBlocks(), cfg.dataBlocks(), cfg.engineOptions())
	if err != nil {
		dev.Close()
		lock.Unlock()
		lockFile.Close()
		return nil, err
	}

	return newDevice(path, lock, lockFile, dev, eng, cfg), nil
}

// Open loads an existing store at filepath.Join(dir, name), replaying
// its journal (§4.2 open()). cfg.BlockSize must match the block size
// used at Create — it is needed to size the initial header read before
// the persisted layout (which carries its own block size) can be
// consulted; a mismatch surfaces as ErrStorageCorrupted rather than
// silent misalignment.
func Open(dir, name string, cfg Config) (*Device, error) {
	cfg = cfg.withDefaults()
	path := filepath.Join(dir, name)

	lockFile, err := os.OpenFile(path, os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("lusf: open lock file: %w", err)
	}
	lock := &fileLock{}
	lock.setFile(lockFile)
	if err := lock.Lock(LockExclusive); err != nil {
		lockFile.Close()
		return nil, fmt.Errorf("lusf: acquire exclusive lock: %w", err)
	}

	dev, err := block.OpenFileDevice(path, cfg.BlockSize)
	if err != nil {
		lock.Unlock()
		lockFile.Close()
		return nil, err
	}

	eng, err := engine.Open(dev, cfg.engineOptions())
	if err != nil {
		dev.Close()
		lock.Unlock()
		lockFile.Close()
		return nil, err
	}

	return newDevice(path, lock, lockFile, dev, eng, cfg), nil
}

func newDevice(path string, lock *fileLock, lockFile *os.File, dev block.Device, eng *engine.Engine, cfg Config) *Device {
	sched := scheduler.New(scheduler.Options{
		GraceMS: int(cfg.DeadlineGrace / time.Millisecond),
	})

	ctx, cancel := context.WithCancel(context.Background())
	d := &Device{
		path:     path,
		lock:     lock,
		lockFile: lockFile,
		dev:      dev,
		eng:      eng,
		sched:    sched,
		cancel:   cancel,
		runDone:  make(chan struct{}),
	}
	go func() {
		defer close(d.runDone)
		sched.Run(ctx)
	}()
	return d
}

// Close stops accepting new work, drains whatever is queued, and
// releases the process lock. Safe to call more than once.
func (d *Device) Close() error {
	var err error
	d.closeOnce.Do(func() {
		d.sched.Close()
		d.cancel()
		<-d.runDone
		err = d.dev.Close()
		d.lock.Unlock()
		d.lock.setFile(nil)
		d.lockFile.Close()
	})
	return err
}

// Put inserts or replaces id's value, returning whether a new key was
// created (§4.6 put). deadline bounds how long the request may wait
// behind higher-priority work before failing with ErrDeadlineExpired.
func (d *Device) Put(ctx context.Context, id lump.Id, data []byte, deadline time.Time) (bool, error) {
	v, err := dispatch(ctx, d.sched, deadline, func() (any, error) {
		return d.eng.Put(id, data)
	})
	if err != nil {
		return false, err
	}
	return v.(bool), nil
}

// Get returns id's current value, or ok=false if absent (§4.6 get).
func (d *Device) Get(ctx context.Context, id lump.Id, deadline time.Time) ([]byte, bool, error) {
	type result struct {
		data []byte
		ok   bool
	}
	v, err := dispatch(ctx, d.sched, deadline, func() (any, error) {
		data, ok, err := d.eng.Get(id)
		return result{data, ok}, err
	})
	if err != nil {
		return nil, false, err
	}
	r := v.(result)
	return r.data, r.ok, nil
}

// Delete removes id's binding, returning whether it existed (§4.6
// delete).
func (d *Device) Delete(ctx context.Context, id lump.Id, deadline time.Time) (bool, error) {
	v, err := dispatch(ctx, d.sched, deadline, func() (any, error) {
		return d.eng.Delete(id)
	})
	if err != nil {
		return false, err
	}
	return v.(bool), nil
}

// DeleteRange removes every key in the inclusive range [low, high],
// returning the count removed (§4.5 delete_range).
func (d *Device) DeleteRange(ctx context.Context, r lump.Range, deadline time.Time) (int, error) {
	v, err := dispatch(ctx, d.sched, deadline, func() (any, error) {
		return d.eng.DeleteRange(r)
	})
	if err != nil {
		return 0, err
	}
	return v.(int), nil
}

// List returns every bound key in ascending order (§4.6 list).
func (d *Device) List(ctx context.Context, deadline time.Time) ([]lump.Id, error) {
	v, err := dispatch(ctx, d.sched, deadline, func() (any, error) {
		return d.eng.List(), nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]lump.Id), nil
}

// ListRange returns every bound key in the inclusive range [low, high],
// in ascending order (§4.6 list_range).
func (d *Device) ListRange(ctx context.Context, r lump.Range, deadline time.Time) ([]lump.Id, error) {
	v, err := dispatch(ctx, d.sched, deadline, func() (any, error) {
		return d.eng.ListRange(r), nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]lump.Id), nil
}

// JournalSync forces durability of any deferred journal writes (§4.6
// journal_sync). Unlike the other operations it is submitted as
// background work: it carries no key-specific deadline pressure and
// should never jump ahead of a pending user request.
func (d *Device) JournalSync(ctx context.Context) error {
	_, err := dispatchBackground(ctx, d.sched, func() (any, error) {
		return nil, d.eng.JournalSync()
	})
	return err
}

// Engine exposes the underlying storage engine for internal/diag
// snapshots, bypassing the deadline scheduler (diagnostics carry no
// deadline to schedule against). The engine's operations take its own
// mutex, but the Index, Allocator and Ring accessors that internal/diag
// reads do not, so a snapshot taken this way is not synchronized with
// requests being dispatched.
func (d *Device) Engine() *engine.Engine { return d.eng }
