package lusf

import (
	"context"
	"time"

	"github.com/lusfblk/lusf/internal/scheduler"
)

// dispatch submits execute to s at deadline and waits for its outcome,
// racing the scheduler's delivery against ctx. If ctx is done first, it
// cancels the pending job (a no-op if already dispatched, per
// internal/scheduler's Cancel contract) and returns ctx.Err(), discarding
// whatever outcome the job eventually produces — the caller-side half of
// §4.7's "a request canceled while already executing runs to completion;
// its result is discarded."
func dispatch(ctx context.Context, s *scheduler.Scheduler, deadline time.Time, execute func() (any, error)) (any, error) {
	p := s.Submit(deadline, execute)
	select {
	case r := <-p.Result():
		return r.Value, r.Err
	case <-ctx.Done():
		p.Cancel()
		return nil, ctx.Err()
	}
}

// dispatchBackground is dispatch's SubmitBackground counterpart, used for
// work that never expires (inline journal GC is driven from inside
// engine operations directly rather than through this path, but
// JournalSync and similar maintenance calls use it).
func dispatchBackground(ctx context.Context, s *scheduler.Scheduler, execute func() (any, error)) (any, error) {
	p := s.SubmitBackground(execute)
	select {
	case r := <-p.Result():
		return r.Value, r.Err
	case <-ctx.Done():
		p.Cancel()
		return nil, ctx.Err()
	}
}
