// Package scheduler implements the deadline I/O scheduler (§4.7): a
// priority queue of pending requests keyed by (deadline, submission_seq),
// work-conserving dispatch, expiration, and pre-dispatch cancellation.
package scheduler

import (
	"container/heap"
	"context"
	"errors"
	"sync"
	"time"
)

var (
	// ErrDeadlineExpired is delivered to a job whose deadline had already
	// passed by more than the configured grace when it was selected for
	// dispatch (§4.7 Expiration). No I/O is issued for it.
	ErrDeadlineExpired = errors.New("scheduler: deadline expired")
	// ErrCanceled is delivered to a job canceled before it was dispatched.
	ErrCanceled = errors.New("scheduler: canceled")
	// ErrClosed is delivered to a job submitted after the scheduler was
	// closed.
	ErrClosed = errors.New("scheduler: closed")
)

// Clock abstracts time.Now so tests can drive expiration deterministically.
type Clock func() time.Time

// Result is what a submitted job resolves to.
type Result struct {
	Value any
	Err   error
}

// job is one queued unit of work. background jobs (inline journal GC
// steps) never expire and are always ordered after every non-background
// job regardless of deadline (§4.7: "user PUT/GET/DELETE > inline journal
// GC steps").
type job struct {
	seq        uint64
	deadline   time.Time
	background bool
	execute    func() (any, error)
	resultCh   chan Result

	index int // position in the heap, -1 once popped or never pushed
}

type jobHeap []*job

func (h jobHeap) Len() int { return len(h) }

func (h jobHeap) Less(i, j int) bool {
	a, b := h[i], h[j]
	if a.background != b.background {
		return !a.background
	}
	if !a.deadline.Equal(b.deadline) {
		return a.deadline.Before(b.deadline)
	}
	return a.seq < b.seq
}

func (h jobHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *jobHeap) Push(x any) {
	j := x.(*job)
	j.index = len(*h)
	*h = append(*h, j)
}

func (h *jobHeap) Pop() any {
	old := *h
	n := len(old)
	j := old[n-1]
	old[n-1] = nil
	j.index = -1
	*h = old[:n-1]
	return j
}

// Options configures a Scheduler.
type Options struct {
	// GraceMS is the expiration grace period in milliseconds (§4.7,
	// default 10 per SPEC_FULL.md §6 deadline_grace_ms).
	GraceMS int
	// Clock overrides time.Now, for tests.
	Clock Clock
}

func (o Options) withDefaults() Options {
	if o.GraceMS == 0 {
		o.GraceMS = 10
	}
	if o.Clock == nil {
		o.Clock = time.Now
	}
	return o
}

// Scheduler orders submitted work by (deadline, submission order) and
// dispatches one job at a time to completion (§4.7: "no preemption inside
// engine operations").
type Scheduler struct {
	mu     sync.Mutex
	cond   *sync.Cond
	heap   jobHeap
	seq    uint64
	closed bool

	grace time.Duration
	clock Clock
}

// New creates a Scheduler. Submit/SubmitBackground may be called
// immediately; Run (or repeated Step calls) drives dispatch.
func New(opts Options) *Scheduler {
	opts = opts.withDefaults()
	s := &Scheduler{
		grace: time.Duration(opts.GraceMS) * time.Millisecond,
		clock: opts.Clock,
	}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// Pending is a handle to a submitted job.
type Pending struct {
	s   *Scheduler
	job *job
}

// Result returns the channel the job's outcome is delivered on. Exactly
// one value is always sent, even for a canceled or expired job — callers
// that want a canceled-while-executing request's result "discarded" per
// §4.7 do so themselves (by not using the delivered value), since the
// scheduler has no way to know the caller has stopped waiting on it.
func (p *Pending) Result() <-chan Result { return p.job.resultCh }

// Cancel removes the job from the queue if it has not yet been dispatched,
// delivering ErrCanceled and returning true. If the job is already
// executing or has already completed, Cancel is a no-op and returns
// false — per §4.7, a request already dispatched runs to completion
// without preemption; Result() still delivers its real outcome.
func (p *Pending) Cancel() bool {
	s := p.s
	s.mu.Lock()
	if p.job.index == -1 {
		s.mu.Unlock()
		return false
	}
	heap.Remove(&s.heap, p.job.index)
	s.mu.Unlock()
	p.job.resultCh <- Result{Err: ErrCanceled}
	return true
}

// Submit enqueues a deadline-bound job. execute runs synchronously on the
// scheduler's dispatch goroutine once selected — it is expected to be a
// single engine operation (§4.6's "one operation runs to completion before
// the next is dispatched").
func (s *Scheduler) Submit(deadline time.Time, execute func() (any, error)) *Pending {
	return s.submit(deadline, false, execute)
}

// SubmitBackground enqueues work with no deadline, always ordered after
// every pending user request (§4.7 priorities). Used for inline journal GC
// steps that need to run between foreground operations rather than as a
// background goroutine.
func (s *Scheduler) SubmitBackground(execute func() (any, error)) *Pending {
	return s.submit(time.Time{}, true, execute)
}

func (s *Scheduler) submit(deadline time.Time, background bool, execute func() (any, error)) *Pending {
	j := &job{
		deadline:   deadline,
		background: background,
		execute:    execute,
		resultCh:   make(chan Result, 1),
		index:      -1,
	}

	s.mu.Lock()
	s.seq++
	j.seq = s.seq
	if s.closed {
		s.mu.Unlock()
		j.resultCh <- Result{Err: ErrClosed}
		return &Pending{s: s, job: j}
	}
	heap.Push(&s.heap, j)
	s.cond.Signal()
	s.mu.Unlock()

	return &Pending{s: s, job: j}
}

// Len returns the number of queued (not yet dispatched) jobs.
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.heap)
}

// Close stops the scheduler from accepting further work; jobs already
// queued are still drained by Run/Step. Further Submit/SubmitBackground
// calls fail immediately with ErrClosed.
func (s *Scheduler) Close() {
	s.mu.Lock()
	s.closed = true
	s.cond.Broadcast()
	s.mu.Unlock()
}

// Step selects and dispatches the single highest-priority ready job,
// blocking until it completes, and reports whether a job was found. It is
// the work-conserving unit Run loops over, exposed directly so tests and
// single-threaded callers can drive dispatch deterministically.
func (s *Scheduler) Step() bool {
	s.mu.Lock()
	if len(s.heap) == 0 {
		s.mu.Unlock()
		return false
	}
	j := s.heap[0]

	if !j.background && s.clock().Sub(j.deadline) > s.grace {
		heap.Pop(&s.heap)
		s.mu.Unlock()
		j.resultCh <- Result{Err: ErrDeadlineExpired}
		return true
	}

	heap.Pop(&s.heap)
	s.mu.Unlock()

	value, err := j.execute()
	j.resultCh <- Result{Value: value, Err: err}
	return true
}

// Run dispatches jobs until ctx is canceled or Close is called, at which
// point it drains whatever remains queued and returns. Exactly one job
// runs at a time.
func (s *Scheduler) Run(ctx context.Context) {
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			s.Close()
		case <-done:
		}
	}()
	defer close(done)

	for {
		s.mu.Lock()
		for len(s.heap) == 0 && !s.closed {
			s.cond.Wait()
		}
		empty := len(s.heap) == 0
		closed := s.closed
		s.mu.Unlock()

		if empty && closed {
			return
		}
		s.Step()
	}
}
