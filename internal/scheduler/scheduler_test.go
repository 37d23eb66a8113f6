package scheduler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func fixedClock(t time.Time) Clock {
	return func() time.Time { return t }
}

func TestDispatchOrderByDeadlineThenSubmission(t *testing.T) {
	base := time.Unix(1000, 0)
	s := New(Options{Clock: fixedClock(base)})

	var order []string
	submit := func(label string, offset time.Duration) *Pending {
		return s.Submit(base.Add(offset), func() (any, error) {
			order = append(order, label)
			return nil, nil
		})
	}

	p1 := submit("t+30", 30*time.Millisecond)
	p2 := submit("t+10", 10*time.Millisecond)
	p3 := submit("t+20", 20*time.Millisecond)

	for s.Len() > 0 {
		s.Step()
	}

	require.Equal(t, []string{"t+10", "t+20", "t+30"}, order)
	requireNoError(t, p2)
	requireNoError(t, p3)
	requireNoError(t, p1)
}

func requireNoError(t *testing.T, p *Pending) {
	t.Helper()
	select {
	case r := <-p.Result():
		require.NoError(t, r.Err)
	default:
		t.Fatal("expected a delivered result")
	}
}

func TestSubmissionOrderBreaksDeadlineTies(t *testing.T) {
	base := time.Unix(2000, 0)
	s := New(Options{Clock: fixedClock(base)})

	var order []int
	for i := 0; i < 3; i++ {
		i := i
		s.Submit(base, func() (any, error) {
			order = append(order, i)
			return nil, nil
		})
	}
	for s.Len() > 0 {
		s.Step()
	}
	require.Equal(t, []int{0, 1, 2}, order)
}

func TestExpiredDeadlineFailsWithoutExecuting(t *testing.T) {
	base := time.Unix(3000, 0)
	// Deadline 20ms in the past, grace 10ms: past the grace window.
	s := New(Options{GraceMS: 10, Clock: fixedClock(base)})

	executed := false
	p := s.Submit(base.Add(-20*time.Millisecond), func() (any, error) {
		executed = true
		return nil, nil
	})

	require.True(t, s.Step())
	require.False(t, executed)

	r := <-p.Result()
	require.ErrorIs(t, r.Err, ErrDeadlineExpired)
}

func TestDeadlineWithinGraceStillExecutes(t *testing.T) {
	base := time.Unix(4000, 0)
	s := New(Options{GraceMS: 10, Clock: fixedClock(base)})

	executed := false
	p := s.Submit(base.Add(-5*time.Millisecond), func() (any, error) {
		executed = true
		return "ok", nil
	})

	s.Step()
	require.True(t, executed)
	r := <-p.Result()
	require.NoError(t, r.Err)
	require.Equal(t, "ok", r.Value)
}

func TestBackgroundJobsNeverExpireAndRunLast(t *testing.T) {
	base := time.Unix(5000, 0)
	s := New(Options{GraceMS: 10, Clock: fixedClock(base)})

	var order []string
	s.SubmitBackground(func() (any, error) {
		order = append(order, "gc")
		return nil, nil
	})
	s.Submit(base.Add(5*time.Millisecond), func() (any, error) {
		order = append(order, "put")
		return nil, nil
	})

	for s.Len() > 0 {
		s.Step()
	}
	require.Equal(t, []string{"put", "gc"}, order)
}

func TestCancelBeforeDispatchRemovesJob(t *testing.T) {
	base := time.Unix(6000, 0)
	s := New(Options{Clock: fixedClock(base)})

	executed := false
	p := s.Submit(base.Add(time.Second), func() (any, error) {
		executed = true
		return nil, nil
	})

	require.True(t, p.Cancel())
	require.Equal(t, 0, s.Len())

	r := <-p.Result()
	require.ErrorIs(t, r.Err, ErrCanceled)
	require.False(t, executed)
}

func TestCancelAfterDispatchIsNoOpAndResultStillDelivered(t *testing.T) {
	base := time.Unix(7000, 0)
	s := New(Options{Clock: fixedClock(base)})

	var p *Pending
	p = s.Submit(base, func() (any, error) {
		// Cancel races with (but after) dispatch: index is already -1,
		// so this must not suppress the real result (§4.7: no preemption
		// once dispatched).
		require.False(t, p.Cancel())
		return "late", nil
	})

	s.Step()

	r := <-p.Result()
	require.NoError(t, r.Err)
	require.Equal(t, "late", r.Value)
}

func TestSubmitAfterCloseFailsImmediately(t *testing.T) {
	s := New(Options{})
	s.Close()

	p := s.Submit(time.Now(), func() (any, error) { return nil, nil })
	r := <-p.Result()
	require.ErrorIs(t, r.Err, ErrClosed)
}

func TestWorkConservingStepDrainsQueue(t *testing.T) {
	base := time.Unix(8000, 0)
	s := New(Options{Clock: fixedClock(base)})

	for i := 0; i < 5; i++ {
		s.Submit(base, func() (any, error) { return nil, nil })
	}
	require.Equal(t, 5, s.Len())

	count := 0
	for s.Step() {
		count++
	}
	require.Equal(t, 5, count)
	require.False(t, s.Step())
}
