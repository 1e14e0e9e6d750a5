package framer

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
)

// queue collects dispatched fires so the test decides when they run.
type queue chan func()

func (q queue) dispatch(fn func()) { q <- fn }

func (q queue) next(t *testing.T) func() {
	t.Helper()
	select {
	case fn := <-q:
		return fn
	case <-time.After(time.Second):
		t.Fatal("alarm did not dispatch")
		return nil
	}
}

func (q queue) empty(t *testing.T) {
	t.Helper()
	select {
	case <-q:
		t.Fatal("unexpected dispatch")
	case <-time.After(quiet):
	}
}

func TestAlarmFiresOnce(t *testing.T) {
	fake := clockwork.NewFakeClock()
	q := make(queue, 4)
	fired := 0
	a := NewAlarm(fake, q.dispatch, func() { fired++ })

	a.Arm(10 * time.Millisecond)
	require.True(t, a.Armed())

	fake.Advance(10 * time.Millisecond)
	q.next(t)()
	require.Equal(t, 1, fired)
	require.False(t, a.Armed())

	fake.Advance(time.Second)
	q.empty(t)
	require.Equal(t, 1, fired)
}

func TestAlarmRearmReplacesDeadline(t *testing.T) {
	fake := clockwork.NewFakeClock()
	q := make(queue, 4)
	fired := 0
	a := NewAlarm(fake, q.dispatch, func() { fired++ })

	a.Arm(10 * time.Millisecond)
	fake.Advance(5 * time.Millisecond)
	a.Arm(10 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, fake.BlockUntilContext(ctx, 1))

	fake.Advance(5 * time.Millisecond)
	q.empty(t)
	require.Zero(t, fired)

	fake.Advance(5 * time.Millisecond)
	q.next(t)()
	require.Equal(t, 1, fired)
}

func TestAlarmCancelDropsQueuedFire(t *testing.T) {
	fake := clockwork.NewFakeClock()
	q := make(queue, 4)
	fired := 0
	a := NewAlarm(fake, q.dispatch, func() { fired++ })

	a.Arm(time.Millisecond)
	fake.Advance(time.Millisecond)
	queued := q.next(t)

	a.Cancel()
	queued()
	require.Zero(t, fired)
}
