package framer

import (
	"time"

	"github.com/jonboulle/clockwork"
)

// Alarm is a cancellable one-shot timer whose firing is handed to a
// dispatcher instead of running on the timer goroutine. Arm, Cancel and the
// dispatched fire must all run on the same goroutine.
//
// Each Arm bumps a generation counter; a fire that was already in flight when
// the alarm was re-armed or cancelled carries a stale generation and is
// dropped.
type Alarm struct {
	clock    clockwork.Clock
	dispatch func(func())
	fire     func()

	timer clockwork.Timer
	gen   uint64
	armed bool
}

// NewAlarm returns an unarmed alarm. dispatch must eventually run the given
// function on the owner's goroutine; fire is called there.
func NewAlarm(c clockwork.Clock, dispatch func(func()), fire func()) *Alarm {
	return &Alarm{clock: c, dispatch: dispatch, fire: fire}
}

// Arm (re)starts the alarm so it fires after d.
func (a *Alarm) Arm(d time.Duration) {
	a.Cancel()
	a.gen++
	a.armed = true

	gen := a.gen
	a.timer = a.clock.AfterFunc(d, func() {
		a.dispatch(func() { a.deliver(gen) })
	})
}

// Cancel disarms the alarm. A fire already queued on the dispatcher becomes
// a no-op.
func (a *Alarm) Cancel() {
	if a.timer != nil {
		a.timer.Stop()
		a.timer = nil
	}
	a.armed = false
	a.gen++
}

func (a *Alarm) Armed() bool { return a.armed }

func (a *Alarm) deliver(gen uint64) {
	if !a.armed || gen != a.gen {
		return
	}
	a.armed = false
	a.timer = nil
	a.fire()
}
