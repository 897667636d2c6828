package spdb

// lifecycle.go implements the deferred-close state machine.
//
// A database handle may be destroyed only when no cursor is attached to it.
// Close requests that arrive while cursors are attached are recorded and
// completed by the release of the last cursor.
//
//	Closed --open--> Open(0) --acquire/release--> Open(n)
//	Open(0)  --requestClose--> Closed                (closed now)
//	Open(n>0) --requestClose--> PendingClose(n)      (deferred)
//	PendingClose(1) --release--> Closed              (completed by the cursor)
//
// The machine owns no engine resource. It tells its caller when a destroy
// must happen; the caller performs it and reports the outcome with closed or
// closeFailed.

import "fmt"

type lifecycleState uint8

const (
	stateClosed lifecycleState = iota
	stateOpen
	statePendingClose
)

func (s lifecycleState) String() string {
	switch s {
	case stateClosed:
		return "closed"
	case stateOpen:
		return "open"
	case statePendingClose:
		return "pending-close"
	default:
		return fmt.Sprintf("lifecycleState(%d)", uint8(s))
	}
}

// closeDecision is the answer to a close request.
type closeDecision uint8

const (
	// closeAlready means there was nothing to close.
	closeAlready closeDecision = iota
	// closeNow means the caller must destroy the database now.
	closeNow
	// closeDeferred means the close will be completed by the last cursor.
	closeDeferred
)

type lifecycle struct {
	state  lifecycleState
	active uint
}

// opened records a successful engine open.
func (l *lifecycle) opened() {
	if l.state != stateClosed {
		panic(fmt.Sprintf("spdb: open in state %s", l.state)) //nolint:forbidigo // invariant violation
	}
	l.state = stateOpen
	l.active = 0
}

// usable reports whether the database handle is live, including while a
// close is pending.
func (l *lifecycle) usable() bool {
	return l.state != stateClosed
}

// pending reports whether a close request is waiting on cursors.
func (l *lifecycle) pending() bool {
	return l.state == statePendingClose
}

// acquire attaches a cursor. Cursors cannot attach to a closed handle or to
// one whose close is already pending.
func (l *lifecycle) acquire() bool {
	if l.state != stateOpen {
		return false
	}
	l.active++
	return true
}

// release detaches a cursor. It returns true when the caller must now
// complete the pending close by destroying the database.
func (l *lifecycle) release() bool {
	if l.active == 0 {
		panic("spdb: cursor released more times than acquired") //nolint:forbidigo // invariant violation
	}
	l.active--
	return l.active == 0 && l.state == statePendingClose
}

// requestClose decides what a close request does right now.
func (l *lifecycle) requestClose() closeDecision {
	switch {
	case l.state == stateClosed:
		return closeAlready
	case l.active > 0:
		l.state = statePendingClose
		return closeDeferred
	default:
		return closeNow
	}
}

// closed records that the database handle was destroyed.
func (l *lifecycle) closed() {
	if l.active != 0 {
		panic(fmt.Sprintf("spdb: database destroyed with %d attached cursors", l.active)) //nolint:forbidigo // invariant violation
	}
	l.state = stateClosed
}

// closeFailed records that destroying the database failed. The handle stays
// open with its pending marker cleared so that a later close can retry.
func (l *lifecycle) closeFailed() {
	if l.state == statePendingClose {
		l.state = stateOpen
	}
}
