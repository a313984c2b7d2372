package conversation

import (
	"time"
)

// State is the correlator's view of the outstanding submission.
type State int

const (
	// Idle means no sent message is waiting for its response.
	Idle State = iota
	// AwaitingResponse means one sent message has no response yet.
	AwaitingResponse
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case AwaitingResponse:
		return "awaiting_response"
	default:
		return "unknown"
	}
}

// Correlator tracks at most one pending message and resolves it when the
// store holds that message with a response. A non-zero timeout bounds the
// wait; without one a response that never arrives keeps the correlator
// pending forever.
type Correlator struct {
	state    State
	pending  uint
	deadline time.Time
	timeout  time.Duration
}

// NewCorrelator creates an idle Correlator. timeout <= 0 disables the bound.
func NewCorrelator(timeout time.Duration) *Correlator {
	if timeout < 0 {
		timeout = 0
	}
	return &Correlator{timeout: timeout}
}

// State returns the current state.
func (c *Correlator) State() State {
	return c.state
}

// Pending returns the id being awaited.
func (c *Correlator) Pending() (uint, bool) {
	if c.state != AwaitingResponse {
		return 0, false
	}
	return c.pending, true
}

// Deadline returns when the pending wait expires. Zero when idle or unbounded.
func (c *Correlator) Deadline() time.Time {
	if c.state != AwaitingResponse {
		return time.Time{}
	}
	return c.deadline
}

// Await moves Idle to AwaitingResponse(id). Only one message may be pending;
// awaiting the id already pending is a no-op.
func (c *Correlator) Await(id uint, now time.Time) error {
	if c.state == AwaitingResponse {
		if c.pending == id {
			return nil
		}
		return ErrAwaitingResponse
	}
	c.state = AwaitingResponse
	c.pending = id
	c.deadline = time.Time{}
	if c.timeout > 0 {
		c.deadline = now.Add(c.timeout)
	}
	return nil
}

// Recover derives the state from a freshly loaded log: pending when the
// last message has no response, idle otherwise. It reports whether a
// pending message was found.
func (c *Correlator) Recover(s *Store, now time.Time) bool {
	c.Reset()
	last, ok := s.Last()
	if !ok || last.Answered() {
		return false
	}
	_ = c.Await(last.ID, now)
	return true
}

// Observe resolves the pending message when the store holds it with a
// response. It reports whether a transition to Idle happened.
func (c *Correlator) Observe(s *Store) bool {
	if c.state != AwaitingResponse {
		return false
	}
	m, ok := s.Get(c.pending)
	if !ok || !m.Answered() {
		return false
	}
	c.Reset()
	return true
}

// Expire abandons the pending wait once its deadline has passed and returns
// the abandoned id. The message itself stays in the log.
func (c *Correlator) Expire(now time.Time) (uint, bool) {
	if c.state != AwaitingResponse || c.deadline.IsZero() || now.Before(c.deadline) {
		return 0, false
	}
	id := c.pending
	c.Reset()
	return id, true
}

// Reset forces the correlator back to Idle.
func (c *Correlator) Reset() {
	c.state = Idle
	c.pending = 0
	c.deadline = time.Time{}
}
