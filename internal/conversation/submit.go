package conversation

import (
	"strings"
	"time"

	"github.com/zulandar/mhai/internal/models"
)

// Submitter validates outbound messages and tracks the sending state and the
// draft text. The draft is cleared only after the server accepts the
// message, so a failed send leaves the text in place for a retry.
type Submitter struct {
	sending bool
	draft   string
}

// Draft returns the current input text.
func (s *Submitter) Draft() string {
	return s.draft
}

// SetDraft replaces the input text.
func (s *Submitter) SetDraft(text string) {
	s.draft = text
}

// Sending reports whether a submission request is in flight.
func (s *Submitter) Sending() bool {
	return s.sending
}

// CanSubmit reports whether a new submission would be accepted.
func (s *Submitter) CanSubmit(c *Correlator) bool {
	return !s.sending && c.State() == Idle
}

// Begin accepts text for sending. Empty or whitespace-only text and
// submissions while busy are rejected without changing any state.
func (s *Submitter) Begin(text string, c *Correlator) error {
	if strings.TrimSpace(text) == "" {
		return ErrEmptyInput
	}
	if !s.CanSubmit(c) {
		return ErrBusy
	}
	s.sending = true
	s.draft = text
	return nil
}

// Succeed records the server's acknowledgement: the message joins the log,
// the correlator awaits its response, and the draft is cleared. A message
// that already carries its response settles the correlator immediately.
// It reports whether the message was appended (false if a poll had already
// delivered it).
func (s *Submitter) Succeed(msg models.Message, store *Store, c *Correlator, now time.Time) (bool, error) {
	s.sending = false
	appended, err := store.AppendOptimistic(msg)
	if err != nil {
		return false, err
	}
	s.draft = ""
	if err := c.Await(msg.ID, now); err != nil {
		return appended, err
	}
	c.Observe(store)
	return appended, nil
}

// Fail re-enables submission and keeps the draft.
func (s *Submitter) Fail() {
	s.sending = false
}
