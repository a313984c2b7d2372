package conversation

import (
	"fmt"

	"github.com/zulandar/mhai/internal/models"
)

// Store is the ordered conversation log. Each message id appears exactly
// once, in order of first insertion. Entries are never removed; the only
// in-place change is filling an absent response.
//
// Store is not safe for concurrent use. View serializes access to it.
type Store struct {
	messages  []models.Message
	index     map[uint]int // message id -> position in messages
	cursor    uint
	hasCursor bool
	open      int // every entry before this position is answered
}

// MergeResult reports what a Merge changed.
type MergeResult struct {
	Added    []models.Message // appended, in log order
	Answered []models.Message // existing entries whose response arrived
}

// Changed reports whether the merge modified the log.
func (r MergeResult) Changed() bool {
	return len(r.Added) > 0 || len(r.Answered) > 0
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{index: make(map[uint]int)}
}

// Initialize replaces the log wholesale. The cursor is set to the id of the
// last message, or cleared when msgs is empty.
func (s *Store) Initialize(msgs []models.Message) {
	s.messages = make([]models.Message, 0, len(msgs))
	s.index = make(map[uint]int, len(msgs))
	s.cursor, s.hasCursor = 0, false
	s.open = 0
	for _, m := range msgs {
		if _, seen := s.index[m.ID]; seen {
			continue
		}
		s.push(m)
	}
	if n := len(s.messages); n > 0 {
		s.cursor, s.hasCursor = s.messages[n-1].ID, true
	}
}

// Merge appends every incoming message whose id is not yet in the log,
// preserving incoming order. A message already present is never replaced;
// the one exception is an absent response, which is filled in from an
// incoming copy that carries one. A present response is never overwritten.
func (s *Store) Merge(incoming []models.Message) MergeResult {
	var res MergeResult
	for _, in := range incoming {
		pos, seen := s.index[in.ID]
		if !seen {
			s.push(in)
			res.Added = append(res.Added, in.Clone())
			continue
		}
		cur := &s.messages[pos]
		if cur.Answered() || !in.Answered() {
			continue
		}
		cur.Response = in.Response
		cur.ResponseTimestamp = in.Clone().ResponseTimestamp
		if in.Status != "" {
			cur.Status = in.Status
		}
		res.Answered = append(res.Answered, cur.Clone())
	}
	if len(res.Added) > 0 {
		s.advance(s.messages[len(s.messages)-1].ID)
	}
	return res
}

// AppendOptimistic appends a message the client just submitted, before any
// poll confirms it. The id must come from the server. It returns false when
// the id is already present (a poll delivered it first); in that case the
// existing entry still picks up the response if it lacked one.
func (s *Store) AppendOptimistic(msg models.Message) (bool, error) {
	if msg.ID == 0 {
		return false, fmt.Errorf("conversation: optimistic append requires a server-assigned id")
	}
	if _, seen := s.index[msg.ID]; seen {
		s.Merge([]models.Message{msg})
		return false, nil
	}
	s.push(msg)
	s.advance(msg.ID)
	return true, nil
}

// Messages returns a copy of the log.
func (s *Store) Messages() []models.Message {
	out := make([]models.Message, len(s.messages))
	for i, m := range s.messages {
		out[i] = m.Clone()
	}
	return out
}

// Get returns the message with the given id.
func (s *Store) Get(id uint) (models.Message, bool) {
	pos, ok := s.index[id]
	if !ok {
		return models.Message{}, false
	}
	return s.messages[pos].Clone(), true
}

// Last returns the tail of the log.
func (s *Store) Last() (models.Message, bool) {
	if len(s.messages) == 0 {
		return models.Message{}, false
	}
	return s.messages[len(s.messages)-1].Clone(), true
}

// Len returns the number of messages in the log.
func (s *Store) Len() int {
	return len(s.messages)
}

// Cursor returns the id of the most recently known message.
func (s *Store) Cursor() (uint, bool) {
	return s.cursor, s.hasCursor
}

// OldestUnanswered returns the id of the earliest entry whose response is
// still absent. Entries only ever move from unanswered to answered, so the
// scan resumes where the previous one stopped.
func (s *Store) OldestUnanswered() (uint, bool) {
	for s.open < len(s.messages) && s.messages[s.open].Answered() {
		s.open++
	}
	if s.open == len(s.messages) {
		return 0, false
	}
	return s.messages[s.open].ID, true
}

// Before returns the id of the entry immediately preceding id in the log.
// ok is false when id is the first entry or not present.
func (s *Store) Before(id uint) (uint, bool) {
	pos, seen := s.index[id]
	if !seen || pos == 0 {
		return 0, false
	}
	return s.messages[pos-1].ID, true
}

func (s *Store) push(m models.Message) {
	s.index[m.ID] = len(s.messages)
	s.messages = append(s.messages, m.Clone())
}

// advance moves the cursor forward to id. It never moves backward.
func (s *Store) advance(id uint) {
	if !s.hasCursor || id > s.cursor {
		s.cursor, s.hasCursor = id, true
	}
}
