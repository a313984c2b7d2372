package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Surfaces a message can belong to.
const (
	SurfaceChat  = "chat"
	SurfaceDiary = "diary"
)

// Message processing statuses.
const (
	StatusStarted    = "started"
	StatusInProgress = "in-progress"
	StatusCompleted  = "completed"
	StatusError      = "error"
)

// Message is one prompt/response pair. The ID is assigned by the server and
// is the only key used to reconcile client-side logs.
type Message struct {
	ID                uint      `gorm:"primaryKey;autoIncrement"`
	Surface           string    `gorm:"size:16;not null;index:idx_surface_user"`
	UserID            uint      `gorm:"not null;index:idx_surface_user"`
	Prompt            string    `gorm:"type:text;not null"`
	Response          string    `gorm:"type:text"`
	Status            string    `gorm:"size:16;default:started;index"`
	PromptTimestamp   time.Time `gorm:"index"`
	ResponseTimestamp *time.Time
}

// Answered reports whether the response has been produced. A JSON null, an
// empty string and whitespace-only text all count as absent.
func (m Message) Answered() bool {
	return strings.TrimSpace(m.Response) != ""
}

// Clone returns a copy that shares no pointers with m.
func (m Message) Clone() Message {
	if m.ResponseTimestamp != nil {
		ts := *m.ResponseTimestamp
		m.ResponseTimestamp = &ts
	}
	return m
}

// messageOut is the wire form written by the server.
type messageOut struct {
	ID                uint       `json:"id"`
	User              uint       `json:"user,omitempty"`
	Prompt            string     `json:"prompt"`
	Response          *string    `json:"response"`
	Status            string     `json:"status,omitempty"`
	PromptTimestamp   time.Time  `json:"prompt_timestamp"`
	ResponseTimestamp *time.Time `json:"response_timestamp"`
}

// messageIn accepts both field dialects seen on the wire: prompt/response
// and user_input/ai_response.
type messageIn struct {
	ID                *uint      `json:"id"`
	User              *uint      `json:"user"`
	Prompt            *string    `json:"prompt"`
	UserInput         *string    `json:"user_input"`
	Response          *string    `json:"response"`
	AIResponse        *string    `json:"ai_response"`
	Status            string     `json:"status"`
	PromptTimestamp   *time.Time `json:"prompt_timestamp"`
	ResponseTimestamp *time.Time `json:"response_timestamp"`
}

// MarshalJSON encodes an absent response as null.
func (m Message) MarshalJSON() ([]byte, error) {
	out := messageOut{
		ID:                m.ID,
		User:              m.UserID,
		Prompt:            m.Prompt,
		Status:            m.Status,
		PromptTimestamp:   m.PromptTimestamp,
		ResponseTimestamp: m.ResponseTimestamp,
	}
	if m.Answered() {
		resp := m.Response
		out.Response = &resp
	}
	return json.Marshal(out)
}

// UnmarshalJSON decodes either wire dialect and rejects records without an id.
func (m *Message) UnmarshalJSON(data []byte) error {
	var in messageIn
	if err := json.Unmarshal(data, &in); err != nil {
		return fmt.Errorf("models: message: %w", err)
	}
	if in.ID == nil || *in.ID == 0 {
		return fmt.Errorf("models: message: missing id")
	}

	*m = Message{
		ID:                *in.ID,
		Prompt:            firstNonNil(in.Prompt, in.UserInput),
		Response:          firstNonNil(in.Response, in.AIResponse),
		Status:            in.Status,
		ResponseTimestamp: in.ResponseTimestamp,
	}
	if in.User != nil {
		m.UserID = *in.User
	}
	if in.PromptTimestamp != nil {
		m.PromptTimestamp = *in.PromptTimestamp
	}
	return nil
}

func firstNonNil(vals ...*string) string {
	for _, v := range vals {
		if v != nil && strings.TrimSpace(*v) != "" {
			return *v
		}
	}
	return ""
}
