package conversation

import (
	"fmt"
	"time"
)

// Surface describes one conversation endpoint. Chat responses are bundled
// into the POST result; diary responses arrive later through polling.
type Surface struct {
	Name         string
	Path         string        // REST collection path, with trailing slash
	InputField   string        // JSON field carrying the user's text on POST
	PollInterval time.Duration // default polling period
}

// Known surfaces.
var (
	Chat = Surface{
		Name:         "chat",
		Path:         "/api/mhai-chat/",
		InputField:   "user_input",
		PollInterval: 5 * time.Second,
	}
	Diary = Surface{
		Name:         "diary",
		Path:         "/api/my-diary/",
		InputField:   "prompt",
		PollInterval: time.Second,
	}
)

// SurfaceByName looks up a known surface.
func SurfaceByName(name string) (Surface, error) {
	switch name {
	case Chat.Name:
		return Chat, nil
	case Diary.Name:
		return Diary, nil
	default:
		return Surface{}, fmt.Errorf("conversation: unknown surface %q (want chat or diary)", name)
	}
}

// PollMode selects what each poll asks the server for.
type PollMode int

const (
	// PollSince asks only for messages after a boundary id (server-filtered).
	PollSince PollMode = iota
	// PollFull re-fetches the whole list and relies on Merge to dedupe.
	PollFull
)

func (m PollMode) String() string {
	switch m {
	case PollSince:
		return "since"
	case PollFull:
		return "full"
	default:
		return "unknown"
	}
}

// ParsePollMode parses "since" or "full".
func ParsePollMode(s string) (PollMode, error) {
	switch s {
	case "since", "":
		return PollSince, nil
	case "full":
		return PollFull, nil
	default:
		return 0, fmt.Errorf("conversation: unknown poll mode %q (want since or full)", s)
	}
}
