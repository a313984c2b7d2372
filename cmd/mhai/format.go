package main

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"
	"github.com/zulandar/mhai/internal/conversation"
	"github.com/zulandar/mhai/internal/models"
)

// syncWriter serializes writes from the event renderer and the input loop.
type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *syncWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}

// printer renders a conversation transcript.
type printer struct {
	out       io.Writer
	you       func(a ...any) string
	companion func(a ...any) string
	dim       func(a ...any) string
	warn      func(a ...any) string
}

func newPrinter(out io.Writer, colorize bool) *printer {
	mk := func(attrs ...color.Attribute) func(a ...any) string {
		c := color.New(attrs...)
		if colorize {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
		return c.SprintFunc()
	}
	return &printer{
		out:       out,
		you:       mk(color.FgGreen, color.Bold),
		companion: mk(color.FgCyan, color.Bold),
		dim:       mk(color.Faint),
		warn:      mk(color.FgYellow),
	}
}

func (p *printer) banner(s conversation.Surface, username string) {
	fmt.Fprintf(p.out, "%s %s\n", p.companion("mhai "+s.Name), p.dim("signed in as "+username))
	fmt.Fprintln(p.out, p.dim("Type a message and press Enter. /refresh polls now, /quit leaves."))
	fmt.Fprintln(p.out)
}

func (p *printer) inputPrompt() {
	fmt.Fprint(p.out, p.you("> "))
}

func (p *printer) message(m models.Message) {
	fmt.Fprint(p.out, formatPrompt(m, p.you, p.dim))
	if m.Answered() {
		fmt.Fprint(p.out, formatResponse(m, p.companion, p.dim))
	} else {
		fmt.Fprintln(p.out, p.dim("  ... waiting for a reply"))
	}
}

func (p *printer) response(m models.Message) {
	fmt.Fprint(p.out, formatResponse(m, p.companion, p.dim))
}

func (p *printer) transcript(msgs []models.Message) {
	if len(msgs) == 0 {
		fmt.Fprintln(p.out, p.dim("No messages yet."))
		return
	}
	for _, m := range msgs {
		p.message(m)
	}
}

func (p *printer) errorLine(err error) {
	fmt.Fprintln(p.out, p.warn("! "+describeError(err)))
}

// event renders one view event. Loaded prints the whole history.
func (p *printer) event(e conversation.Event) {
	switch e.Kind {
	case conversation.EventLoaded:
		p.transcript(e.Messages)
	case conversation.EventAdded:
		p.message(e.Message)
	case conversation.EventAnswered:
		p.response(e.Message)
	case conversation.EventPendingTimeout, conversation.EventFetchFailed,
		conversation.EventPollFailed, conversation.EventSubmitFailed:
		p.errorLine(e.Err)
	}
}

func formatPrompt(m models.Message, label, dim func(a ...any) string) string {
	return fmt.Sprintf("%s %s %s\n", dim(formatClock(m.PromptTimestamp)), label("You:"), m.Prompt)
}

func formatResponse(m models.Message, label, dim func(a ...any) string) string {
	var ts time.Time
	if m.ResponseTimestamp != nil {
		ts = *m.ResponseTimestamp
	}
	body := strings.TrimSpace(m.Response)
	return fmt.Sprintf("%s %s %s\n", dim(formatClock(ts)), label("Companion:"), body)
}

// formatClock renders a local HH:MM, or blanks when the time is unknown.
func formatClock(t time.Time) string {
	if t.IsZero() {
		return "     "
	}
	return t.Local().Format("15:04")
}

// describeError trims transport detail to what a reader needs.
func describeError(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, conversation.ErrBusy):
		return "please wait for the reply before sending another message"
	case errors.Is(err, conversation.ErrNotLoaded):
		return "the conversation is still loading, try again in a moment"
	default:
		return err.Error()
	}
}
