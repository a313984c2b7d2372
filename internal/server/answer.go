package server

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/zulandar/mhai/internal/alert"
	"github.com/zulandar/mhai/internal/models"
)

// FallbackResponse is stored when no answer could be produced, so the
// client's pending wait still ends.
const FallbackResponse = "Sorry, I couldn't put a reply together just now. Please try again in a moment."

// Request is what a Responder is asked to answer.
type Request struct {
	Surface string
	Prompt  string
	History []models.Message // earlier answered exchanges, oldest first
}

// Responder produces the system's reply to one prompt.
type Responder interface {
	Respond(ctx context.Context, req Request) (string, error)
}

// EchoResponder reflects the prompt back after a fixed delay. It stands in
// for a real model during development and tests.
type EchoResponder struct {
	Delay time.Duration
}

// Respond implements Responder.
func (e EchoResponder) Respond(ctx context.Context, req Request) (string, error) {
	if e.Delay > 0 {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(e.Delay):
		}
	}
	quoted := truncate(strings.TrimSpace(req.Prompt), 160)
	if req.Surface == models.SurfaceDiary {
		return fmt.Sprintf("Thank you for writing this down. You said: %q. What stood out to you most about it?", quoted), nil
	}
	if len(req.History) == 0 {
		return fmt.Sprintf("Hi, I'm here to listen. You said: %q. How are you feeling right now?", quoted), nil
	}
	return fmt.Sprintf("I hear you: %q. Tell me more about that.", quoted), nil
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n]) + "..."
}

// enqueue queues a message for a worker. When the queue is full the message
// stays started and the stale sweep answers it later.
func (s *Server) enqueue(id uint) {
	select {
	case s.jobs <- id:
	default:
		log.Printf("server: answer queue full, message %d left for the sweeper", id)
	}
}

func (s *Server) work(ctx context.Context) {
	defer s.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case id := <-s.jobs:
			s.answer(ctx, id)
		}
	}
}

// answer produces and stores the response for one message. Failures store
// FallbackResponse with status error and raise an alert.
func (s *Server) answer(ctx context.Context, id uint) {
	msg, err := getMessage(s.db, id)
	if err != nil {
		log.Printf("server: answer: %v", err)
		return
	}
	if msg.Answered() {
		return
	}
	if err := markInProgress(s.db, id); err != nil {
		log.Printf("server: answer: mark message %d in progress: %v", id, err)
	}

	history, err := recentHistory(s.db, msg)
	if err != nil {
		log.Printf("server: answer: %v", err)
	}
	text, err := s.responder.Respond(ctx, Request{Surface: msg.Surface, Prompt: msg.Prompt, History: history})
	if err == nil && strings.TrimSpace(text) == "" {
		err = fmt.Errorf("empty response")
	}
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		s.fail(ctx, msg, err)
		return
	}

	if _, err := finishMessage(s.db, id, text, models.StatusCompleted, s.now()); err != nil {
		log.Printf("server: answer: %v", err)
	}
}

func (s *Server) fail(ctx context.Context, msg *models.Message, cause error) {
	ok, err := finishMessage(s.db, msg.ID, FallbackResponse, models.StatusError, s.now())
	if err != nil {
		log.Printf("server: answer: %v", err)
		return
	}
	if !ok {
		return
	}
	log.Printf("server: answer: message %d failed: %v", msg.ID, cause)
	s.notify(ctx, alert.Alert{
		Title:    "Answer failed",
		Body:     cause.Error(),
		Severity: alert.SeverityError,
		Fields:   messageFields(msg),
	})
}

func (s *Server) notify(ctx context.Context, a alert.Alert) {
	if err := s.notifier.Notify(ctx, a); err != nil {
		log.Printf("server: alert: %v", err)
	}
}

func messageFields(m *models.Message) []alert.Field {
	return []alert.Field{
		{Name: "message", Value: fmt.Sprintf("%d", m.ID), Short: true},
		{Name: "surface", Value: m.Surface, Short: true},
		{Name: "user", Value: fmt.Sprintf("%d", m.UserID), Short: true},
	}
}
