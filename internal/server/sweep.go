package server

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/zulandar/mhai/internal/alert"
	"github.com/zulandar/mhai/internal/models"
)

// cronParser uses standard 5-field cron expressions (minute, hour, dom, month, dow).
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// SweepResult reports what one sweep did.
type SweepResult struct {
	Stale           int
	ExpiredSessions int64
}

// Sweep gives up on messages that have waited longer than the stale
// threshold: each gets FallbackResponse with status error and raises an
// alert. Expired sessions are removed as well.
func (s *Server) Sweep(ctx context.Context) (SweepResult, error) {
	var res SweepResult
	now := s.now()

	stale, err := staleMessages(s.db, now.Add(-s.staleAfter))
	if err != nil {
		return res, fmt.Errorf("server: sweep: %w", err)
	}
	for i := range stale {
		m := &stale[i]
		ok, err := finishMessage(s.db, m.ID, FallbackResponse, models.StatusError, now)
		if err != nil {
			return res, fmt.Errorf("server: sweep: %w", err)
		}
		if !ok {
			continue
		}
		res.Stale++
		s.notify(ctx, alert.Alert{
			Title:    "Stale message",
			Body:     fmt.Sprintf("no answer after %s; stored fallback response", s.staleAfter),
			Severity: alert.SeverityWarning,
			Fields:   messageFields(m),
		})
	}

	n, err := deleteExpiredSessions(s.db, now)
	if err != nil {
		return res, fmt.Errorf("server: sweep: delete expired sessions: %w", err)
	}
	res.ExpiredSessions = n
	return res, nil
}

// runSweeper calls Sweep on the cron schedule until ctx is cancelled.
func (s *Server) runSweeper(ctx context.Context) {
	for {
		wait := time.Until(s.schedule.Next(time.Now()))
		if wait < 0 {
			wait = 0
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		res, err := s.Sweep(ctx)
		if err != nil {
			log.Printf("%v", err)
			continue
		}
		if res.Stale > 0 || res.ExpiredSessions > 0 {
			log.Printf("server: sweep: %d stale messages, %d expired sessions", res.Stale, res.ExpiredSessions)
		}
	}
}
