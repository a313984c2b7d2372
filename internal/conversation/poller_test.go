package conversation

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/zulandar/mhai/internal/models"
)

func TestNewPoller_Validation(t *testing.T) {
	fetch := func(context.Context) ([]models.Message, error) { return nil, nil }
	apply := func([]models.Message) {}

	tests := []struct {
		name string
		opts PollerOpts
	}{
		{"zero interval", PollerOpts{Fetch: fetch, Apply: apply}},
		{"nil fetch", PollerOpts{Interval: time.Second, Apply: apply}},
		{"nil apply", PollerOpts{Interval: time.Second, Fetch: fetch}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewPoller(tt.opts); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestPollerPoll_AppliesResult(t *testing.T) {
	var got []models.Message
	p, err := NewPoller(PollerOpts{
		Interval: time.Hour,
		Fetch: func(context.Context) ([]models.Message, error) {
			return []models.Message{msg(1, "a", "b")}, nil
		},
		Apply: func(msgs []models.Message) { got = msgs },
	})
	if err != nil {
		t.Fatalf("new poller: %v", err)
	}
	if err := p.Poll(context.Background()); err != nil {
		t.Fatalf("poll: %v", err)
	}
	if len(got) != 1 || got[0].ID != 1 {
		t.Errorf("applied = %v, want [1]", ids(got))
	}
	if p.Polls() != 1 {
		t.Errorf("polls = %d, want 1", p.Polls())
	}
}

func TestPollerPoll_ErrorReportedNotApplied(t *testing.T) {
	applied := false
	var reported error
	p, _ := NewPoller(PollerOpts{
		Interval: time.Hour,
		Fetch: func(context.Context) ([]models.Message, error) {
			return nil, errors.New("connection refused")
		},
		Apply:   func([]models.Message) { applied = true },
		OnError: func(err error) { reported = err },
	})

	err := p.Poll(context.Background())
	if !errors.Is(err, ErrPollFailed) {
		t.Fatalf("err = %v, want ErrPollFailed", err)
	}
	if applied {
		t.Error("apply called on failure")
	}
	if !errors.Is(reported, ErrPollFailed) {
		t.Errorf("reported = %v, want ErrPollFailed", reported)
	}
}

func TestPollerPoll_SingleFlight(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	p, _ := NewPoller(PollerOpts{
		Interval: time.Hour,
		Fetch: func(context.Context) ([]models.Message, error) {
			close(started)
			<-release
			return nil, nil
		},
		Apply: func([]models.Message) {},
	})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = p.Poll(context.Background())
	}()
	<-started

	if err := p.Poll(context.Background()); !errors.Is(err, ErrPollInFlight) {
		t.Errorf("overlapping poll err = %v, want ErrPollInFlight", err)
	}
	close(release)
	wg.Wait()

	if p.Skipped() != 1 {
		t.Errorf("skipped = %d, want 1", p.Skipped())
	}
}

func TestPollerStartStop(t *testing.T) {
	var calls atomic.Int64
	p, _ := NewPoller(PollerOpts{
		Interval: 5 * time.Millisecond,
		Fetch: func(context.Context) ([]models.Message, error) {
			calls.Add(1)
			return nil, nil
		},
		Apply: func([]models.Message) {},
	})

	p.Start(context.Background())
	p.Start(context.Background())
	if !p.Running() {
		t.Fatal("expected poller to be running")
	}

	deadline := time.Now().Add(2 * time.Second)
	for calls.Load() < 3 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	p.Stop()
	p.Stop()

	if calls.Load() < 3 {
		t.Fatalf("calls = %d, want at least 3", calls.Load())
	}
	if p.Running() {
		t.Error("expected poller to be stopped")
	}
	after := calls.Load()
	time.Sleep(30 * time.Millisecond)
	if calls.Load() != after {
		t.Errorf("fetch ran after Stop: %d -> %d", after, calls.Load())
	}
}

func TestPoller_KeepsTickingAfterFailures(t *testing.T) {
	var calls atomic.Int64
	p, _ := NewPoller(PollerOpts{
		Interval: 5 * time.Millisecond,
		Fetch: func(context.Context) ([]models.Message, error) {
			calls.Add(1)
			return nil, errors.New("offline")
		},
		Apply: func([]models.Message) {},
	})
	p.Start(context.Background())
	defer p.Stop()

	deadline := time.Now().Add(2 * time.Second)
	for calls.Load() < 3 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if calls.Load() < 3 {
		t.Errorf("calls = %d, want polling to continue after errors", calls.Load())
	}
}

func TestPollerStop_CancelsInFlightFetch(t *testing.T) {
	started := make(chan struct{})
	var once sync.Once
	p, _ := NewPoller(PollerOpts{
		Interval: time.Millisecond,
		Fetch: func(ctx context.Context) ([]models.Message, error) {
			once.Do(func() { close(started) })
			<-ctx.Done()
			return nil, ctx.Err()
		},
		Apply: func([]models.Message) { t.Error("apply after cancel") },
	})
	p.Start(context.Background())
	<-started

	done := make(chan struct{})
	go func() {
		p.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return while a fetch was in flight")
	}
}

func TestParsePollMode(t *testing.T) {
	tests := []struct {
		in      string
		want    PollMode
		wantErr bool
	}{
		{"since", PollSince, false},
		{"", PollSince, false},
		{"full", PollFull, false},
		{"sometimes", 0, true},
	}
	for _, tt := range tests {
		got, err := ParsePollMode(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParsePollMode(%q) err = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParsePollMode(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestSurfaceByName(t *testing.T) {
	s, err := SurfaceByName("diary")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.Path != "/api/my-diary/" || s.InputField != "prompt" {
		t.Errorf("diary = %+v", s)
	}
	if _, err := SurfaceByName("profile"); err == nil {
		t.Error("expected error for unknown surface")
	}
}
