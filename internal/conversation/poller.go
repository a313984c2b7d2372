package conversation

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/zulandar/mhai/internal/models"
)

// FetchFunc reads the messages a poll should merge.
type FetchFunc func(ctx context.Context) ([]models.Message, error)

// ApplyFunc receives the result of a successful fetch.
type ApplyFunc func(msgs []models.Message)

// Poller runs a single repeating timer that fetches and applies new
// messages. Only one fetch is outstanding at a time: a tick that fires while
// the previous fetch is still running is skipped. Failures are reported and
// polling continues on the next tick.
type Poller struct {
	interval time.Duration
	fetch    FetchFunc
	apply    ApplyFunc
	onError  func(error)

	inFlight atomic.Bool
	skipped  atomic.Int64
	polls    atomic.Int64

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// PollerOpts holds parameters for creating a Poller.
type PollerOpts struct {
	Interval time.Duration // required
	Fetch    FetchFunc     // required
	Apply    ApplyFunc     // required
	OnError  func(error)   // optional; failures are always logged
}

// NewPoller creates a stopped Poller.
func NewPoller(opts PollerOpts) (*Poller, error) {
	if opts.Interval <= 0 {
		return nil, fmt.Errorf("conversation: poller: interval must be positive")
	}
	if opts.Fetch == nil {
		return nil, fmt.Errorf("conversation: poller: fetch is required")
	}
	if opts.Apply == nil {
		return nil, fmt.Errorf("conversation: poller: apply is required")
	}
	return &Poller{
		interval: opts.Interval,
		fetch:    opts.Fetch,
		apply:    opts.Apply,
		onError:  opts.OnError,
	}, nil
}

// Start launches the polling loop. Calling Start on a running Poller is a
// no-op. The loop ends when ctx is cancelled or Stop is called.
func (p *Poller) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil {
		return
	}
	loopCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.done = make(chan struct{})
	go p.run(loopCtx, p.done)
}

// Stop cancels the timer and any in-flight fetch, and waits for the loop to
// exit. It is safe to call more than once.
func (p *Poller) Stop() {
	p.mu.Lock()
	cancel, done := p.cancel, p.done
	p.cancel, p.done = nil, nil
	p.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Running reports whether the loop is active.
func (p *Poller) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cancel != nil
}

// Skipped returns how many polls were skipped because one was in flight.
func (p *Poller) Skipped() int64 {
	return p.skipped.Load()
}

// Polls returns how many fetches have completed, successfully or not.
func (p *Poller) Polls() int64 {
	return p.polls.Load()
}

func (p *Poller) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := p.Poll(ctx); err != nil && ctx.Err() == nil {
				if errors.Is(err, ErrPollInFlight) {
					continue
				}
				log.Printf("conversation: %v", err)
			}
		}
	}
}

// Poll runs one fetch-and-apply cycle. It returns ErrPollInFlight without
// fetching when another cycle is still running.
func (p *Poller) Poll(ctx context.Context) error {
	if !p.inFlight.CompareAndSwap(false, true) {
		p.skipped.Add(1)
		return ErrPollInFlight
	}
	defer p.inFlight.Store(false)

	msgs, err := p.fetch(ctx)
	p.polls.Add(1)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		wrapped := fmt.Errorf("%w: %w", ErrPollFailed, err)
		if p.onError != nil {
			p.onError(wrapped)
		}
		return wrapped
	}
	p.apply(msgs)
	return nil
}
