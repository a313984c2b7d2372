package conversation

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/zulandar/mhai/internal/models"
)

// Transport is the network side of one surface.
type Transport interface {
	// List returns the surface's messages in ascending id order. A nil since
	// asks for the full list; otherwise only ids strictly greater than *since.
	List(ctx context.Context, since *uint) ([]models.Message, error)
	// Send posts the user's text and returns the stored message.
	Send(ctx context.Context, text string) (models.Message, error)
}

// EventKind identifies what changed in a View.
type EventKind int

const (
	EventLoaded EventKind = iota
	EventAdded
	EventAnswered
	EventResolved
	EventPendingTimeout
	EventFetchFailed
	EventPollFailed
	EventSubmitFailed
)

func (k EventKind) String() string {
	switch k {
	case EventLoaded:
		return "loaded"
	case EventAdded:
		return "added"
	case EventAnswered:
		return "answered"
	case EventResolved:
		return "resolved"
	case EventPendingTimeout:
		return "pending_timeout"
	case EventFetchFailed:
		return "fetch_failed"
	case EventPollFailed:
		return "poll_failed"
	case EventSubmitFailed:
		return "submit_failed"
	default:
		return "unknown"
	}
}

// Event is emitted on View.Events whenever the visible state changes.
type Event struct {
	Kind     EventKind
	Message  models.Message   // set for message events
	Messages []models.Message // full log, set for EventLoaded
	Err      error            // set for failure and timeout events
}

// Snapshot is a consistent copy of a View's state.
type Snapshot struct {
	Messages     []models.Message
	State        State
	Pending      uint
	Sending      bool
	Draft        string
	Err          error
	Loaded       bool
	SkippedPolls int64
}

// CanSubmit reports whether a new message would be accepted.
func (s Snapshot) CanSubmit() bool {
	return s.Loaded && !s.Sending && s.State == Idle
}

// ViewOpts holds parameters for creating a View.
type ViewOpts struct {
	Transport      Transport        // required
	Surface        Surface          // required
	PollInterval   time.Duration    // default: Surface.PollInterval
	PollMode       PollMode         // default: PollSince
	PendingTimeout time.Duration    // 0 waits forever
	Clock          func() time.Time // default: time.Now
	EventBuffer    int              // default: 64
}

// View owns the conversation state for one surface while it is on screen:
// the message log, the pending-response correlator, the submitter and the
// poller. All state changes happen under one mutex and network calls run
// outside it, so results apply in the order they complete. Results that
// arrive after Unmount are discarded.
//
// A View is mounted once; create a new one to show the surface again.
type View struct {
	transport Transport
	surface   Surface
	mode      PollMode
	now       func() time.Time
	poller    *Poller

	mu       sync.Mutex
	store    *Store
	corr     *Correlator
	sub      Submitter
	mounted  bool
	finished bool
	loaded   bool
	lastErr  error
	events   chan Event
}

// NewView creates an unmounted View.
func NewView(opts ViewOpts) (*View, error) {
	if opts.Transport == nil {
		return nil, fmt.Errorf("conversation: transport is required")
	}
	if opts.Surface.Name == "" {
		return nil, fmt.Errorf("conversation: surface is required")
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = opts.Surface.PollInterval
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = time.Second
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.EventBuffer <= 0 {
		opts.EventBuffer = 64
	}

	v := &View{
		transport: opts.Transport,
		surface:   opts.Surface,
		mode:      opts.PollMode,
		now:       opts.Clock,
		store:     NewStore(),
		corr:      NewCorrelator(opts.PendingTimeout),
		events:    make(chan Event, opts.EventBuffer),
	}
	p, err := NewPoller(PollerOpts{
		Interval: opts.PollInterval,
		Fetch:    v.fetch,
		Apply:    v.apply,
		OnError:  v.pollFailed,
	})
	if err != nil {
		return nil, err
	}
	v.poller = p
	return v, nil
}

// Surface returns the surface this view shows.
func (v *View) Surface() Surface {
	return v.surface
}

// Events returns the change stream. It is closed by Unmount. Events are
// dropped when the buffer is full; Snapshot always has the current state.
func (v *View) Events() <-chan Event {
	return v.events
}

// Mount loads the full history, derives the pending state from it and starts
// polling. When the initial fetch fails Mount returns an error wrapping
// ErrFetchFailed but polling still starts, and the first successful poll
// performs the initial load.
func (v *View) Mount(ctx context.Context) error {
	v.mu.Lock()
	if v.mounted || v.finished {
		v.mu.Unlock()
		if v.finished {
			return ErrUnmounted
		}
		return nil
	}
	v.mounted = true
	v.mu.Unlock()

	msgs, err := v.transport.List(ctx, nil)

	v.mu.Lock()
	if !v.mounted {
		v.mu.Unlock()
		return ErrUnmounted
	}
	var mountErr error
	if err != nil {
		mountErr = fmt.Errorf("conversation: %s: %w: %w", v.surface.Name, ErrFetchFailed, err)
		v.lastErr = mountErr
		v.emit(Event{Kind: EventFetchFailed, Err: mountErr})
	} else {
		v.load(msgs)
	}
	v.poller.Start(ctx)
	v.mu.Unlock()
	return mountErr
}

// Unmount stops polling, drops the pending wait and closes the event stream.
// Responses still in flight are discarded when they arrive.
func (v *View) Unmount() {
	v.mu.Lock()
	if v.finished {
		v.mu.Unlock()
		return
	}
	v.mounted = false
	v.finished = true
	v.corr.Reset()
	v.mu.Unlock()

	v.poller.Stop()

	v.mu.Lock()
	close(v.events)
	v.mu.Unlock()
}

// SetDraft replaces the input text.
func (v *View) SetDraft(text string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.sub.SetDraft(text)
}

// Submit sends text as a new message. It fails with ErrEmptyInput for blank
// text and ErrBusy while a send is in flight or a response is pending; both
// leave the state untouched. Until the history has loaded it fails with
// ErrNotLoaded. A transport failure returns an error wrapping
// ErrSubmitFailed and keeps the draft.
func (v *View) Submit(ctx context.Context, text string) (models.Message, error) {
	v.mu.Lock()
	if !v.mounted {
		v.mu.Unlock()
		return models.Message{}, ErrUnmounted
	}
	if !v.loaded {
		v.mu.Unlock()
		return models.Message{}, ErrNotLoaded
	}
	v.expire()
	if err := v.sub.Begin(text, v.corr); err != nil {
		v.mu.Unlock()
		return models.Message{}, err
	}
	v.mu.Unlock()

	msg, err := v.transport.Send(ctx, text)

	v.mu.Lock()
	defer v.mu.Unlock()
	if !v.mounted {
		return msg, ErrUnmounted
	}
	if err != nil {
		v.sub.Fail()
		wrapped := fmt.Errorf("conversation: %s: %w: %w", v.surface.Name, ErrSubmitFailed, err)
		v.lastErr = wrapped
		v.emit(Event{Kind: EventSubmitFailed, Err: wrapped})
		return models.Message{}, wrapped
	}

	appended, err := v.sub.Succeed(msg, v.store, v.corr, v.now())
	if err != nil {
		wrapped := fmt.Errorf("conversation: %s: %w: %w", v.surface.Name, ErrSubmitFailed, err)
		v.lastErr = wrapped
		v.emit(Event{Kind: EventSubmitFailed, Err: wrapped})
		return msg, wrapped
	}
	v.lastErr = nil
	if appended {
		stored, _ := v.store.Get(msg.ID)
		v.emit(Event{Kind: EventAdded, Message: stored})
	}
	return msg, nil
}

// Refresh runs one poll immediately. It returns ErrPollInFlight when a poll
// is already running.
func (v *View) Refresh(ctx context.Context) error {
	v.mu.Lock()
	mounted := v.mounted
	v.mu.Unlock()
	if !mounted {
		return ErrUnmounted
	}
	return v.poller.Poll(ctx)
}

// Snapshot returns a copy of the current state.
func (v *View) Snapshot() Snapshot {
	v.mu.Lock()
	defer v.mu.Unlock()
	pending, _ := v.corr.Pending()
	return Snapshot{
		Messages:     v.store.Messages(),
		State:        v.corr.State(),
		Pending:      pending,
		Sending:      v.sub.Sending(),
		Draft:        v.sub.Draft(),
		Err:          v.lastErr,
		Loaded:       v.loaded,
		SkippedPolls: v.poller.Skipped(),
	}
}

// fetch picks the request boundary under the lock and calls the transport
// outside it.
func (v *View) fetch(ctx context.Context) ([]models.Message, error) {
	v.mu.Lock()
	if !v.mounted {
		v.mu.Unlock()
		return nil, ErrUnmounted
	}
	v.expire()
	since := v.boundary()
	v.mu.Unlock()

	return v.transport.List(ctx, since)
}

// boundary returns the since id for the next poll, or nil for a full fetch.
// While any entry in the log is still unanswered, whether it is our own
// pending message, an expired wait or one written elsewhere, the boundary
// sits just before the oldest such entry so that its answered copy is
// returned again.
func (v *View) boundary() *uint {
	if !v.loaded || v.mode == PollFull {
		return nil
	}
	if oldest, ok := v.store.OldestUnanswered(); ok {
		prev, ok := v.store.Before(oldest)
		if !ok {
			return nil
		}
		return &prev
	}
	cur, ok := v.store.Cursor()
	if !ok {
		return nil
	}
	return &cur
}

func (v *View) apply(msgs []models.Message) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if !v.mounted {
		return
	}
	if isFetchError(v.lastErr) {
		v.lastErr = nil
	}
	if !v.loaded {
		v.load(msgs)
		return
	}

	res := v.store.Merge(msgs)
	for _, m := range res.Added {
		v.emit(Event{Kind: EventAdded, Message: m})
	}
	for _, m := range res.Answered {
		v.emit(Event{Kind: EventAnswered, Message: m})
	}
	if pending, ok := v.corr.Pending(); ok && v.corr.Observe(v.store) {
		m, _ := v.store.Get(pending)
		v.emit(Event{Kind: EventResolved, Message: m})
	}
}

// load performs the initial load. Callers hold v.mu.
func (v *View) load(msgs []models.Message) {
	v.store.Initialize(msgs)
	v.corr.Recover(v.store, v.now())
	v.loaded = true
	v.emit(Event{Kind: EventLoaded, Messages: v.store.Messages()})
}

func (v *View) pollFailed(err error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if !v.mounted {
		return
	}
	err = fmt.Errorf("conversation: %s: %w", v.surface.Name, err)
	v.lastErr = err
	v.emit(Event{Kind: EventPollFailed, Err: err})
}

// expire abandons a pending wait whose deadline has passed. Callers hold v.mu.
func (v *View) expire() {
	id, ok := v.corr.Expire(v.now())
	if !ok {
		return
	}
	m, _ := v.store.Get(id)
	err := fmt.Errorf("conversation: %s: message %d: %w", v.surface.Name, id, ErrResponseTimeout)
	v.lastErr = err
	v.emit(Event{Kind: EventPendingTimeout, Message: m, Err: err})
}

// emit delivers e without blocking. Callers hold v.mu.
func (v *View) emit(e Event) {
	if v.finished && !v.mounted {
		return
	}
	select {
	case v.events <- e:
	default:
		log.Printf("conversation: %s: event buffer full, dropped %s event", v.surface.Name, e.Kind)
	}
}

func isFetchError(err error) bool {
	return errors.Is(err, ErrFetchFailed) || errors.Is(err, ErrPollFailed)
}
