package conversation

import "errors"

// Errors surfaced by the conversation view. None of them is fatal: the view
// keeps running and renders them inline.
var (
	ErrFetchFailed      = errors.New("initial fetch failed")
	ErrPollFailed       = errors.New("poll failed")
	ErrSubmitFailed     = errors.New("submit failed")
	ErrEmptyInput       = errors.New("message is empty")
	ErrBusy             = errors.New("a message is already being sent or awaiting its response")
	ErrAwaitingResponse = errors.New("already awaiting a response")
	ErrResponseTimeout  = errors.New("timed out waiting for a response")
	ErrPollInFlight     = errors.New("poll already in flight")
	ErrUnmounted        = errors.New("view is not mounted")
	ErrNotLoaded        = errors.New("history has not loaded yet")
)
