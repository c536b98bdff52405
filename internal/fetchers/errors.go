package fetchers

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies why a backend call failed.
type Kind int

const (
	KindTransport  Kind = iota + 1 // no response
	KindHTTPStatus                 // non-2xx status
	KindRejected                   // well-formed response with success:false
	KindMalformed                  // body is not the expected envelope
)

var (
	ErrTransport  = errors.New("transport failure")
	ErrHTTPStatus = errors.New("http error status")
	ErrRejected   = errors.New("rejected by backend")
	ErrMalformed  = errors.New("malformed response")

	ErrFetchInFlight    = errors.New("fetch already in flight")
	ErrMutationInFlight = errors.New("mutation already in flight")
	ErrUnknownAction    = errors.New("unknown action")
	ErrInvalidMutation  = errors.New("invalid mutation")
)

func (k Kind) sentinel() error {
	switch k {
	case KindTransport:
		return ErrTransport
	case KindHTTPStatus:
		return ErrHTTPStatus
	case KindRejected:
		return ErrRejected
	default:
		return ErrMalformed
	}
}

func (k Kind) String() string {
	return k.sentinel().Error()
}

// ActionError is the single normalized failure of a fetch or mutation.
// Message, when set, is the backend's human-readable explanation.
type ActionError struct {
	Op      string
	Kind    Kind
	Status  int
	Message string
	Err     error
}

func (e *ActionError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Op, e.Kind)
	if e.Status != 0 {
		msg += fmt.Sprintf(" (%d %s)", e.Status, http.StatusText(e.Status))
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap exposes both the kind sentinel and the cause to errors.Is/As.
func (e *ActionError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind.sentinel()}
	}
	return []error{e.Kind.sentinel(), e.Err}
}

// UserMessage renders err as the text shown to the operator.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var actionErr *ActionError
	if errors.As(err, &actionErr) && actionErr.Message != "" {
		return "action failed: " + actionErr.Message
	}
	return "action failed"
}
