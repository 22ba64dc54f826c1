package errors

import (
	stderrors "errors"
	"fmt"
)

// Kind classifies a messaging failure by how the client surfaces it.
type Kind string

const (
	// TransportError: push connection dropped or handshake failed. Recovered by reconnect.
	TransportError Kind = "transport"
	// FetchError: history or directory load failed. Shown as an error state with retry.
	FetchError Kind = "fetch"
	// SendError: validation or store rejection on send. Shown at the input, draft kept.
	SendError Kind = "send"
	// ReadStateError: mark-read failed. Logged and absorbed.
	ReadStateError Kind = "read_state"
)

// Error is a messaging failure tagged with its Kind and the operation that produced it.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s error", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// E wraps err with kind and op. A nil err yields nil.
func E(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// IsKind reports whether err carries the given Kind anywhere in its chain.
func IsKind(err error, kind Kind) bool {
	var e *Error
	for err != nil {
		if !stderrors.As(err, &e) {
			return false
		}
		if e.Kind == kind {
			return true
		}
		err = e.Err
	}
	return false
}

// ErrEmptyBody is returned by the send path when a message has no text.
var ErrEmptyBody = stderrors.New("message body is empty")
