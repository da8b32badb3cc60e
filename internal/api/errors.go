package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/ubuntu/recordfeed/internal/model"
)

var (
	// ErrMalformedTarget is returned when the request target cannot be built from the parameters.
	// No I/O happens in that case.
	ErrMalformedTarget = errors.New("malformed request target")
	// ErrNotFound is the cause of a RemoteError for a record the remote does not know.
	ErrNotFound = errors.New("record not found")
)

// TransportError is returned when the request could not complete: unreachable host, timeout, cancellation.
type TransportError struct {
	Target string
	Err    error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("request to %s failed: %v", e.Target, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// RemoteError is returned when the remote answers with a non success status.
type RemoteError struct {
	Target     string
	StatusCode int
	// Err optionally carries a known cause, like ErrNotFound.
	Err error
}

func (e *RemoteError) Error() string {
	msg := fmt.Sprintf("remote answered %d %s for %s", e.StatusCode, http.StatusText(e.StatusCode), e.Target)
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *RemoteError) Unwrap() error {
	return e.Err
}

// Kind names the class of a fetch error, for metrics and logs.
type Kind string

// Error kinds.
const (
	KindOK        Kind = "ok"
	KindMalformed Kind = "malformed"
	KindTransport Kind = "transport"
	KindRemote    Kind = "remote"
	KindDecode    Kind = "decode"
	KindUnknown   Kind = "unknown"
)

// KindOf classifies err.
func KindOf(err error) Kind {
	var (
		te *TransportError
		re *RemoteError
		de *model.DecodeError
	)

	switch {
	case err == nil:
		return KindOK
	case errors.Is(err, ErrMalformedTarget):
		return KindMalformed
	case errors.As(err, &te):
		return KindTransport
	case errors.As(err, &re):
		return KindRemote
	case errors.As(err, &de):
		return KindDecode
	}
	return KindUnknown
}
