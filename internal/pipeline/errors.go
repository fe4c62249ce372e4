package pipeline

import (
	"errors"
	"fmt"

	"github.com/orbitverse/chat-core/internal/protocol"
)

// Reject is a structured rejection returned to the originating caller only.
// Code is one of the protocol.Reason* constants; Message is the inline
// reason shown to the sender. No other session ever observes a Reject.
type Reject struct {
	Code    string
	Message string
}

// Error implements the error interface.
func (r *Reject) Error() string {
	return r.Code + ": " + r.Message
}

func reject(code, message string) error {
	return &Reject{Code: code, Message: message}
}

func rejectf(code, format string, args ...interface{}) error {
	return &Reject{Code: code, Message: fmt.Sprintf(format, args...)}
}

// AsReject unwraps err to a *Reject if it is one.
func AsReject(err error) (*Reject, bool) {
	var r *Reject
	if errors.As(err, &r) {
		return r, true
	}
	return nil, false
}

// RejectCode returns the protocol reason code for err. Errors that are not
// structured rejections are persistence/internal failures.
func RejectCode(err error) string {
	if r, ok := AsReject(err); ok {
		return r.Code
	}
	return protocol.ReasonPersistence
}
