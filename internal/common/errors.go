package common

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// ErrorKind classifies a failure for the library/API boundary. Each kind maps
// to exactly one CLI exit code.
type ErrorKind string

const (
	ErrUsage    ErrorKind = "usage"     // Bad config, unknown name, invalid transition
	ErrNotFound ErrorKind = "not_found" // Unknown project, snapshot, or plugin
	ErrResource ErrorKind = "resource"  // Filesystem or lock failure
	ErrInternal ErrorKind = "internal"  // Invariant breach, carries a correlation id
)

// Envelope is the structured error returned across the library boundary.
type Envelope struct {
	Kind          ErrorKind              `json:"kind"`
	Message       string                 `json:"message"`
	Context       map[string]interface{} `json:"context,omitempty"`
	CorrelationID string                 `json:"correlation_id,omitempty"`
}

func (e *Envelope) Error() string {
	if e.CorrelationID != "" {
		return fmt.Sprintf("%s: %s [%s]", e.Kind, e.Message, e.CorrelationID)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// UsageError reports a caller mistake. State is never mutated before one of
// these is returned.
func UsageError(format string, args ...interface{}) *Envelope {
	return &Envelope{Kind: ErrUsage, Message: fmt.Sprintf(format, args...)}
}

// NotFoundError reports an unknown project, snapshot, or plugin name.
func NotFoundError(format string, args ...interface{}) *Envelope {
	return &Envelope{Kind: ErrNotFound, Message: fmt.Sprintf(format, args...)}
}

// ResourceError wraps a filesystem or lock failure.
func ResourceError(err error, format string, args ...interface{}) *Envelope {
	msg := fmt.Sprintf(format, args...)
	if err != nil {
		msg = fmt.Sprintf("%s: %v", msg, err)
	}
	return &Envelope{Kind: ErrResource, Message: msg}
}

// InternalError surfaces an invariant violation with a fresh correlation id.
func InternalError(err error) *Envelope {
	return &Envelope{
		Kind:          ErrInternal,
		Message:       err.Error(),
		CorrelationID: uuid.New().String(),
	}
}

// KindOf extracts the error kind from any error, defaulting to internal.
func KindOf(err error) ErrorKind {
	var env *Envelope
	if errors.As(err, &env) {
		return env.Kind
	}
	return ErrInternal
}
