package k8srelay

import "fmt"

// ErrorKind categorizes RelayError. Grounded on the CollectorError/ErrorType
// pattern used throughout pkg/collectors/k8s/core in the teacher repo.
type ErrorKind string

const (
	ErrorKindTransport ErrorKind = "transport"
	ErrorKindOverflow  ErrorKind = "overflow"
	ErrorKindMalformed ErrorKind = "malformed"
)

// RelayError is returned by session/server code for failures a caller may
// want to branch on via errors.As, instead of matching on error strings.
type RelayError struct {
	Kind    ErrorKind
	Message string
	Cause   error
}

func (e *RelayError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *RelayError) Unwrap() error {
	return e.Cause
}

func newRelayError(kind ErrorKind, message string, cause error) *RelayError {
	return &RelayError{Kind: kind, Message: message, Cause: cause}
}
