package engine

import (
	"errors"
	"fmt"
)

// Severity classifies an engine failure.
type Severity int

const (
	// SeverityCommon is an expected failure, such as an unavailable source.
	SeverityCommon Severity = iota
	// SeveritySuspicious is a failure with an unclear cause.
	SeveritySuspicious
	// SeverityFault is a bug or broken environment.
	SeverityFault
)

func (s Severity) String() string {
	switch s {
	case SeverityCommon:
		return "COMMON"
	case SeveritySuspicious:
		return "SUSPICIOUS"
	case SeverityFault:
		return "FAULT"
	}
	return "UNKNOWN"
}

// FriendlyError is an engine failure whose Message can be shown to users.
type FriendlyError struct {
	Message  string
	Severity Severity
	Cause    error
}

func NewFriendlyError(message string, severity Severity, cause error) *FriendlyError {
	return &FriendlyError{Message: message, Severity: severity, Cause: cause}
}

func (e *FriendlyError) Error() string {
	if e.Cause == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Cause)
}

func (e *FriendlyError) Unwrap() error {
	return e.Cause
}

var _ error = (*FriendlyError)(nil)

// RootCause returns the deepest error in err's Unwrap chain.
func RootCause(err error) error {
	for err != nil {
		next := errors.Unwrap(err)
		if next == nil {
			return err
		}
		err = next
	}
	return nil
}
