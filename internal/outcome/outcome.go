// Package outcome defines the failure taxonomy shared by token acquisition,
// the generation executor and the command dispatcher.
package outcome

import (
	"errors"
	"fmt"
)

// Kind classifies why a command did not succeed.
type Kind string

const (
	KindAuthRequired Kind = "AuthRequired"
	KindAuthExpired  Kind = "AuthExpired"
	KindNetwork      Kind = "Network"
	KindTimeout      Kind = "Timeout"
	KindServerError  Kind = "ServerError"
	KindInvalid      Kind = "Invalid"
	// KindInternal covers faults caught at the dispatcher boundary that fit no other kind.
	KindInternal Kind = "Internal"
)

// Failure is the error value produced for every unsuccessful command.
type Failure struct {
	Kind    Kind
	Status  int
	Message string
	Detail  map[string]any
	cause   error
}

func (f *Failure) Error() string {
	if f.Kind == KindServerError && f.Status != 0 {
		return fmt.Sprintf("%s(%d): %s", f.Kind, f.Status, f.Message)
	}
	return fmt.Sprintf("%s: %s", f.Kind, f.Message)
}

func (f *Failure) Unwrap() error {
	return f.cause
}

// New builds a failure of the given kind.
func New(kind Kind, message string) *Failure {
	return &Failure{Kind: kind, Message: message}
}

// Wrap builds a failure that keeps the underlying cause for errors.Is checks.
func Wrap(kind Kind, message string, cause error) *Failure {
	return &Failure{Kind: kind, Message: message, cause: cause}
}

// ServerError builds a failure for a remote rejection with the given status.
func ServerError(status int, message string) *Failure {
	return &Failure{Kind: KindServerError, Status: status, Message: message}
}

// AuthRequired reports that no usable credential exists.
func AuthRequired(cause error) *Failure {
	return Wrap(KindAuthRequired, "Authentication required. Please sign in through the genbridge agent.", cause)
}

// AuthExpired reports that only a stale stored credential exists.
func AuthExpired() *Failure {
	return New(KindAuthExpired, "Authentication expired. Open the genbridge agent to sign in again.")
}

// From converts any error into a Failure. Errors that are not already
// failures become KindInternal.
func From(err error) *Failure {
	if err == nil {
		return nil
	}
	var f *Failure
	if errors.As(err, &f) {
		return f
	}
	return Wrap(KindInternal, err.Error(), err)
}

// Is reports whether err is a Failure of the given kind.
func Is(err error, kind Kind) bool {
	var f *Failure
	if errors.As(err, &f) {
		return f.Kind == kind
	}
	return false
}
