package interfaces

import (
	"context"
	"errors"
)

// ErrorKind is the semantic classification of a provisioning failure as it is
// reported to the job source.
type ErrorKind string

const (
	KindNone                  ErrorKind = ""
	KindNoTokenFound          ErrorKind = "NoTokenFound"
	KindMultipleTokensPresent ErrorKind = "MultipleTokensPresent"
	KindSerialNotFound        ErrorKind = "SerialNotFound"
	KindExternalTool          ErrorKind = "ExternalToolError"
	KindSessionInit           ErrorKind = "SessionInitError"
	KindSessionTeardown       ErrorKind = "SessionTeardownError"
	KindTokenReset            ErrorKind = "TokenResetError"
	KindInvalidConfig         ErrorKind = "InvalidConfig"
	KindInvalidArtifact       ErrorKind = "InvalidArtifact"
	KindInvalidJob            ErrorKind = "InvalidJob"
	KindCanceled              ErrorKind = "Canceled"
	KindUnknown               ErrorKind = "Unknown"
)

var (
	// ErrNoTokenFound is returned when the token tool lists no devices. It is
	// the only error retried while waiting for a token.
	ErrNoTokenFound = errors.New("no smartcard found")

	// ErrMultipleTokensPresent is returned when more than one device is attached.
	ErrMultipleTokensPresent = errors.New("multiple smartcards present")

	// ErrSerialNotFound is returned when the device listing has no "Serial:" field.
	ErrSerialNotFound = errors.New("cannot find smartcard serial number")

	// ErrExternalTool is returned when an external command could not be
	// spawned or exited unsuccessfully.
	ErrExternalTool = errors.New("external tool failed")

	// ErrSessionInit is returned when the isolated key-management home or its
	// agent could not be set up.
	ErrSessionInit = errors.New("could not initialize gpg session")

	// ErrSessionTeardown is returned when the agent could not be stopped or the
	// home directory could not be removed. Secret material may have leaked.
	ErrSessionTeardown = errors.New("could not clean up gpg session")

	// ErrTokenReset is returned when the factory reset of the token failed.
	ErrTokenReset = errors.New("smartcard factory reset failed")

	// ErrInvalidConfig is returned at startup for unusable configuration.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrInvalidArtifact is returned when an exported public artifact is empty
	// or cannot be parsed.
	ErrInvalidArtifact = errors.New("invalid public artifact")

	// ErrInvalidJob is returned for jobs missing identity fields.
	ErrInvalidJob = errors.New("invalid job")

	// ErrAlreadyRegistered is returned by the job source when the worker id is
	// already known. Registration treats it as success.
	ErrAlreadyRegistered = errors.New("worker already registered")
)

// errorKinds is a slice rather than a map: a map lookup panics on error
// values of uncomparable dynamic types.
var errorKinds = []struct {
	err  error
	kind ErrorKind
}{
	{ErrNoTokenFound, KindNoTokenFound},
	{ErrMultipleTokensPresent, KindMultipleTokensPresent},
	{ErrSerialNotFound, KindSerialNotFound},
	{ErrExternalTool, KindExternalTool},
	{ErrSessionInit, KindSessionInit},
	{ErrSessionTeardown, KindSessionTeardown},
	{ErrTokenReset, KindTokenReset},
	{ErrInvalidConfig, KindInvalidConfig},
	{ErrInvalidArtifact, KindInvalidArtifact},
	{ErrInvalidJob, KindInvalidJob},
	{context.Canceled, KindCanceled},
	{context.DeadlineExceeded, KindCanceled},
}

// KindOf classifies err. The error tree is walked depth-first in wrap order,
// so for errors.Join(primary, teardown) the primary failure's kind wins.
func KindOf(err error) ErrorKind {
	if err == nil {
		return KindNone
	}
	if kind, ok := findKind(err); ok {
		return kind
	}
	return KindUnknown
}

func findKind(err error) (ErrorKind, bool) {
	if err == nil {
		return KindNone, false
	}
	for _, entry := range errorKinds {
		if err == entry.err {
			return entry.kind, true
		}
	}

	switch e := err.(type) {
	case interface{ Unwrap() []error }:
		for _, inner := range e.Unwrap() {
			if kind, ok := findKind(inner); ok {
				return kind, true
			}
		}
	case interface{ Unwrap() error }:
		return findKind(e.Unwrap())
	}
	return KindNone, false
}

// Retryable reports whether the error may resolve by waiting for the operator.
func Retryable(err error) bool {
	return KindOf(err) == KindNoTokenFound
}
