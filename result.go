package filepicker

import "errors"

// ErrInvalidConfig marks configuration errors rejected synchronously before
// any dispatch.
var ErrInvalidConfig = errors.New("filepicker: invalid configuration")

// ErrorKind classifies terminal failures.
type ErrorKind int

const (
	// InvalidConfiguration: the request could never dispatch as configured.
	InvalidConfiguration ErrorKind = iota
	// PermissionDenied: the capability gate resolved to denied.
	PermissionDenied
	// SourceFailure: an external source port failed preparing or launching.
	SourceFailure
	// ProcessingFailure: the image transform pipeline failed.
	ProcessingFailure
	// NoUsableResult: handles were produced but none could be normalized.
	NoUsableResult
)

func (k ErrorKind) String() string {
	switch k {
	case InvalidConfiguration:
		return "invalid-configuration"
	case PermissionDenied:
		return "permission-denied"
	case SourceFailure:
		return "source-failure"
	case ProcessingFailure:
		return "processing-failure"
	case NoUsableResult:
		return "no-usable-result"
	default:
		return "unknown"
	}
}

// Result is the outcome of an acquisition request. Exactly one of Success,
// Failure or Cancelled is delivered per request, exactly once.
type Result interface {
	isResult()
}

// Success carries the normalized records of the selected files.
type Success struct {
	Files []PickedFile
}

// Failure carries the failure classification and its cause.
type Failure struct {
	Kind ErrorKind
	Err  error
}

// Cancelled reports that the user abandoned the request before completion.
// It is a first-class outcome, not an error.
type Cancelled struct{}

func (Success) isResult()   {}
func (Failure) isResult()   {}
func (Cancelled) isResult() {}

func (f Failure) Error() string {
	if f.Err == nil {
		return f.Kind.String()
	}
	return f.Kind.String() + ": " + f.Err.Error()
}

// Unwrap exposes the cause for errors.Is/As inspection.
func (f Failure) Unwrap() error { return f.Err }
