package renogy

import "fmt"

// FailureKind classifies a failed acquisition attempt.
type FailureKind string

const (
	FailureTimeout              FailureKind = "timeout"
	FailureDeviceNotFound       FailureKind = "device-not-found"
	FailureConnectionRefused    FailureKind = "connection-refused"
	FailureMalformedResponse    FailureKind = "malformed-response"
	FailureTransportUnavailable FailureKind = "transport-unavailable"
)

// Failure is the terminal outcome of an acquisition attempt (or of a whole
// poll, once retries are exhausted). It is always either retried or
// surfaced, never dropped.
type Failure struct {
	Kind     FailureKind
	Target   string
	Attempts int
	Err      error
}

func (f *Failure) Error() string {
	if f.Err != nil {
		return fmt.Sprintf("renogy %s: %s (target %s, attempt %d): %s",
			f.Kind, failureText(f.Kind), f.Target, f.Attempts, f.Err)
	}
	return fmt.Sprintf("renogy %s: %s (target %s, attempt %d)",
		f.Kind, failureText(f.Kind), f.Target, f.Attempts)
}

func (f *Failure) Unwrap() error {
	return f.Err
}

// Retryable reports whether the failure is likely to self-resolve on a
// later attempt. Malformed responses are handled separately by the caller:
// they get a single retry to guard against transient line noise.
func (f *Failure) Retryable() bool {
	switch f.Kind {
	case FailureTimeout, FailureDeviceNotFound, FailureTransportUnavailable, FailureConnectionRefused:
		return true
	default:
		return false
	}
}

func failureText(kind FailureKind) string {
	switch kind {
	case FailureTimeout:
		return "device did not respond in time"
	case FailureDeviceNotFound:
		return "no matching device found"
	case FailureConnectionRefused:
		return "connection dropped before a complete frame"
	case FailureMalformedResponse:
		return "response failed validation"
	case FailureTransportUnavailable:
		return "transport could not be opened"
	default:
		return "unknown failure"
	}
}

func newFailure(kind FailureKind, target string, err error) *Failure {
	return &Failure{Kind: kind, Target: target, Attempts: 1, Err: err}
}

// AsFailure coerces any error into a *Failure so the taxonomy holds at the
// facade boundary. Unknown errors map to transport-unavailable.
func AsFailure(err error, target string) *Failure {
	if err == nil {
		return nil
	}
	if f, ok := err.(*Failure); ok {
		return f
	}
	return newFailure(FailureTransportUnavailable, target, err)
}
