package renogy

import "context"

// Transport acquires one raw frame from a physical charge controller.
// Implementations open and unconditionally release their resources within
// a single Acquire call, on every exit path including cancellation; callers
// never hold a connection between polls.
//
// Acquire returns either a complete, validated RawFrame or a *Failure from
// the package taxonomy. Never both, never neither.
type Transport interface {
	Acquire(ctx context.Context) (*RawFrame, error)
	Kind() string
	Target() string
}

const (
	KindBluetooth = "bt"
	KindSerial    = "serial"
)
