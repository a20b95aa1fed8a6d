package renogy

import (
	"context"
	"sync"
	"time"
)

// TestTransport is a scripted in-memory transport for tests: each Acquire
// consumes the next Outcome. It also counts acquisitions so tests can check
// retry bounds and open/release symmetry.
type TestTransport struct {
	TargetName string
	TransKind  string
	// Outcomes are consumed in order; the last one repeats once exhausted.
	Outcomes []Outcome
	// Delay is applied before returning each outcome.
	Delay time.Duration

	mu       sync.Mutex
	acquires int
	releases int
}

// Outcome scripts one Acquire result. Exactly one of Frame or Fail is set.
type Outcome struct {
	Frame *RawFrame
	Fail  *Failure
}

// FrameOutcome scripts a successful acquisition of the given canonical
// register words.
func FrameOutcome(target string, registers []uint16) Outcome {
	return Outcome{Frame: &RawFrame{
		Target:     target,
		CapturedAt: time.Now(),
		Registers:  registers,
	}}
}

// FailOutcome scripts a failed acquisition of the given kind.
func FailOutcome(kind FailureKind, target string) Outcome {
	return Outcome{Fail: newFailure(kind, target, nil)}
}

// HealthyRegisters returns a full canonical frame with plausible values:
// SOC 82%, battery 13.2V charging at 2.5A, panel at 18.4V/6.5A/120W.
func HealthyRegisters() []uint16 {
	registers := make([]uint16, len(registerTable))
	for i, def := range registerTable {
		switch def.Address {
		case 0x0100:
			registers[i] = 82
		case 0x0101:
			registers[i] = 132
		case 0x0102:
			registers[i] = 250
		case 0x0103:
			registers[i] = 0x1F14 // controller 31C, battery 20C
		case 0x0107:
			registers[i] = 184
		case 0x0108:
			registers[i] = 650
		case 0x0109:
			registers[i] = 120
		case 0x0120:
			registers[i] = 2 // mppt
		}
	}
	return registers
}

func (t *TestTransport) Kind() string {
	if t.TransKind == "" {
		return KindSerial
	}
	return t.TransKind
}

func (t *TestTransport) Target() string {
	return t.TargetName
}

func (t *TestTransport) Acquire(ctx context.Context) (*RawFrame, error) {
	t.mu.Lock()
	index := t.acquires
	t.acquires++
	t.mu.Unlock()

	// resources are scoped to the call, mirroring the real transports
	defer func() {
		t.mu.Lock()
		t.releases++
		t.mu.Unlock()
	}()

	if t.Delay > 0 {
		select {
		case <-time.After(t.Delay):
		case <-ctx.Done():
			return nil, newFailure(FailureTimeout, t.TargetName, ctx.Err())
		}
	}

	if len(t.Outcomes) == 0 {
		return nil, newFailure(FailureTransportUnavailable, t.TargetName, nil)
	}
	if index >= len(t.Outcomes) {
		index = len(t.Outcomes) - 1
	}
	outcome := t.Outcomes[index]
	if outcome.Fail != nil {
		return nil, outcome.Fail
	}
	return outcome.Frame, nil
}

// Acquires reports how many times Acquire was called.
func (t *TestTransport) Acquires() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.acquires
}

// Balanced reports whether every acquisition released its resources.
func (t *TestTransport) Balanced() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.acquires == t.releases
}
