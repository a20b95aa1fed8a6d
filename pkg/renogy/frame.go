package renogy

import "time"

// RawFrame is the transport-agnostic product of one acquisition: the
// canonical register words (aligned with the package register table), the
// capture time and the target they came from. Frames are transient; they
// are handed to Decode and never persisted.
type RawFrame struct {
	Target     string
	CapturedAt time.Time
	Registers  []uint16
}
