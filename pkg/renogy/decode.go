package renogy

import (
	"fmt"
	"math"
)

// Decoded is the typed result of decoding one RawFrame. Metrics are in
// final SI-scaled units regardless of the register scale factors.
type Decoded struct {
	Metrics        map[string]float64
	ChargingStatus string
}

// Decode maps a RawFrame's register words to named metrics using the fixed
// register table. It does not know or care which transport produced the
// frame. Out-of-range values yield a malformed-response Failure rather than
// a silently wrong reading.
func Decode(frame *RawFrame) (*Decoded, error) {
	if frame == nil || len(frame.Registers) != len(registerTable) {
		got := 0
		if frame != nil {
			got = len(frame.Registers)
		}
		return nil, newFailure(FailureMalformedResponse, frameTarget(frame),
			fmt.Errorf("expected %d register words, got %d", len(registerTable), got))
	}

	out := &Decoded{Metrics: make(map[string]float64, len(registerTable)+1)}

	for i, def := range registerTable {
		word := frame.Registers[i]
		switch def.Kind {
		case regScaled:
			value := float64(word) * def.Scale
			// scale factors are decimal; keep two digits like the raw protocol
			value = math.Round(value*100) / 100
			if def.Max > 0 && value > def.Max {
				return nil, newFailure(FailureMalformedResponse, frame.Target,
					fmt.Errorf("register 0x%04X (%s) out of range: %v > %v", def.Address, def.Metric, value, def.Max))
			}
			out.Metrics[def.Metric] = value
		case regCombinedTemp:
			out.Metrics[MetricControllerTemperature] = float64(toSigned8(uint8(word >> 8)))
			out.Metrics[MetricBatteryTemperature] = float64(toSigned8(uint8(word & 0xFF)))
		case regChargingStatus:
			code := uint8(word & 0xFF)
			status, ok := chargingStatus[code]
			if !ok {
				status = fmt.Sprintf("unknown_%d", code)
			}
			out.ChargingStatus = status
		}
	}

	return out, nil
}

func frameTarget(frame *RawFrame) string {
	if frame == nil {
		return ""
	}
	return frame.Target
}
