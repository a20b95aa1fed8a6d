package mqtt

import (
	"encoding/json"
	"time"

	"github.com/tim-oe/piSolar/internal/core/domain"
)

// ReadingPayload is the JSON document published per reading.
type ReadingPayload struct {
	Sensor         string             `json:"sensor"`
	Source         string             `json:"source"`
	At             string             `json:"at"`
	Values         map[string]float64 `json:"values"`
	ChargingStatus string             `json:"charging_status,omitempty"`
}

func PayloadForReading(reading domain.Reading) ([]byte, error) {
	payload := ReadingPayload{
		Sensor: reading.SensorName(),
		Source: reading.Source(),
		At:     reading.At().Format(time.RFC3339),
		Values: reading.Values(),
	}
	if solar, ok := reading.(domain.SolarReading); ok {
		payload.ChargingStatus = solar.ChargingStatus
	}
	return json.Marshal(payload)
}
