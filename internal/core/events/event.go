package events

import (
	"github.com/tim-oe/piSolar/internal/core/domain"
)

const (
	TopicSolarReading       = "solar.reading"
	TopicTemperatureReading = "temperature.reading"
)

// Event is anything the bus can route: payloads are keyed by topic name.
type Event interface {
	Topic() string
}

// ReadingEvent wraps one normalized reading; its topic derives from the
// reading's source type ("solar" -> solar.reading).
type ReadingEvent struct {
	Reading domain.Reading
}

func (e ReadingEvent) Topic() string {
	return e.Reading.Source() + ".reading"
}

// ReadingEvents maps a batch of readings onto bus events.
func ReadingEvents(readings []domain.Reading) []Event {
	events := make([]Event, 0, len(readings))
	for _, r := range readings {
		events = append(events, ReadingEvent{Reading: r})
	}
	return events
}
