package service

import (
	"github.com/tim-oe/piSolar/internal/core/domain"
	"github.com/tim-oe/piSolar/internal/core/events"

	"go.uber.org/zap"
)

// ReadingLogger logs every reading published on the bus, so a run with
// metrics and MQTT disabled still leaves a trace of each acquisition.
type ReadingLogger struct {
	logger *zap.Logger
}

func NewReadingLogger(logger *zap.Logger) *ReadingLogger {
	return &ReadingLogger{logger: logger.With(zap.String("component", "readinglog"))}
}

// Subscribe registers the logger for all bus topics.
func (l *ReadingLogger) Subscribe(bus *events.Bus) *events.Subscription {
	return bus.SubscribeAll(l.Consume)
}

func (l *ReadingLogger) Consume(event events.Event) {
	re, ok := event.(events.ReadingEvent)
	if !ok {
		return
	}
	fields := []zap.Field{
		zap.String("sensor", re.Reading.SensorName()),
		zap.String("source", re.Reading.Source()),
		zap.Time("at", re.Reading.At()),
		zap.Any("values", re.Reading.Values()),
	}
	if solar, ok := re.Reading.(domain.SolarReading); ok {
		fields = append(fields, zap.String("charging_status", solar.ChargingStatus))
	}
	l.logger.Info("reading", fields...)
}
