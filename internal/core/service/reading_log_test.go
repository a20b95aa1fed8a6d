package service

import (
	"testing"
	"time"

	"github.com/tim-oe/piSolar/internal/core/domain"
	"github.com/tim-oe/piSolar/internal/core/events"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestReadingLoggerLogsSolarReadings(t *testing.T) {
	assert := assert.New(t)

	core, logs := observer.New(zap.InfoLevel)
	logger := zap.New(core)

	bus := events.NewBus(logger)
	sub := NewReadingLogger(logger).Subscribe(bus)
	defer bus.Unsubscribe(sub)

	bus.Publish(events.ReadingEvent{Reading: domain.SolarReading{
		Name:           "rover",
		Time:           time.Now(),
		Metrics:        map[string]float64{"battery_percentage": 82},
		ChargingStatus: "mppt",
	}})

	entries := logs.FilterMessage("reading").All()
	if !assert.Len(entries, 1) {
		return
	}
	fields := entries[0].ContextMap()
	assert.Equal("rover", fields["sensor"])
	assert.Equal("solar", fields["source"])
	assert.Equal("mppt", fields["charging_status"])
}

func TestReadingLoggerOmitsChargingStatusForTemperature(t *testing.T) {
	assert := assert.New(t)

	core, logs := observer.New(zap.InfoLevel)
	logger := zap.New(core)

	bus := events.NewBus(logger)
	sub := NewReadingLogger(logger).Subscribe(bus)
	defer bus.Unsubscribe(sub)

	bus.Publish(events.ReadingEvent{Reading: domain.TemperatureReading{
		Name:    "shed",
		Address: "28-0316a2795b1d",
		Time:    time.Now(),
		Celsius: 21.5,
	}})

	entries := logs.FilterMessage("reading").All()
	if !assert.Len(entries, 1) {
		return
	}
	fields := entries[0].ContextMap()
	assert.Equal("temperature", fields["source"])
	_, hasStatus := fields["charging_status"]
	assert.False(hasStatus)
}
