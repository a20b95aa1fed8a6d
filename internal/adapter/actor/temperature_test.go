package actor

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/tim-oe/piSolar/internal/adapter/onewire"
	"github.com/tim-oe/piSolar/internal/core/domain"
	"github.com/tim-oe/piSolar/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func writeSlaveFile(t *testing.T, base, address, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Join(base, address), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(base, address, "w1_slave"), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestPollTemperatureActor(t *testing.T) {

	assert := assert.New(t)

	base := t.TempDir()
	address := "28-0316a2790d42"
	writeSlaveFile(t, base, address, "4b 46 7f ff 0c 10 55 : crc=55 YES\n4b 46 7f ff 0c 10 55 t=21500\n")

	target := domain.DeviceTarget{
		Name:    "battery-box",
		Kind:    domain.TransportOneWire,
		Address: address,
	}

	logger := zap.Must(zap.NewDevelopment())
	as := actorutil.NewActorSystemWithZapLogger(logger)
	context := as.Root

	probe := &onewire.Probe{BasePath: base}
	props := actor.PropsFromProducer(func() actor.Actor { return NewTemperatureActor(probe, target, logger) })
	pid := context.Spawn(props)

	result, err := context.RequestFuture(pid, domain.PollSensorRequest{}, 10*time.Second).Result()
	if err != nil {
		t.Error(err)
		return
	}
	resp := result.(domain.PollSensorResponse)

	assert.False(resp.HasResponseError())
	assert.Len(resp.Readings, 1)
	reading := resp.Readings[0].(domain.TemperatureReading)
	assert.Equal(21.5, reading.Celsius)
	assert.Equal("battery-box", reading.SensorName())

	context.Stop(pid)

	as.Shutdown()
}

func TestCheckTemperatureActorMissingDevice(t *testing.T) {

	assert := assert.New(t)

	target := domain.DeviceTarget{
		Name:    "battery-box",
		Kind:    domain.TransportOneWire,
		Address: "28-dead",
	}

	logger := zap.Must(zap.NewDevelopment())
	as := actorutil.NewActorSystemWithZapLogger(logger)
	context := as.Root

	probe := &onewire.Probe{BasePath: t.TempDir()}
	props := actor.PropsFromProducer(func() actor.Actor { return NewTemperatureActor(probe, target, logger) })
	pid := context.Spawn(props)

	result, err := context.RequestFuture(pid, domain.CheckSensorRequest{}, 10*time.Second).Result()
	if err != nil {
		t.Error(err)
		return
	}
	resp := result.(domain.CheckSensorResponse)

	assert.True(resp.HasResponseError())
	assert.Equal("battery-box", resp.Sensor)
	assert.Equal("w1", resp.Transport)

	context.Stop(pid)

	as.Shutdown()
}
