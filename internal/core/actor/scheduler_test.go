package actor

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/tim-oe/piSolar/internal/config"
	"github.com/tim-oe/piSolar/internal/core/domain"
	"github.com/tim-oe/piSolar/internal/core/events"
	"github.com/tim-oe/piSolar/internal/util/actorutil"

	pactor "github.com/asynkron/protoactor-go/actor"
	"github.com/robfig/cron/v3"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

// fakeSensorActor answers polls with a scripted response, honoring the
// ReplyTo ref the way real sensor actors do.
type fakeSensorActor struct {
	response domain.PollSensorResponse
}

func (f *fakeSensorActor) Receive(ctx pactor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.PollSensorRequest:
		actorutil.ForRequest(msg).Respond(ctx, f.response)
	}
}

type collectedEvents struct {
	mu     sync.Mutex
	events []events.Event
}

func (c *collectedEvents) add(e events.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, e)
}

func (c *collectedEvents) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.events)
}

func schedulerFixture(t *testing.T, cfg *config.Config, response domain.PollSensorResponse) (*pactor.ActorSystem, *pactor.PID, *collectedEvents) {
	t.Helper()

	logger := zap.Must(zap.NewDevelopment())
	bus := events.NewBus(logger)

	collected := &collectedEvents{}
	bus.SubscribeAll(collected.add)

	as := actorutil.NewActorSystemWithZapLogger(logger)
	context := as.Root

	sensorProps := pactor.PropsFromProducer(func() pactor.Actor { return &fakeSensorActor{response: response} })
	sensorPID := context.Spawn(sensorProps)

	sensors := map[string]*pactor.PID{"rover": sensorPID}
	props := pactor.PropsFromProducer(func() pactor.Actor { return NewSchedulerActor(cfg, bus, sensors, logger) })
	pid := context.Spawn(props)

	return as, pid, collected
}

func tickConfig() *config.Config {
	return &config.Config{
		Sensors: []config.SensorConfig{
			{Name: "rover", ReadType: "serial", DevicePath: "/dev/ttyUSB0"},
		},
		Schedules: []config.ScheduleConfig{
			{Name: "rover-5m", Cron: "*/5 * * * *", Sensor: "rover"},
		},
	}
}

func TestSchedulerTickPublishesReadings(t *testing.T) {

	assert := assert.New(t)

	response := domain.PollSensorResponse{
		Sensor: "rover",
		Readings: []domain.Reading{domain.SolarReading{
			Name:    "rover",
			Time:    time.Now(),
			Metrics: map[string]float64{"battery_soc": 82},
		}},
	}
	as, pid, collected := schedulerFixture(t, tickConfig(), response)
	context := as.Root

	context.Send(pid, scheduleTick{Schedule: "rover-5m", Sensor: "rover"})

	deadline := time.Now().Add(5 * time.Second)
	for collected.len() == 0 && time.Now().Before(deadline) {
		time.Sleep(50 * time.Millisecond)
	}

	assert.Equal(1, collected.len(), "one reading event published")
	event := collected.events[0].(events.ReadingEvent)
	assert.Equal(events.TopicSolarReading, event.Topic())
	assert.Equal("rover", event.Reading.SensorName())

	context.Stop(pid)

	as.Shutdown()
}

func TestSchedulerSkippedPollPublishesNothing(t *testing.T) {

	assert := assert.New(t)

	response := domain.PollSensorResponse{Sensor: "rover", Skipped: true}
	as, pid, collected := schedulerFixture(t, tickConfig(), response)
	context := as.Root

	context.Send(pid, scheduleTick{Schedule: "rover-5m", Sensor: "rover"})
	time.Sleep(500 * time.Millisecond)

	assert.Equal(0, collected.len(), "skipped poll emits no events")

	context.Stop(pid)

	as.Shutdown()
}

func TestSchedulerFailedPollPublishesNothing(t *testing.T) {

	assert := assert.New(t)

	response := domain.PollSensorResponse{
		ActorResponseMixIn: domain.ActorResponseMixIn{
			ResponseError: errors.New("device not found"),
		},
		Sensor: "rover",
	}
	as, pid, collected := schedulerFixture(t, tickConfig(), response)
	context := as.Root

	context.Send(pid, scheduleTick{Schedule: "rover-5m", Sensor: "rover"})
	time.Sleep(500 * time.Millisecond)

	assert.Equal(0, collected.len(), "failed poll emits no events")

	context.Stop(pid)

	as.Shutdown()
}

func TestSchedulerSkipsDisabledBindings(t *testing.T) {

	assert := assert.New(t)

	off := false
	cfg := tickConfig()
	cfg.Schedules[0].Enabled = &off

	as, pid, _ := schedulerFixture(t, cfg, domain.PollSensorResponse{})
	context := as.Root

	result, err := context.RequestFuture(pid, domain.ActorHealthRequest{}, 5*time.Second).Result()
	if err != nil {
		t.Error(err)
		return
	}
	resp := result.(domain.ActorHealthResponse)
	assert.True(resp.Healthy)
	assert.Equal("0 schedules", resp.State)

	context.Stop(pid)

	as.Shutdown()
}

func TestCronNextFireTime(t *testing.T) {

	assert := assert.New(t)

	schedule, err := cron.ParseStandard("*/5 * * * *")
	if err != nil {
		t.Error(err)
		return
	}

	at := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	assert.Equal(time.Date(2025, 6, 1, 10, 5, 0, 0, time.UTC), schedule.Next(at))

	// day-of-month and day-of-week union when both fields are restricted
	union, err := cron.ParseStandard("0 0 13 * 5")
	if err != nil {
		t.Error(err)
		return
	}
	// 2025-06-06 is a Friday, before the 13th
	from := time.Date(2025, 6, 5, 12, 0, 0, 0, time.UTC)
	assert.Equal(time.Date(2025, 6, 6, 0, 0, 0, 0, time.UTC), union.Next(from))
}
