package actor

import (
	"testing"
	"time"

	adactor "github.com/tim-oe/piSolar/internal/adapter/actor"
	"github.com/tim-oe/piSolar/internal/config"
	"github.com/tim-oe/piSolar/internal/core/domain"
	"github.com/tim-oe/piSolar/internal/core/events"
	"github.com/tim-oe/piSolar/internal/core/service"
	"github.com/tim-oe/piSolar/internal/util/actorutil"
	"github.com/tim-oe/piSolar/pkg/renogy"

	pactor "github.com/asynkron/protoactor-go/actor"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func masterConfig(names ...string) config.Config {
	cfg := config.Config{Port: 8080}
	for _, name := range names {
		cfg.Sensors = append(cfg.Sensors, config.SensorConfig{
			Name:            name,
			ReadType:        "serial",
			DevicePath:      "/dev/ttyUSB0",
			ScanTimeoutSecs: 1,
			MaxRetries:      2,
		})
	}
	return cfg
}

// outcomes maps sensor name to its scripted transport behavior.
func spawnMaster(t *testing.T, cfg config.Config, mode RunMode, outcomes map[string][]renogy.Outcome) (*pactor.ActorSystem, *pactor.PID, *events.Bus) {
	t.Helper()

	logger := zap.Must(zap.NewDevelopment())
	bus := events.NewBus(logger)

	sensorProvider := func(target domain.DeviceTarget) pactor.Actor {
		transport := &renogy.TestTransport{
			TargetName: target.Name,
			Outcomes:   outcomes[target.Name],
		}
		poller := service.NewSensorPoller(target, transport, logger)
		poller.Backoff = time.Millisecond
		return adactor.NewSensorActor(poller, logger)
	}
	mqttProvider := func(bus *events.Bus) pactor.Actor {
		return adactor.NewTestMQTTActor(&cfg, bus, logger)
	}

	as := actorutil.NewActorSystemWithZapLogger(logger)
	props := pactor.PropsFromProducer(func() pactor.Actor {
		return NewMasterActor(cfg, mode, bus, sensorProvider, mqttProvider, logger)
	})
	pid, err := as.Root.SpawnNamed(props, domain.ACTOR_ID_MASTER)
	if err != nil {
		t.Fatal(err)
	}
	return as, pid, bus
}

func TestMasterHealthCheck(t *testing.T) {

	assert := assert.New(t)

	cfg := masterConfig("rover")
	outcomes := map[string][]renogy.Outcome{
		"rover": {renogy.FrameOutcome("rover", renogy.HealthyRegisters())},
	}
	as, pid, _ := spawnMaster(t, cfg, ModeService, outcomes)
	context := as.Root

	time.Sleep(500 * time.Millisecond)

	result, err := context.RequestFuture(pid, domain.ActorHealthRequest{}, 5*time.Second).Result()
	if err != nil {
		t.Error(err)
		return
	}
	resp := result.(domain.ActorHealthResponse)

	assert.Equal(domain.ACTOR_ID_MASTER, resp.Id)
	assert.True(resp.Healthy)

	context.Stop(pid)

	as.Shutdown()
}

func TestMasterCheckAll(t *testing.T) {

	assert := assert.New(t)

	cfg := masterConfig("rover", "shed")
	outcomes := map[string][]renogy.Outcome{
		"rover": {renogy.FrameOutcome("rover", renogy.HealthyRegisters())},
		"shed":  {renogy.FailOutcome(renogy.FailureDeviceNotFound, "shed")},
	}
	as, pid, _ := spawnMaster(t, cfg, ModeService, outcomes)
	context := as.Root

	time.Sleep(500 * time.Millisecond)

	result, err := context.RequestFuture(pid, domain.CheckAllRequest{}, 30*time.Second).Result()
	if err != nil {
		t.Error(err)
		return
	}
	resp := result.(domain.CheckAllResponse)

	assert.Len(resp.Probes, 2)
	byName := map[string]domain.SensorProbe{}
	for _, probe := range resp.Probes {
		byName[probe.Sensor] = probe
	}
	assert.True(byName["rover"].Reachable())
	assert.False(byName["shed"].Reachable())
	assert.Equal("serial", byName["rover"].Transport)

	context.Stop(pid)

	as.Shutdown()
}

func TestMasterReadAllPublishesReadings(t *testing.T) {

	assert := assert.New(t)

	cfg := masterConfig("rover")
	outcomes := map[string][]renogy.Outcome{
		"rover": {renogy.FrameOutcome("rover", renogy.HealthyRegisters())},
	}
	as, pid, bus := spawnMaster(t, cfg, ModeService, outcomes)
	context := as.Root

	published := make(chan events.Event, 8)
	bus.Subscribe(events.TopicSolarReading, func(event events.Event) {
		published <- event
	})

	time.Sleep(500 * time.Millisecond)

	result, err := context.RequestFuture(pid, domain.ReadAllRequest{}, 30*time.Second).Result()
	if err != nil {
		t.Error(err)
		return
	}
	resp := result.(domain.ReadAllResponse)

	assert.Len(resp.Results, 1)
	assert.False(resp.Results[0].HasResponseError())
	assert.Len(resp.Results[0].Readings, 1)

	select {
	case event := <-published:
		reading := event.(events.ReadingEvent).Reading
		assert.Equal("rover", reading.SensorName())
	case <-time.After(5 * time.Second):
		t.Error("no reading event published")
	}

	context.Stop(pid)

	as.Shutdown()
}

func TestMasterCheckModeSpawnsNoScheduler(t *testing.T) {

	assert := assert.New(t)

	cfg := masterConfig("rover")
	cfg.Schedules = []config.ScheduleConfig{{Name: "every-minute", Cron: "* * * * *", Sensor: "rover"}}
	outcomes := map[string][]renogy.Outcome{
		"rover": {renogy.FrameOutcome("rover", renogy.HealthyRegisters())},
	}

	as, pid, _ := spawnMaster(t, cfg, ModeCheck, outcomes)
	context := as.Root

	time.Sleep(500 * time.Millisecond)

	// the scheduler child must not exist, so a direct request dead-letters
	schedulerPID := pactor.NewPID(as.Address(), domain.ACTOR_ID_MASTER+"/"+domain.ACTOR_ID_SCHEDULER)
	_, err := context.RequestFuture(schedulerPID, domain.ActorHealthRequest{}, 500*time.Millisecond).Result()
	assert.Error(err)

	// health aggregation still covers the sensor children
	result, err := context.RequestFuture(pid, domain.ActorHealthRequest{}, 5*time.Second).Result()
	if err != nil {
		t.Error(err)
		return
	}
	assert.True(result.(domain.ActorHealthResponse).Healthy)

	context.Stop(pid)

	as.Shutdown()
}

func TestMasterServiceModeSpawnsScheduler(t *testing.T) {

	assert := assert.New(t)

	cfg := masterConfig("rover")
	outcomes := map[string][]renogy.Outcome{
		"rover": {renogy.FrameOutcome("rover", renogy.HealthyRegisters())},
	}

	as, _, _ := spawnMaster(t, cfg, ModeService, outcomes)
	context := as.Root

	time.Sleep(500 * time.Millisecond)

	schedulerPID := pactor.NewPID(as.Address(), domain.ACTOR_ID_MASTER+"/"+domain.ACTOR_ID_SCHEDULER)
	result, err := context.RequestFuture(schedulerPID, domain.ActorHealthRequest{}, 5*time.Second).Result()
	if err != nil {
		t.Error(err)
		return
	}
	assert.Equal(domain.ACTOR_ID_SCHEDULER, result.(domain.ActorHealthResponse).Id)

	as.Shutdown()
}

func TestMasterReadAllCollectsFailures(t *testing.T) {

	assert := assert.New(t)

	cfg := masterConfig("rover", "shed")
	outcomes := map[string][]renogy.Outcome{
		"rover": {renogy.FrameOutcome("rover", renogy.HealthyRegisters())},
		"shed":  {renogy.FailOutcome(renogy.FailureTransportUnavailable, "shed")},
	}
	as, pid, _ := spawnMaster(t, cfg, ModeService, outcomes)
	context := as.Root

	time.Sleep(500 * time.Millisecond)

	result, err := context.RequestFuture(pid, domain.ReadAllRequest{}, 30*time.Second).Result()
	if err != nil {
		t.Error(err)
		return
	}
	resp := result.(domain.ReadAllResponse)

	assert.Len(resp.Results, 2)
	byName := map[string]domain.PollSensorResponse{}
	for _, r := range resp.Results {
		byName[r.Sensor] = r
	}
	assert.False(byName["rover"].HasResponseError())
	assert.True(byName["shed"].HasResponseError())

	context.Stop(pid)

	as.Shutdown()
}
