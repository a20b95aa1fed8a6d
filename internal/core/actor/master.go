package actor

import (
	"fmt"
	"log"
	"time"

	adactor "github.com/tim-oe/piSolar/internal/adapter/actor"
	"github.com/tim-oe/piSolar/internal/config"
	"github.com/tim-oe/piSolar/internal/core/domain"
	"github.com/tim-oe/piSolar/internal/core/events"
	"github.com/tim-oe/piSolar/internal/core/service"
	. "github.com/tim-oe/piSolar/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	"go.uber.org/zap"
)

// SensorActorProvider builds the actor serving one device target. The
// master does not care which transport is behind it.
type SensorActorProvider func(target domain.DeviceTarget) actor.Actor

type MQTTActorProvider func(bus *events.Bus) actor.Actor

// RunMode selects which children the master spawns. ModeService runs the
// full tree. ModeReadOnce leaves the scheduler out so no cron binding can
// fire during a one-shot poll. ModeCheck additionally leaves the
// publishing consumers out: a reachability probe must never emit readings.
type RunMode int

const (
	ModeService RunMode = iota
	ModeReadOnce
	ModeCheck
)

// MasterActor is the root of the supervision tree: one child per
// configured sensor, the scheduler, and the enabled consumers. It owns
// the event bus for the whole process and aggregates health checks and
// fan-out requests (check all, read all) over its children.
type MasterActor struct {
	config   config.Config
	mode     RunMode
	behavior actor.Behavior
	stash    *Stash

	bus            *events.Bus
	sensorActors   map[string]*actor.PID
	schedulerActor *actor.PID
	metricsActor   *actor.PID
	mqttActor      *actor.PID

	sensorProvider SensorActorProvider
	mqttProvider   MQTTActorProvider

	currentHealthCheck healthCheckResult
	currentFanOut      fanOutResult

	logger *zap.Logger
}

type healthCheckResult struct {
	expected  int
	received  int
	unhealthy int
	respondTo *actor.PID
}

// fanOutResult accumulates per-sensor responses for CheckAll/ReadAll.
type fanOutResult struct {
	check     bool
	expected  int
	probes    []domain.SensorProbe
	results   []domain.PollSensorResponse
	respondTo *actor.PID
}

func NewMasterActor(cfg config.Config, mode RunMode, bus *events.Bus, sensorProvider SensorActorProvider, mqttProvider MQTTActorProvider, logger *zap.Logger) *MasterActor {
	act := &MasterActor{
		config:         cfg,
		mode:           mode,
		behavior:       actor.NewBehavior(),
		stash:          &Stash{},
		bus:            bus,
		sensorActors:   map[string]*actor.PID{},
		sensorProvider: sensorProvider,
		mqttProvider:   mqttProvider,
		logger:         ActorLogger(domain.ACTOR_ID_MASTER, logger),
	}
	act.behavior.Become(act.StartingReceive)
	return act
}

func (state *MasterActor) Receive(context actor.Context) {
	state.behavior.Receive(context)
}

func (state *MasterActor) StartingReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.logger.Debug("master@starting started")

		for _, target := range state.config.Targets() {
			pid, err := state.startSensorActor(ctx, target)
			if err != nil {
				panic(err)
			}
			state.sensorActors[target.Name] = pid
		}

		if state.mode != ModeCheck && state.config.Metrics.Enable {
			pid, err := state.startMetricsActor(ctx)
			if err != nil {
				panic(err)
			}
			state.metricsActor = pid
		}

		if state.mode != ModeCheck && state.config.MQTT.Enable {
			pid, err := state.startMQTTActor(ctx)
			if err != nil {
				panic(err)
			}
			state.mqttActor = pid
		}

		if state.mode == ModeService {
			schedulerPID, err := state.startSchedulerActor(ctx)
			if err != nil {
				panic(err)
			}
			state.schedulerActor = schedulerPID
		}

		state.behavior.Become(state.DefaultReceive)
		state.stash.UnstashAll(ctx)
	default:
		state.logger.Debug("master@starting stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *MasterActor) DefaultReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.ActorHealthRequest:
		state.logger.Debug("master@default ActorHealthRequest")
		state.startHealthCheck(ctx)
	case domain.CheckAllRequest:
		state.logger.Debug("master@default CheckAllRequest")
		state.startFanOut(ctx, true, ForRequest(msg).ReplyTo(ctx), func(pid *actor.PID, timeout time.Duration) *actor.Future {
			return ctx.RequestFuture(pid, domain.CheckSensorRequest{}, timeout)
		}, func(name string, kind string, err error) any {
			return domain.CheckSensorResponse{
				ActorResponseMixIn: domain.ActorResponseMixIn{ResponseError: err},
				Sensor:             name,
				Transport:          kind,
			}
		})
	case domain.ReadAllRequest:
		state.logger.Debug("master@default ReadAllRequest")
		state.startFanOut(ctx, false, ForRequest(msg).ReplyTo(ctx), func(pid *actor.PID, timeout time.Duration) *actor.Future {
			return ctx.RequestFuture(pid, domain.PollSensorRequest{}, timeout)
		}, func(name string, kind string, err error) any {
			return domain.PollSensorResponse{
				ActorResponseMixIn: domain.ActorResponseMixIn{ResponseError: err},
				Sensor:             name,
			}
		})
	default:
		state.logger.Debug("master@default stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *MasterActor) children() map[string]*actor.PID {
	children := map[string]*actor.PID{}
	for name, pid := range state.sensorActors {
		children[adactor.SensorActorID(name)] = pid
	}
	if state.schedulerActor != nil {
		children[domain.ACTOR_ID_SCHEDULER] = state.schedulerActor
	}
	if state.metricsActor != nil {
		children[domain.ACTOR_ID_METRICS] = state.metricsActor
	}
	if state.mqttActor != nil {
		children[domain.ACTOR_ID_MQTT] = state.mqttActor
	}
	return children
}

func (state *MasterActor) startHealthCheck(ctx actor.Context) {
	children := state.children()
	state.currentHealthCheck = healthCheckResult{
		expected:  len(children),
		respondTo: ctx.Sender(),
	}

	for id, pid := range children {
		childID := id
		PipeToSelfWithRecover(ctx, ctx.RequestFuture(pid, domain.ActorHealthRequest{}, 500*time.Millisecond), func(err error) any {
			return domain.ActorHealthResponse{
				Id:      childID,
				Healthy: false,
			}
		})
	}

	ctx.SetReceiveTimeout(1 * time.Second)
	state.behavior.BecomeStacked(state.HealthCheckReceive)
}

func (state *MasterActor) HealthCheckReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.ReceiveTimeout:
		// a silent child counts as unhealthy
		state.currentHealthCheck.unhealthy += state.currentHealthCheck.expected - state.currentHealthCheck.received
		state.currentHealthCheck.respond(ctx)
		ctx.CancelReceiveTimeout()
		state.behavior.UnbecomeStacked()
		state.stash.UnstashAll(ctx)
	case domain.ActorHealthResponse:
		state.logger.Debug("master@healthcheck ActorHealthResponse",
			zap.String("sender", msg.Id), zap.Bool("healthy", msg.Healthy))
		state.currentHealthCheck.received++
		if !msg.Healthy {
			state.currentHealthCheck.unhealthy++
		}
		if state.currentHealthCheck.received >= state.currentHealthCheck.expected {
			state.currentHealthCheck.respond(ctx)
			ctx.CancelReceiveTimeout()
			state.behavior.UnbecomeStacked()
			state.stash.UnstashAll(ctx)
		} else {
			ctx.SetReceiveTimeout(1 * time.Second)
		}
	default:
		state.logger.Debug("master@healthcheck stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *healthCheckResult) respond(ctx actor.Context) {
	resp := domain.ActorHealthResponse{
		Id:      domain.ACTOR_ID_MASTER,
		Healthy: state.unhealthy == 0,
	}
	if state.respondTo != nil {
		ctx.Send(state.respondTo, resp)
	}
}

// startFanOut sends one request per sensor child and stacks the collecting
// state. Future timeouts are mapped to error responses so the collection
// always completes.
func (state *MasterActor) startFanOut(ctx actor.Context, check bool, respondTo *actor.PID,
	request func(pid *actor.PID, timeout time.Duration) *actor.Future,
	onError func(name string, kind string, err error) any) {

	state.currentFanOut = fanOutResult{
		check:     check,
		expected:  len(state.sensorActors),
		respondTo: respondTo,
	}
	state.behavior.BecomeStacked(state.FanOutReceive)
	if state.currentFanOut.expected == 0 {
		state.respondFanOut(ctx)
		return
	}

	for _, sensor := range state.config.Sensors {
		pid, ok := state.sensorActors[sensor.Name]
		if !ok {
			continue
		}
		name := sensor.Name
		kind := sensor.ReadType
		timeout := state.fanOutTimeout(sensor)
		PipeToSelfWithRecover(ctx, request(pid, timeout), func(err error) any {
			return onError(name, kind, err)
		})
	}
}

// fanOutTimeout leaves room for a full retry cycle plus actor overhead.
func (state *MasterActor) fanOutTimeout(sensor config.SensorConfig) time.Duration {
	target := sensor.Target()
	perAttempt := 2*target.ScanTimeout + time.Second
	return time.Duration(target.MaxRetries)*perAttempt + time.Duration(target.MaxRetries)*10*time.Second + 5*time.Second
}

func (state *MasterActor) FanOutReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.CheckSensorResponse:
		state.currentFanOut.probes = append(state.currentFanOut.probes, domain.SensorProbe{
			Sensor:    msg.Sensor,
			Transport: msg.Transport,
			Err:       msg.GetResponseError(),
		})
		if state.fanOutDone() {
			state.respondFanOut(ctx)
		}
	case domain.PollSensorResponse:
		state.currentFanOut.results = append(state.currentFanOut.results, msg)
		if !msg.Skipped && !msg.HasResponseError() {
			for _, event := range events.ReadingEvents(msg.Readings) {
				state.bus.Publish(event)
			}
		}
		if state.fanOutDone() {
			state.respondFanOut(ctx)
		}
	default:
		state.logger.Debug("master@fanout stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *MasterActor) fanOutDone() bool {
	return len(state.currentFanOut.probes)+len(state.currentFanOut.results) >= state.currentFanOut.expected
}

func (state *MasterActor) respondFanOut(ctx actor.Context) {
	if state.currentFanOut.respondTo != nil {
		if state.currentFanOut.check {
			ctx.Send(state.currentFanOut.respondTo, domain.CheckAllResponse{Probes: state.currentFanOut.probes})
		} else {
			ctx.Send(state.currentFanOut.respondTo, domain.ReadAllResponse{Results: state.currentFanOut.results})
		}
	}
	state.behavior.UnbecomeStacked()
	state.stash.UnstashAll(ctx)
}

func (state *MasterActor) startSensorActor(ctx actor.Context, target domain.DeviceTarget) (*actor.PID, error) {
	supervisor := actor.NewExponentialBackoffStrategy(10*time.Second, 1*time.Second)

	props := actor.PropsFromProducer(func() actor.Actor {
		return state.sensorProvider(target)
	}, actor.WithSupervisor(supervisor))
	return ctx.SpawnNamed(props, adactor.SensorActorID(target.Name))
}

func (state *MasterActor) startSchedulerActor(ctx actor.Context) (*actor.PID, error) {
	decider := func(reason interface{}) actor.Directive {
		log.Printf("handling failure for child. reason: %v", reason)
		return actor.RestartDirective
	}
	supervisor := actor.NewOneForOneStrategy(1, 10*time.Second, decider)

	props := actor.PropsFromProducer(func() actor.Actor {
		return NewSchedulerActor(&state.config, state.bus, state.sensorActors, state.logger)
	}, actor.WithSupervisor(supervisor))
	return ctx.SpawnNamed(props, domain.ACTOR_ID_SCHEDULER)
}

func (state *MasterActor) startMetricsActor(ctx actor.Context) (*actor.PID, error) {
	decider := func(reason interface{}) actor.Directive {
		log.Printf("handling failure for child. reason: %v", reason)
		return actor.RestartDirective
	}
	supervisor := actor.NewOneForOneStrategy(1, 10*time.Second, decider)

	props := actor.PropsFromProducer(func() actor.Actor {
		recorder := service.NewMetricsRecorder(state.config.Metrics.OutputDir, state.logger)
		return adactor.NewMetricsActor(recorder, state.bus, state.logger)
	}, actor.WithSupervisor(supervisor))
	return ctx.SpawnNamed(props, domain.ACTOR_ID_METRICS)
}

func (state *MasterActor) startMQTTActor(ctx actor.Context) (*actor.PID, error) {
	supervisor := actor.NewExponentialBackoffStrategy(10*time.Second, 1*time.Second)

	props := actor.PropsFromProducer(func() actor.Actor {
		return state.mqttProvider(state.bus)
	}, actor.WithSupervisor(supervisor))
	return ctx.SpawnNamed(props, domain.ACTOR_ID_MQTT)
}
