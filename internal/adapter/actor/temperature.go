package actor

import (
	"fmt"
	"time"

	"github.com/tim-oe/piSolar/internal/adapter/onewire"
	"github.com/tim-oe/piSolar/internal/core/domain"
	"github.com/tim-oe/piSolar/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	"go.uber.org/zap"
)

// TemperatureActor serves one 1-Wire probe with the same poll contract as
// the charge-controller actors, so schedules address both kinds of sensor
// the same way. A DS18B20 conversion takes up to a second, so reads run as
// background tasks and overlapping polls are skipped.
type TemperatureActor struct {
	states actorutil.ActorWithStates
	stash  *actorutil.Stash
	probe  *onewire.Probe
	target domain.DeviceTarget
	logger *zap.Logger
	id     string
}

func NewTemperatureActor(probe *onewire.Probe, target domain.DeviceTarget, zlogger *zap.Logger) *TemperatureActor {
	id := SensorActorID(target.Name)
	act := &TemperatureActor{
		probe:  probe,
		target: target,
		stash:  &actorutil.Stash{},
		logger: actorutil.ActorLogger(id, zlogger),
		id:     id,
	}
	act.states.Become(actorutil.State("idle", act.DefaultReceive))
	return act
}

func (state *TemperatureActor) Receive(context actor.Context) {
	state.states.Receive(context)
}

func (state *TemperatureActor) DefaultReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.ActorHealthRequest:
		ctx.Respond(domain.ActorHealthResponse{
			Id:      state.id,
			Healthy: true,
			State:   state.states.StateName(),
		})
	case domain.PollSensorRequest:
		state.logger.Debug("temperature@default: PollSensorRequest")
		sender := actorutil.ForRequest(msg).ReplyTo(ctx)

		actorutil.MapBackgroundTask(actorutil.NewBackgroundTask(ctx, state.read),
			mapTaskResult[domain.PollSensorResponse](sender)).Recover(func(err error) backgroundTaskResult {
			return backgroundTaskResult{
				message: domain.PollSensorResponse{
					ActorResponseMixIn: domain.ActorResponseMixIn{
						ResponseError: err,
					},
					Sensor: state.target.Name,
				},
				replyTo: sender,
			}
		}).WithTimeout(5 * time.Second).PipeTo(ctx.Self())
		state.states.BecomeStacked(actorutil.State("reading", state.WaitingRead))
	case domain.CheckSensorRequest:
		state.logger.Debug("temperature@default: CheckSensorRequest")
		sender := actorutil.ForRequest(msg).ReplyTo(ctx)

		actorutil.MapBackgroundTask(actorutil.NewBackgroundTask(ctx, state.check),
			mapTaskResult[domain.CheckSensorResponse](sender)).Recover(func(err error) backgroundTaskResult {
			return backgroundTaskResult{
				message: domain.CheckSensorResponse{
					ActorResponseMixIn: domain.ActorResponseMixIn{
						ResponseError: err,
					},
					Sensor:    state.target.Name,
					Transport: string(state.target.Kind),
				},
				replyTo: sender,
			}
		}).WithTimeout(5 * time.Second).PipeTo(ctx.Self())
		state.states.BecomeStacked(actorutil.State("reading", state.WaitingRead))
	default:
		state.logger.Debug("temperature@default default recv", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

func (state *TemperatureActor) WaitingRead(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case backgroundTaskResult:
		ctx.Send(msg.replyTo, msg.message)
		state.states.UnbecomeStacked()
		state.stash.UnstashAll(ctx)
	case domain.PollSensorRequest:
		state.logger.Info("temperature@waitingRead: poll overlaps running read, skipping",
			zap.String("sensor", state.target.Name))
		actorutil.ForRequest(msg).Respond(ctx, domain.PollSensorResponse{
			Sensor:  state.target.Name,
			Skipped: true,
		})
	case domain.ActorHealthRequest:
		ctx.Respond(domain.ActorHealthResponse{
			Id:      state.id,
			Healthy: true,
			State:   state.states.StateName(),
		})
	default:
		state.logger.Debug("temperature@waitingRead stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (a *TemperatureActor) read() (*domain.PollSensorResponse, error) {
	reading, err := a.probe.Read(a.target)
	if err != nil {
		return &domain.PollSensorResponse{
			ActorResponseMixIn: domain.ActorResponseMixIn{
				ResponseError: err,
			},
			Sensor: a.target.Name,
		}, nil
	}
	return &domain.PollSensorResponse{
		Sensor:   a.target.Name,
		Readings: []domain.Reading{reading},
	}, nil
}

func (a *TemperatureActor) check() (*domain.CheckSensorResponse, error) {
	_, err := a.probe.Read(a.target)
	return &domain.CheckSensorResponse{
		ActorResponseMixIn: domain.ActorResponseMixIn{
			ResponseError: err,
		},
		Sensor:    a.target.Name,
		Transport: string(a.target.Kind),
	}, nil
}
