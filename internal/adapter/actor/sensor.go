package actor

import (
	"context"
	"fmt"
	"time"

	"github.com/tim-oe/piSolar/internal/core/domain"
	"github.com/tim-oe/piSolar/internal/core/service"
	"github.com/tim-oe/piSolar/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/reugn/go-quartz/logger"
	"go.uber.org/zap"
)

// SensorActor owns one charge controller. Every read of the device goes
// through this actor, so the transport never sees concurrent access.
// A poll that arrives while another is running is answered with Skipped
// rather than queued; by the time the running poll finished the skipped
// tick's data point would be stale anyway.
type SensorActor struct {
	states actorutil.ActorWithStates
	stash  *actorutil.Stash
	poller *service.SensorPoller
	logger *zap.Logger
	id     string
}

type backgroundTaskResult struct {
	message any
	replyTo *actor.PID
}

func SensorActorID(sensorName string) string {
	return domain.ACTOR_ID_SENSOR_PREFIX + sensorName
}

func NewSensorActor(poller *service.SensorPoller, zlogger *zap.Logger) *SensorActor {
	id := SensorActorID(poller.Target().Name)
	act := &SensorActor{
		poller: poller,
		stash:  &actorutil.Stash{},
		logger: actorutil.ActorLogger(id, zlogger),
		id:     id,
	}
	act.states.Become(actorutil.State("idle", act.DefaultReceive))
	return act
}

func (state *SensorActor) Receive(context actor.Context) {
	state.states.Receive(context)
}

func (state *SensorActor) DefaultReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.logger.Debug("sensor@default started",
			zap.String("transport", string(state.poller.Target().Kind)))
	case domain.ActorHealthRequest:
		state.logger.Debug("sensor@default: ActorHealthRequest")
		ctx.Respond(domain.ActorHealthResponse{
			Id:      state.id,
			Healthy: true,
			State:   state.states.StateName(),
		})
	case domain.PollSensorRequest:
		state.logger.Debug("sensor@default: PollSensorRequest")
		sender := actorutil.ForRequest(msg).ReplyTo(ctx)

		actorutil.MapBackgroundTask(actorutil.NewBackgroundTask(ctx, state.poll),
			mapTaskResult[domain.PollSensorResponse](sender)).Recover(func(err error) backgroundTaskResult {
			return backgroundTaskResult{
				message: domain.PollSensorResponse{
					ActorResponseMixIn: domain.ActorResponseMixIn{
						ResponseError: err,
					},
					Sensor: state.poller.Target().Name,
				},
				replyTo: sender,
			}
		}).WithTimeout(state.poller.PollDeadline() + 2*time.Second).PipeTo(ctx.Self())
		state.states.BecomeStacked(actorutil.State("reading", state.WaitingRead))
	case domain.CheckSensorRequest:
		state.logger.Debug("sensor@default: CheckSensorRequest")
		sender := actorutil.ForRequest(msg).ReplyTo(ctx)

		actorutil.MapBackgroundTask(actorutil.NewBackgroundTask(ctx, state.probe),
			mapTaskResult[domain.CheckSensorResponse](sender)).Recover(func(err error) backgroundTaskResult {
			return backgroundTaskResult{
				message: domain.CheckSensorResponse{
					ActorResponseMixIn: domain.ActorResponseMixIn{
						ResponseError: err,
					},
					Sensor:    state.poller.Target().Name,
					Transport: string(state.poller.Target().Kind),
				},
				replyTo: sender,
			}
		}).WithTimeout(state.poller.PollDeadline() + 2*time.Second).PipeTo(ctx.Self())
		state.states.BecomeStacked(actorutil.State("reading", state.WaitingRead))
	default:
		state.logger.Debug("sensor@default default recv", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

func (state *SensorActor) WaitingRead(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case backgroundTaskResult:
		state.logger.Debug("sensor@waitingRead backgroundTaskResult",
			zap.String("type", fmt.Sprintf("%T", msg.message)))
		ctx.Send(msg.replyTo, msg.message)
		state.states.UnbecomeStacked()
		state.stash.UnstashAll(ctx)
	case domain.PollSensorRequest:
		// overlapping tick: drop it, never queue behind the running read
		state.logger.Info("sensor@waitingRead: poll overlaps running read, skipping",
			zap.String("sensor", state.poller.Target().Name))
		actorutil.ForRequest(msg).Respond(ctx, domain.PollSensorResponse{
			Sensor:  state.poller.Target().Name,
			Skipped: true,
		})
	case domain.ActorHealthRequest:
		ctx.Respond(domain.ActorHealthResponse{
			Id:      state.id,
			Healthy: true,
			State:   state.states.StateName(),
		})
	default:
		state.logger.Debug("sensor@waitingRead stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (a *SensorActor) poll() (*domain.PollSensorResponse, error) {
	ctx, cancel := context.WithTimeout(context.Background(), a.poller.PollDeadline())
	defer cancel()

	readings, err := a.poller.Poll(ctx)
	if err != nil {
		logger.Error(err)
		return &domain.PollSensorResponse{
			ActorResponseMixIn: domain.ActorResponseMixIn{
				ResponseError: err,
			},
			Sensor: a.poller.Target().Name,
		}, nil
	}
	return &domain.PollSensorResponse{
		Sensor:   a.poller.Target().Name,
		Readings: readings,
	}, nil
}

func (a *SensorActor) probe() (*domain.CheckSensorResponse, error) {
	ctx, cancel := context.WithTimeout(context.Background(), a.poller.PollDeadline())
	defer cancel()

	err := a.poller.Probe(ctx)
	if err != nil {
		logger.Error(err)
	}
	return &domain.CheckSensorResponse{
		ActorResponseMixIn: domain.ActorResponseMixIn{
			ResponseError: err,
		},
		Sensor:    a.poller.Target().Name,
		Transport: string(a.poller.Target().Kind),
	}, nil
}

func mapTaskResult[T any](sender *actor.PID) func(t *T) *backgroundTaskResult {
	return func(t *T) *backgroundTaskResult {
		return &backgroundTaskResult{
			message: *t,
			replyTo: sender,
		}
	}
}
