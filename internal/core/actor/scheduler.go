package actor

import (
	"fmt"

	"github.com/tim-oe/piSolar/internal/config"
	"github.com/tim-oe/piSolar/internal/core/domain"
	"github.com/tim-oe/piSolar/internal/core/events"
	"github.com/tim-oe/piSolar/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// SchedulerActor owns the cron runner. Each enabled schedule binding fires
// a tick message back into the actor, which requests a poll from the bound
// sensor actor with itself as the reply target. Successful polls are
// published on the event bus; failures and skips are logged and the
// schedule keeps running. Expressions use the standard five-field cron
// form, where day-of-month and day-of-week combine as a union when both
// are restricted.
type SchedulerActor struct {
	config  *config.Config
	bus     *events.Bus
	sensors map[string]*actor.PID
	cron    *cron.Cron
	entries map[string]cron.EntryID
	logger  *zap.Logger
}

type scheduleTick struct {
	Schedule string
	Sensor   string
}

func NewSchedulerActor(cfg *config.Config, bus *events.Bus, sensors map[string]*actor.PID, logger *zap.Logger) *SchedulerActor {
	return &SchedulerActor{
		config:  cfg,
		bus:     bus,
		sensors: sensors,
		entries: map[string]cron.EntryID{},
		logger:  actorutil.ActorLogger(domain.ACTOR_ID_SCHEDULER, logger),
	}
}

func (state *SchedulerActor) Receive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.start(ctx)
	case *actor.Restarting, *actor.Stopping:
		if state.cron != nil {
			state.cron.Stop()
			state.cron = nil
		}
	case scheduleTick:
		state.onTick(ctx, msg)
	case domain.PollSensorResponse:
		state.onPollResult(msg)
	case domain.ActorHealthRequest:
		ctx.Respond(domain.ActorHealthResponse{
			Id:      domain.ACTOR_ID_SCHEDULER,
			Healthy: state.cron != nil,
			State:   fmt.Sprintf("%d schedules", len(state.entries)),
		})
	default:
		state.logger.Debug("scheduler default recv", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

func (state *SchedulerActor) start(ctx actor.Context) {
	state.cron = cron.New()
	self := ctx.Self()

	for _, schedule := range state.config.Schedules {
		if !schedule.IsEnabled() {
			state.logger.Info("schedule disabled, not registered",
				zap.String("schedule", schedule.Name),
				zap.String("sensor", schedule.Sensor))
			continue
		}

		tick := scheduleTick{Schedule: schedule.Name, Sensor: schedule.Sensor}
		entryID, err := state.cron.AddFunc(schedule.Cron, func() {
			ctx.Send(self, tick)
		})
		if err != nil {
			// config validation parses every expression before boot
			state.logger.Error("schedule registration failed",
				zap.String("schedule", schedule.Name),
				zap.Error(err))
			panic(err)
		}
		state.entries[schedule.Name] = entryID
		state.logger.Info("schedule registered",
			zap.String("schedule", schedule.Name),
			zap.String("cron", schedule.Cron),
			zap.String("sensor", schedule.Sensor))
	}

	state.cron.Start()
}

func (state *SchedulerActor) onTick(ctx actor.Context, tick scheduleTick) {
	pid, ok := state.sensors[tick.Sensor]
	if !ok {
		state.logger.Error("tick for unknown sensor",
			zap.String("schedule", tick.Schedule),
			zap.String("sensor", tick.Sensor))
		return
	}
	state.logger.Debug("schedule tick",
		zap.String("schedule", tick.Schedule),
		zap.String("sensor", tick.Sensor))

	ctx.Send(pid, domain.PollSensorRequest{
		ActorRequestMixIn: domain.ActorRequestMixIn{
			ReplyToRef: (*domain.ActorRef)(ctx.Self()),
		},
	})
}

func (state *SchedulerActor) onPollResult(resp domain.PollSensorResponse) {
	switch {
	case resp.Skipped:
		state.logger.Warn("poll skipped, previous read still running",
			zap.String("sensor", resp.Sensor))
	case resp.HasResponseError():
		state.logger.Error("scheduled poll failed",
			zap.String("sensor", resp.Sensor),
			zap.Error(resp.GetResponseError()))
	default:
		for _, event := range events.ReadingEvents(resp.Readings) {
			state.bus.Publish(event)
		}
		state.logger.Info("scheduled poll published",
			zap.String("sensor", resp.Sensor),
			zap.Int("readings", len(resp.Readings)))
	}
}
