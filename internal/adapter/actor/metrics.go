package actor

import (
	"fmt"

	"github.com/tim-oe/piSolar/internal/core/domain"
	"github.com/tim-oe/piSolar/internal/core/events"
	"github.com/tim-oe/piSolar/internal/core/service"
	"github.com/tim-oe/piSolar/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	"go.uber.org/zap"
)

// MetricsActor persists every reading on the event bus to the local
// JSON-lines store. Writes happen on the actor goroutine so the day files
// are never written concurrently.
type MetricsActor struct {
	recorder *service.MetricsRecorder
	bus      *events.Bus
	busSub   *events.Subscription
	logger   *zap.Logger
}

func NewMetricsActor(recorder *service.MetricsRecorder, bus *events.Bus, logger *zap.Logger) *MetricsActor {
	return &MetricsActor{
		recorder: recorder,
		bus:      bus,
		logger:   actorutil.ActorLogger(domain.ACTOR_ID_METRICS, logger),
	}
}

func (state *MetricsActor) Receive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.logger.Debug("metrics started")
		state.busSub = state.bus.SubscribeAll(func(event events.Event) {
			ctx.Send(ctx.Self(), busReading{event: event})
		})
	case *actor.Restarting, *actor.Stopping:
		if state.busSub != nil {
			state.bus.Unsubscribe(state.busSub)
			state.busSub = nil
		}
	case domain.ActorHealthRequest:
		ctx.Respond(domain.ActorHealthResponse{
			Id:      domain.ACTOR_ID_METRICS,
			Healthy: true,
			State:   "idle",
		})
	case busReading:
		readingEvent, ok := msg.event.(events.ReadingEvent)
		if !ok {
			return
		}
		if err := state.recorder.Record(readingEvent.Reading); err != nil {
			state.logger.Error("metrics record failed",
				zap.String("sensor", readingEvent.Reading.SensorName()),
				zap.Error(err))
		}
	default:
		state.logger.Debug("metrics default recv", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}
