package actor

import (
	"fmt"
	"time"

	"github.com/tim-oe/piSolar/internal/config"
	"github.com/tim-oe/piSolar/internal/core/domain"
	"github.com/tim-oe/piSolar/internal/core/events"
	"github.com/tim-oe/piSolar/internal/mqtt"
	"github.com/tim-oe/piSolar/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
)

// MQTTActor mirrors every reading published on the event bus to the MQTT
// broker as a JSON state topic. It is a sink: no command topics, no
// subscriptions on the broker side.
type MQTTActor struct {
	config   *config.Config
	bus      *events.Bus
	behavior actor.Behavior
	stash    *actorutil.Stash
	client   *mqtt.MQTTClient
	busSub   *events.Subscription
	logger   *zap.Logger
}

type MQTTConnected struct {
}

type MQTTConnectionLost struct {
	Error error
}

type busReading struct {
	event events.Event
}

type publishResult struct {
	Error error
}

func NewMQTTActor(config *config.Config, bus *events.Bus, logger *zap.Logger) *MQTTActor {
	act := &MQTTActor{
		config:   config,
		bus:      bus,
		behavior: actor.NewBehavior(),
		stash:    &actorutil.Stash{},
		logger:   actorutil.ActorLogger(domain.ACTOR_ID_MQTT, logger),
	}
	act.behavior.Become(act.StartingReceive)
	return act
}

func (state *MQTTActor) Receive(context actor.Context) {
	state.behavior.Receive(context)
}

func (state *MQTTActor) StartingReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.logger.Debug("mqtt@starting started")

		state.client = mqtt.CreateMQTTClient(state.config, mqtt.OptsFromConfig(state.config), func(_ pahomqtt.Client) {
		}, func(_ pahomqtt.Client, err error) {
			ctx.Send(ctx.Self(), MQTTConnectionLost{Error: err})
		})

		state.client.Connect(func(err error) {
			if err != nil {
				ctx.Send(ctx.Self(), MQTTConnectionLost{Error: err})
			} else {
				ctx.Send(ctx.Self(), MQTTConnected{})
			}
		}, 10*time.Second)

	case MQTTConnected:
		state.logger.Debug("mqtt@starting connected")

		state.client.Publish(state.client.BridgeStateTopic(), mqtt.MQTT_PAYLOAD_ONLINE, 0, true, func(error) {}, 500*time.Millisecond)

		// every reading event gets mirrored to the broker
		state.busSub = state.bus.SubscribeAll(func(event events.Event) {
			ctx.Send(ctx.Self(), busReading{event: event})
		})

		state.behavior.Become(state.DefaultReceive)
		state.stash.UnstashAll(ctx)
	case MQTTConnectionLost:
		// stop actor and let supervisor decide
		state.logger.Error("mqtt@starting connection lost", zap.Error(msg.Error))
		panic(msg.Error)
	case *actor.Restarting:
		state.stop()
	default:
		state.logger.Debug("mqtt@starting stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *MQTTActor) DefaultReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Restarting:
		state.stop()
	case *actor.Stopping:
		state.stop()
	case domain.ActorHealthRequest:
		state.logger.Debug("mqtt@default ActorHealthRequest")
		ctx.Respond(domain.ActorHealthResponse{
			Id:      domain.ACTOR_ID_MQTT,
			Healthy: true,
			State:   "idle",
		})
	case busReading:
		state.logger.Debug("mqtt@default busReading", zap.String("topic", msg.event.Topic()))
		state.publishReading(ctx, msg.event)
	case MQTTConnectionLost:
		state.logger.Error("mqtt@default connection lost", zap.Error(msg.Error))
		panic(msg.Error)
	default:
		state.logger.Debug("mqtt@default default recv", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

func (state *MQTTActor) publishReading(ctx actor.Context, event events.Event) {
	readingEvent, ok := event.(events.ReadingEvent)
	if !ok {
		return
	}
	reading := readingEvent.Reading

	payload, err := mqtt.PayloadForReading(reading)
	if err != nil {
		state.logger.Error("mqtt@publish could not encode reading", zap.Error(err))
		return
	}

	topic := state.client.ReadingStateTopic(reading.Source(), reading.SensorName())
	state.logger.Sugar().Debugf("mqtt@publish: %s => %s", topic, string(payload))
	state.client.Publish(topic, payload, 1, true, func(err error) {
		ctx.Send(ctx.Self(), publishResult{Error: err})
	}, 5*time.Second)
	state.behavior.BecomeStacked(state.PublishResultReceive)
}

func (state *MQTTActor) PublishResultReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case publishResult:
		if msg.Error != nil {
			state.logger.Error("mqtt@publishing could not publish a message", zap.Error(msg.Error))
		}
		state.behavior.UnbecomeStacked()
		state.stash.UnstashOldest(ctx)
	default:
		state.logger.Debug("mqtt@publishing stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *MQTTActor) stop() {
	state.logger.Debug("mqtt: disconnect")
	if state.busSub != nil {
		state.bus.Unsubscribe(state.busSub)
		state.busSub = nil
	}
	if state.client != nil {
		state.client.Publish(state.client.BridgeStateTopic(), mqtt.MQTT_PAYLOAD_OFFLINE, 0, true, func(error) {}, 500*time.Millisecond)
		state.client.Disconnect(500 * time.Millisecond)
	}
}

// NewTestMQTTActor skips the broker connection; used by tests that need a
// master tree without a live MQTT server.
func NewTestMQTTActor(config *config.Config, bus *events.Bus, logger *zap.Logger) *MQTTActor {
	act := &MQTTActor{
		config:   config,
		bus:      bus,
		behavior: actor.NewBehavior(),
		stash:    &actorutil.Stash{},
		logger:   actorutil.ActorLogger(domain.ACTOR_ID_MQTT, logger),
	}
	act.behavior.Become(act.DummyReceive)
	return act
}

func (state *MQTTActor) DummyReceive(ctx actor.Context) {
	switch ctx.Message().(type) {
	case domain.ActorHealthRequest:
		ctx.Respond(domain.ActorHealthResponse{
			Id:      domain.ACTOR_ID_MQTT,
			Healthy: true,
			State:   "idle",
		})
	}
}
