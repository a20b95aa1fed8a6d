package domain

import (
	"github.com/asynkron/protoactor-go/actor"
)

// ActorRef aliases a PID so message types don't leak the actor runtime
// into every consumer.
type ActorRef actor.PID

// ActorRequest is a message that may carry an explicit reply target,
// letting the scheduler fire requests whose responses come back to itself.
type ActorRequest interface {
	ReplyTo() *ActorRef
}

type ActorRequestMixIn struct {
	ReplyToRef *ActorRef
}

func (r ActorRequestMixIn) ReplyTo() *ActorRef {
	return r.ReplyToRef
}

// ActorResponse exposes the error channel shared by all responses.
type ActorResponse interface {
	GetResponseError() error
	HasResponseError() bool
}

type ActorResponseMixIn struct {
	ResponseError error
}

func (r ActorResponseMixIn) GetResponseError() error {
	return r.ResponseError
}

func (r ActorResponseMixIn) HasResponseError() bool {
	return r.ResponseError != nil
}
