package actorutil

import (
	"github.com/asynkron/protoactor-go/actor"
)

// ActorWithStates is a thin layer over actor.Behavior that keeps the name
// of the current state, so actors can report it in health responses.
type ActorWithStates struct {
	Behavior actor.Behavior

	stack []string
}

type ActorState interface {
	Name() string
	Receive(actor.Context)
}

type funcState struct {
	name    string
	receive actor.ReceiveFunc
}

func (s funcState) Name() string              { return s.name }
func (s funcState) Receive(ctx actor.Context) { s.receive(ctx) }

// State wraps a receive method as a named state.
func State(name string, receive actor.ReceiveFunc) ActorState {
	return funcState{name: name, receive: receive}
}

func (s *ActorWithStates) Receive(ctx actor.Context) {
	s.Behavior.Receive(ctx)
}

func (s *ActorWithStates) Become(state ActorState) {
	if len(s.stack) == 0 {
		s.stack = []string{state.Name()}
	} else {
		s.stack[len(s.stack)-1] = state.Name()
	}
	s.Behavior.Become(state.Receive)
}

func (s *ActorWithStates) BecomeStacked(state ActorState) {
	s.stack = append(s.stack, state.Name())
	s.Behavior.BecomeStacked(state.Receive)
}

func (s *ActorWithStates) UnbecomeStacked() {
	if len(s.stack) > 1 {
		s.stack = s.stack[:len(s.stack)-1]
	}
	s.Behavior.UnbecomeStacked()
}

// StateName returns the name of the state currently receiving messages.
func (s *ActorWithStates) StateName() string {
	if len(s.stack) == 0 {
		return ""
	}
	return s.stack[len(s.stack)-1]
}
