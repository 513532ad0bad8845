package model

import "context"

// ConditionParser translates a UI-level boolean expression into the
// conditional-expression syntax the instrument service expects.
type ConditionParser interface {
	ParseCondition(raw string, src SourceContext) (string, error)
}

// InstrumentService is the remote system of record for live instruments.
type InstrumentService interface {
	AddLiveInstrument(ctx context.Context, inst LiveInstrument) (LiveInstrument, error)
	RemoveLiveInstrument(ctx context.Context, id string) error
}

// ScopeProvider supplies the in-scope variable names at a source location,
// in declaration order.
type ScopeProvider interface {
	Variables(loc Location) []string
}

// EventListener receives instrument events from the router.
// OnEvent must not block on I/O.
type EventListener interface {
	OnEvent(Event)
}

// EventListenerFunc adapts a plain function to EventListener.
type EventListenerFunc func(Event)

func (f EventListenerFunc) OnEvent(e Event) { f(e) }
