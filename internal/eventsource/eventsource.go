// Package eventsource abstracts the transports instrument events arrive on.
package eventsource

import "github.com/tinytelemetry/lotus-live/internal/model"

// EventSource is a unified interface for all event inputs (TCP, stdin, file).
type EventSource interface {
	Lines() <-chan model.EventLine // read-only channel of raw event lines
	Stop()                         // graceful shutdown
	Name() string                  // "tcp", "stdin", "file"
}
