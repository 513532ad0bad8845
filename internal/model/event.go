package model

import (
	"encoding/json"
	"fmt"
	"hash/fnv"
	"time"
)

// EventType tags the four kinds of remote instrument events.
type EventType string

const (
	EventHit        EventType = "HIT"
	EventRemoved    EventType = "REMOVED"
	EventLogHit     EventType = "LOG_HIT"
	EventViewMetric EventType = "VIEW_METRIC"
)

// Event is the closed sum of remote instrument events. The concrete types
// are Hit, Removed, LogHit and ViewMetric; consumers switch on them
// exhaustively.
type Event interface {
	Type() EventType
	InstrumentID() string
	// Key identifies one event instance for de-duplication.
	Key() string
	isEvent()
}

// Hit reports a breakpoint, meter or span firing.
type Hit struct {
	ID        string         `json:"instrumentId"`
	EventID   string         `json:"eventId,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
	Payload   map[string]any `json:"payload,omitempty"`
	// Throttled is set by the server when the hit was suppressed by the
	// instrument's throttle policy.
	Throttled bool `json:"throttled,omitempty"`
}

// Removed reports that the server removed an instrument. An empty Cause
// means it completed naturally (hit limit or expiration).
type Removed struct {
	ID        string    `json:"instrumentId"`
	EventID   string    `json:"eventId,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Cause     string    `json:"cause,omitempty"`
}

// LogHit reports a log point firing with its captured record.
type LogHit struct {
	ID        string    `json:"instrumentId"`
	EventID   string    `json:"eventId,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Record    LogRecord `json:"record"`
	Throttled bool      `json:"throttled,omitempty"`
}

// ViewMetric carries a metric window update for a meter or span.
type ViewMetric struct {
	ID        string         `json:"instrumentId"`
	EventID   string         `json:"eventId,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
	Metric    map[string]any `json:"metric,omitempty"`
}

func (Hit) Type() EventType        { return EventHit }
func (Removed) Type() EventType    { return EventRemoved }
func (LogHit) Type() EventType     { return EventLogHit }
func (ViewMetric) Type() EventType { return EventViewMetric }

func (e Hit) InstrumentID() string        { return e.ID }
func (e Removed) InstrumentID() string    { return e.ID }
func (e LogHit) InstrumentID() string     { return e.ID }
func (e ViewMetric) InstrumentID() string { return e.ID }

func (e Hit) Key() string {
	return eventKey(e.EventID, EventHit, e.ID, e.Timestamp, e.Throttled, e.Payload)
}

func (e LogHit) Key() string {
	return eventKey(e.EventID, EventLogHit, e.ID, e.Timestamp, e.Throttled, e.Record)
}

func (e ViewMetric) Key() string {
	return eventKey(e.EventID, EventViewMetric, e.ID, e.Timestamp, false, e.Metric)
}

func (e Removed) Key() string {
	if e.EventID != "" {
		return e.EventID
	}
	// An instrument is removed at most once.
	return string(EventRemoved) + "|" + e.ID
}

func (Hit) isEvent()        {}
func (Removed) isEvent()    {}
func (LogHit) isEvent()     {}
func (ViewMetric) isEvent() {}

// eventKey falls back to type, instrument, timestamp and a hash of the body
// when the server sent no event id. Timestamps often carry only millisecond
// precision, so two hits in one millisecond differ only by their body.
func eventKey(eventID string, t EventType, instrumentID string, ts time.Time, throttled bool, body any) string {
	if eventID != "" {
		return eventID
	}
	h := fnv.New64a()
	// Maps marshal with sorted keys, so equal bodies hash equally.
	if raw, err := json.Marshal(body); err == nil {
		_, _ = h.Write(raw)
	}
	return fmt.Sprintf("%s|%s|%d|%t|%016x", t, instrumentID, ts.UnixNano(), throttled, h.Sum64())
}
