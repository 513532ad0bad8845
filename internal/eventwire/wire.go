// Package eventwire is the line format for remote instrument events: one
// JSON object per line, tagged by "type".
package eventwire

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/xeipuuv/gojsonschema"

	"github.com/tinytelemetry/lotus-live/internal/loglevel"
	"github.com/tinytelemetry/lotus-live/internal/model"
)

// ErrInvalid is wrapped by every decode failure caused by the input.
var ErrInvalid = errors.New("eventwire: invalid event")

type envelope struct {
	Type         model.EventType  `json:"type"`
	InstrumentID string           `json:"instrumentId"`
	EventID      string           `json:"eventId,omitempty"`
	Timestamp    json.RawMessage  `json:"timestamp,omitempty"`
	Throttled    bool             `json:"throttled,omitempty"`
	Cause        *string          `json:"cause,omitempty"`
	Payload      map[string]any   `json:"payload,omitempty"`
	Metric       map[string]any   `json:"metric,omitempty"`
	Record       *model.LogRecord `json:"record,omitempty"`
}

var (
	schemaOnce sync.Once
	schema     *gojsonschema.Schema
	schemaErr  error
)

func compiledSchema() (*gojsonschema.Schema, error) {
	schemaOnce.Do(func() {
		schema, schemaErr = gojsonschema.NewSchema(gojsonschema.NewStringLoader(envelopeSchema))
	})
	return schema, schemaErr
}

// Decode parses one event line. The line is checked against the envelope
// schema before it is mapped onto the event types. now fills in a missing
// timestamp.
func Decode(line []byte, now time.Time) (model.Event, error) {
	s, err := compiledSchema()
	if err != nil {
		return nil, fmt.Errorf("eventwire: compile schema: %w", err)
	}
	result, err := s.Validate(gojsonschema.NewBytesLoader(line))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return nil, fmt.Errorf("%w: %s", ErrInvalid, strings.Join(msgs, "; "))
	}

	var env envelope
	if err := json.Unmarshal(line, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	ts, err := parseTimestamp(env.Timestamp, now)
	if err != nil {
		return nil, err
	}

	switch env.Type {
	case model.EventHit:
		return model.Hit{ID: env.InstrumentID, EventID: env.EventID, Timestamp: ts, Payload: env.Payload, Throttled: env.Throttled}, nil
	case model.EventLogHit:
		rec := *env.Record
		if rec.Timestamp.IsZero() {
			rec.Timestamp = ts
		}
		rec.Level = loglevel.Resolve(rec.Level, rec.Content)
		return model.LogHit{ID: env.InstrumentID, EventID: env.EventID, Timestamp: ts, Record: rec, Throttled: env.Throttled}, nil
	case model.EventViewMetric:
		return model.ViewMetric{ID: env.InstrumentID, EventID: env.EventID, Timestamp: ts, Metric: env.Metric}, nil
	case model.EventRemoved:
		var cause string
		if env.Cause != nil {
			cause = *env.Cause
		}
		return model.Removed{ID: env.InstrumentID, EventID: env.EventID, Timestamp: ts, Cause: cause}, nil
	}
	return nil, fmt.Errorf("%w: unknown type %q", ErrInvalid, env.Type)
}

// Encode renders e as one line, without the trailing newline.
func Encode(e model.Event) ([]byte, error) {
	env := envelope{Type: e.Type(), InstrumentID: e.InstrumentID()}
	var ts time.Time
	switch ev := e.(type) {
	case model.Hit:
		env.EventID, ts, env.Payload, env.Throttled = ev.EventID, ev.Timestamp, ev.Payload, ev.Throttled
	case model.LogHit:
		rec := ev.Record
		env.EventID, ts, env.Record, env.Throttled = ev.EventID, ev.Timestamp, &rec, ev.Throttled
	case model.ViewMetric:
		env.EventID, ts, env.Metric = ev.EventID, ev.Timestamp, ev.Metric
	case model.Removed:
		env.EventID, ts = ev.EventID, ev.Timestamp
		if ev.Cause != "" {
			cause := ev.Cause
			env.Cause = &cause
		}
	default:
		return nil, fmt.Errorf("eventwire: unsupported event %T", e)
	}
	if !ts.IsZero() {
		raw, err := json.Marshal(ts.UTC().Format(time.RFC3339Nano))
		if err != nil {
			return nil, err
		}
		env.Timestamp = raw
	}
	return json.Marshal(env)
}

// parseTimestamp accepts RFC 3339 strings and Unix epoch numbers. Epoch
// precision is inferred from magnitude: seconds, millis, micros or nanos.
func parseTimestamp(raw json.RawMessage, now time.Time) (time.Time, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return now, nil
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		ts, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return time.Time{}, fmt.Errorf("%w: timestamp %q: %v", ErrInvalid, s, err)
		}
		return ts, nil
	}

	var f float64
	if err := json.Unmarshal(raw, &f); err != nil {
		return time.Time{}, fmt.Errorf("%w: timestamp %s", ErrInvalid, raw)
	}
	return fromEpoch(f), nil
}

func fromEpoch(v float64) time.Time {
	abs := math.Abs(v)
	switch {
	case abs >= 1e17:
		return time.Unix(0, int64(v))
	case abs >= 1e14:
		return time.UnixMicro(int64(v))
	case abs >= 1e11:
		return time.UnixMilli(int64(v))
	}
	sec, frac := math.Modf(v)
	return time.Unix(int64(sec), int64(frac*1e9))
}
