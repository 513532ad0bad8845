package eventwire

import (
	"errors"
	"testing"
	"time"

	"github.com/tinytelemetry/lotus-live/internal/model"
)

var fixedNow = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

func TestDecode(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		line  string
		check func(t *testing.T, e model.Event)
	}{
		{
			name: "hit with rfc3339",
			line: `{"type":"HIT","instrumentId":"abc","eventId":"e1","timestamp":"2025-03-01T08:00:00Z","payload":{"x":1}}`,
			check: func(t *testing.T, e model.Event) {
				h, ok := e.(model.Hit)
				if !ok {
					t.Fatalf("type = %T, want Hit", e)
				}
				if h.ID != "abc" || h.EventID != "e1" || h.Timestamp.Hour() != 8 || h.Payload["x"] != 1.0 {
					t.Fatalf("hit = %+v", h)
				}
			},
		},
		{
			name: "throttled hit with epoch millis",
			line: `{"type":"HIT","instrumentId":"abc","timestamp":1740816000000,"throttled":true}`,
			check: func(t *testing.T, e model.Event) {
				h := e.(model.Hit)
				if !h.Throttled || h.Timestamp.UnixMilli() != 1740816000000 {
					t.Fatalf("hit = %+v", h)
				}
			},
		},
		{
			name: "log hit",
			line: `{"type":"LOG_HIT","instrumentId":"abc","record":{"content":"x = {}","arguments":["5"],"level":"INFO"}}`,
			check: func(t *testing.T, e model.Event) {
				l := e.(model.LogHit)
				if l.Record.Content != "x = {}" || len(l.Record.Arguments) != 1 || !l.Timestamp.Equal(fixedNow) {
					t.Fatalf("log hit = %+v", l)
				}
				if !l.Record.Timestamp.Equal(fixedNow) {
					t.Fatalf("record timestamp = %v", l.Record.Timestamp)
				}
			},
		},
		{
			name: "log hit level normalized",
			line: `{"type":"LOG_HIT","instrumentId":"abc","record":{"content":"retrying","level":"warning"}}`,
			check: func(t *testing.T, e model.Event) {
				if l := e.(model.LogHit); l.Record.Level != "WARN" {
					t.Fatalf("level = %q, want WARN", l.Record.Level)
				}
			},
		},
		{
			name: "log hit level from content",
			line: `{"type":"LOG_HIT","instrumentId":"abc","record":{"content":"ERROR: payment declined"}}`,
			check: func(t *testing.T, e model.Event) {
				if l := e.(model.LogHit); l.Record.Level != "ERROR" {
					t.Fatalf("level = %q, want ERROR", l.Record.Level)
				}
			},
		},
		{
			name: "removed with cause",
			line: `{"type":"REMOVED","instrumentId":"abc","cause":"probe attach failed"}`,
			check: func(t *testing.T, e model.Event) {
				if r := e.(model.Removed); r.Cause != "probe attach failed" {
					t.Fatalf("removed = %+v", r)
				}
			},
		},
		{
			name: "removed with null cause",
			line: `{"type":"REMOVED","instrumentId":"abc","cause":null}`,
			check: func(t *testing.T, e model.Event) {
				if r := e.(model.Removed); r.Cause != "" {
					t.Fatalf("removed = %+v", r)
				}
			},
		},
		{
			name: "view metric with epoch seconds",
			line: `{"type":"VIEW_METRIC","instrumentId":"m1","timestamp":1740816000,"metric":{"count":4}}`,
			check: func(t *testing.T, e model.Event) {
				v := e.(model.ViewMetric)
				if v.Metric["count"] != 4.0 || v.Timestamp.Unix() != 1740816000 {
					t.Fatalf("metric = %+v", v)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			e, err := Decode([]byte(tt.line), fixedNow)
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			tt.check(t, e)
		})
	}
}

func TestDecodeRejects(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		line string
	}{
		{"not json", `hello`},
		{"missing type", `{"instrumentId":"abc"}`},
		{"unknown type", `{"type":"PING","instrumentId":"abc"}`},
		{"empty id", `{"type":"HIT","instrumentId":""}`},
		{"log hit without record", `{"type":"LOG_HIT","instrumentId":"abc"}`},
		{"bad timestamp", `{"type":"HIT","instrumentId":"abc","timestamp":"yesterday"}`},
		{"boolean timestamp", `{"type":"HIT","instrumentId":"abc","timestamp":true}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if _, err := Decode([]byte(tt.line), fixedNow); !errors.Is(err, ErrInvalid) {
				t.Fatalf("Decode err = %v, want ErrInvalid", err)
			}
		})
	}
}

func TestEncodeDecode(t *testing.T) {
	t.Parallel()

	ts := time.Date(2025, 3, 1, 8, 30, 0, 0, time.UTC)
	events := []model.Event{
		model.Hit{ID: "a", EventID: "1", Timestamp: ts, Throttled: true},
		model.LogHit{ID: "b", EventID: "2", Timestamp: ts, Record: model.LogRecord{Content: "v={}", Arguments: []string{"3"}, Timestamp: ts}},
		model.ViewMetric{ID: "c", EventID: "3", Timestamp: ts, Metric: map[string]any{"p99": 12.5}},
		model.Removed{ID: "d", EventID: "4", Timestamp: ts, Cause: "boom"},
	}

	for _, want := range events {
		line, err := Encode(want)
		if err != nil {
			t.Fatalf("Encode(%T): %v", want, err)
		}
		got, err := Decode(line, fixedNow)
		if err != nil {
			t.Fatalf("Decode(%s): %v", line, err)
		}
		if got.Type() != want.Type() || got.InstrumentID() != want.InstrumentID() || got.Key() != want.Key() {
			t.Fatalf("round trip %s: got %+v, want %+v", line, got, want)
		}
	}
}

func TestFromEpoch(t *testing.T) {
	t.Parallel()

	want := time.Date(2020, 9, 13, 12, 26, 40, 0, time.UTC)
	for _, v := range []float64{1.6e9, 1.6e12, 1.6e15, 1.6e18} {
		if got := fromEpoch(v); !got.Equal(want) {
			t.Fatalf("fromEpoch(%v) = %v, want %v", v, got, want)
		}
	}
}
