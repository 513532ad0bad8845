package model

import "time"

// InstrumentKind identifies what a live instrument does when it fires.
type InstrumentKind string

const (
	KindBreakpoint InstrumentKind = "BREAKPOINT"
	KindLog        InstrumentKind = "LOG"
	KindMeter      InstrumentKind = "METER"
	KindSpan       InstrumentKind = "SPAN"
)

// Valid reports whether k is one of the four known kinds.
func (k InstrumentKind) Valid() bool {
	switch k {
	case KindBreakpoint, KindLog, KindMeter, KindSpan:
		return true
	}
	return false
}

// ThrottleStep is the time unit a throttle limit applies to.
type ThrottleStep string

const (
	StepSecond ThrottleStep = "SECOND"
	StepMinute ThrottleStep = "MINUTE"
	StepHour   ThrottleStep = "HOUR"
)

// ThrottlePolicy caps how often an instrument may fire: Limit hits per Step.
type ThrottlePolicy struct {
	Limit int          `json:"limit"`
	Step  ThrottleStep `json:"step"`
}

// Location is where an instrument attaches: an artifact-qualified name
// (class or function) plus a source line.
type Location struct {
	Source string `json:"source"`
	Line   int    `json:"line"`
}

// SourceContext is what the condition parser needs to know about the
// instrumentation point.
type SourceContext struct {
	Location  Location
	Variables []string
}

// LiveInstrument is the descriptor submitted to the instrument service.
// ID is empty until the service has acknowledged creation.
type LiveInstrument struct {
	ID           string            `json:"id,omitempty"`
	Kind         InstrumentKind    `json:"type"`
	Location     Location          `json:"location"`
	Condition    string            `json:"condition,omitempty"`
	HitLimit     int               `json:"hitLimit"`
	Throttle     ThrottlePolicy    `json:"throttle"`
	ExpiresAt    *int64            `json:"expiresAt,omitempty"` // epoch millis, nil = never
	LogFormat    string            `json:"logFormat,omitempty"`
	LogArguments []string          `json:"logArguments,omitempty"`
	Meta         map[string]string `json:"meta,omitempty"`
}

// Draft is the editing-time shape of an instrument, as the plugin sends it.
// It is turned into a LiveInstrument on save.
type Draft struct {
	Kind              InstrumentKind    `json:"kind"`
	Location          Location          `json:"location"`
	Template          string            `json:"template,omitempty"`
	Condition         string            `json:"condition,omitempty"`
	HitLimit          int               `json:"hitLimit"`
	ThrottleCount     int               `json:"throttleCount"`
	ThrottleStep      ThrottleStep      `json:"throttleStep"`
	ExpirationMinutes int               `json:"expirationMinutes"`
	Variables         []string          `json:"variables,omitempty"`
	Meta              map[string]string `json:"meta,omitempty"`
}

// LogRecord is the captured output of one log-point hit.
type LogRecord struct {
	Content   string    `json:"content"`
	Arguments []string  `json:"arguments,omitempty"`
	Level     string    `json:"level,omitempty"`
	Logger    string    `json:"logger,omitempty"`
	Thread    string    `json:"thread,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// CloneMeta returns a copy of m, never nil.
func CloneMeta(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
