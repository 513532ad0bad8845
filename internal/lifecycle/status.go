package lifecycle

import (
	"fmt"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/tinytelemetry/lotus-live/internal/model"
)

// Status colours, as lipgloss 256-colour codes.
const (
	ColorMuted   = lipgloss.Color("240")
	ColorPending = lipgloss.Color("39")
	ColorActive  = lipgloss.Color("42")
	ColorWarn    = lipgloss.Color("220")
	ColorError   = lipgloss.Color("196")
)

// Status is the presentation-facing view of a machine.
type Status struct {
	Anchor                  string               `json:"anchor"`
	InstrumentID            string               `json:"instrumentId,omitempty"`
	Kind                    model.InstrumentKind `json:"kind"`
	Location                model.Location       `json:"location"`
	State                   State                `json:"state"`
	HitCount                int64                `json:"hitCount"`
	HitRatePerSecond        float64              `json:"hitRatePerSecond"`
	RateVisible             bool                 `json:"rateVisible"`
	RemainingMillisToExpire int64                `json:"remainingMillisToExpire"` // -1 = never expires
	LastErrorMessage        string               `json:"lastErrorMessage,omitempty"`
	LastMessage             string               `json:"lastMessage,omitempty"`
	LastHitAt               time.Time            `json:"lastHitAt,omitempty"`
	LastMetric              map[string]any       `json:"lastMetric,omitempty"`
	Disposed                bool                 `json:"disposed"`
	Text                    string               `json:"text"`
	Color                   lipgloss.Color       `json:"color"`
}

// Render styles Text with Color for terminal output.
func (s Status) Render() string {
	return lipgloss.NewStyle().Foreground(s.Color).Render(s.Text)
}

func describe(s Status) (string, lipgloss.Color) {
	switch s.State {
	case StateEditing:
		if s.LastErrorMessage != "" {
			return s.LastErrorMessage, ColorError
		}
		return "Editing", ColorMuted
	case StatePendingSave:
		return "Saving...", ColorPending
	case StateActive, StateHit:
		text := "Waiting for hits"
		if s.HitCount > 0 {
			text = fmt.Sprintf("Hits: %d", s.HitCount)
			if s.RateVisible {
				text += fmt.Sprintf(" (%.2f/s)", s.HitRatePerSecond)
			}
		}
		if s.RemainingMillisToExpire >= 0 {
			text += " | Expires in " + formatRemaining(s.RemainingMillisToExpire)
		}
		return text, ColorActive
	case StateThrottled:
		return fmt.Sprintf("Throttled (hits: %d)", s.HitCount), ColorWarn
	case StateComplete:
		return fmt.Sprintf("Complete (hits: %d)", s.HitCount), ColorActive
	case StateError:
		return s.LastErrorMessage, ColorError
	}
	return string(s.State), ColorMuted
}

func formatRemaining(ms int64) string {
	return (time.Duration(ms) * time.Millisecond).Truncate(time.Second).String()
}
