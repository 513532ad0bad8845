// Package policy maps editing-time choices to the throttle and expiration
// values sent to the instrument service. Every function here is pure; the
// current time is always passed in.
package policy

import (
	"fmt"
	"strings"

	"github.com/tinytelemetry/lotus-live/internal/model"
)

const millisPerMinute = 60_000

// ExpirationChoice is one entry of the expiration selector.
type ExpirationChoice struct {
	Minutes int    `json:"minutes"`
	Label   string `json:"label"`
}

var expirationChoices = []ExpirationChoice{
	{15, "15 Minutes"},
	{30, "30 Minutes"},
	{60, "1 Hour"},
	{180, "3 Hours"},
	{360, "6 Hours"},
	{720, "12 Hours"},
	{1440, "24 Hours"},
}

// ExpirationChoices returns the selectable expirations, shortest first.
func ExpirationChoices() []ExpirationChoice {
	out := make([]ExpirationChoice, len(expirationChoices))
	copy(out, expirationChoices)
	return out
}

// ComputeExpiration returns the absolute expiration in epoch millis for a
// selection made at nowMillis. model.NeverExpires returns nil.
func ComputeExpiration(selectedMinutes int, nowMillis int64) (*int64, error) {
	if selectedMinutes == model.NeverExpires {
		return nil, nil
	}
	if !validMinutes(selectedMinutes) {
		return nil, &model.ValidationError{
			Field:   "expiration",
			Message: fmt.Sprintf("%d minutes is not a selectable expiration", selectedMinutes),
		}
	}
	at := nowMillis + int64(selectedMinutes)*millisPerMinute
	return &at, nil
}

// ComputeThrottle returns the throttle policy for count hits per step.
// count below 1 is rejected rather than clamped.
func ComputeThrottle(count int, step model.ThrottleStep) (model.ThrottlePolicy, error) {
	if count < 1 {
		return model.ThrottlePolicy{}, &model.ValidationError{
			Field:   "throttle",
			Message: fmt.Sprintf("count must be at least 1, got %d", count),
		}
	}
	switch step {
	case model.StepSecond, model.StepMinute, model.StepHour:
	default:
		return model.ThrottlePolicy{}, &model.ValidationError{
			Field:   "throttle",
			Message: fmt.Sprintf("unknown step %q", step),
		}
	}
	return model.ThrottlePolicy{Limit: count, Step: step}, nil
}

// DefaultThrottle is one hit per second.
func DefaultThrottle() model.ThrottlePolicy {
	return model.ThrottlePolicy{Limit: 1, Step: model.StepSecond}
}

// ParseThrottleStep accepts the step names case-insensitively, singular or
// plural. An empty string selects the default step.
func ParseThrottleStep(s string) (model.ThrottleStep, error) {
	switch strings.TrimSuffix(strings.ToUpper(strings.TrimSpace(s)), "S") {
	case "", "SECOND":
		return model.StepSecond, nil
	case "MINUTE":
		return model.StepMinute, nil
	case "HOUR":
		return model.StepHour, nil
	}
	return "", &model.ValidationError{Field: "throttle", Message: fmt.Sprintf("unknown step %q", s)}
}

// RemainingMillis is the time left until expiresAt, never negative.
// A nil expiration has no countdown and returns -1.
func RemainingMillis(expiresAt *int64, nowMillis int64) int64 {
	if expiresAt == nil {
		return -1
	}
	if left := *expiresAt - nowMillis; left > 0 {
		return left
	}
	return 0
}

func validMinutes(m int) bool {
	for _, c := range expirationChoices {
		if c.Minutes == m {
			return true
		}
	}
	return false
}
