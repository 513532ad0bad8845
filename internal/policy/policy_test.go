package policy

import (
	"errors"
	"testing"

	"github.com/tinytelemetry/lotus-live/internal/model"
)

func TestComputeExpiration(t *testing.T) {
	t.Parallel()

	got, err := ComputeExpiration(30, 1_000_000)
	if err != nil {
		t.Fatalf("ComputeExpiration: %v", err)
	}
	if got == nil || *got != 1_000_000+1_800_000 {
		t.Fatalf("ComputeExpiration(30) = %v, want %d", got, 1_000_000+1_800_000)
	}

	for _, c := range ExpirationChoices() {
		a, err := ComputeExpiration(c.Minutes, 42)
		if err != nil {
			t.Fatalf("ComputeExpiration(%d): %v", c.Minutes, err)
		}
		b, _ := ComputeExpiration(c.Minutes, 42)
		if *a != *b {
			t.Fatalf("ComputeExpiration(%d) not deterministic: %d vs %d", c.Minutes, *a, *b)
		}
	}
}

func TestComputeExpiration_Never(t *testing.T) {
	t.Parallel()

	got, err := ComputeExpiration(model.NeverExpires, 1_000_000)
	if err != nil {
		t.Fatalf("ComputeExpiration(-1): %v", err)
	}
	if got != nil {
		t.Fatalf("ComputeExpiration(-1) = %d, want nil", *got)
	}
}

func TestComputeExpiration_RejectsUnknownSelection(t *testing.T) {
	t.Parallel()

	for _, m := range []int{0, 1, 45, 1441, -2} {
		_, err := ComputeExpiration(m, 0)
		var verr *model.ValidationError
		if !errors.As(err, &verr) {
			t.Errorf("ComputeExpiration(%d) err = %v, want ValidationError", m, err)
		}
	}
}

func TestComputeThrottle(t *testing.T) {
	t.Parallel()

	got, err := ComputeThrottle(5, model.StepMinute)
	if err != nil {
		t.Fatalf("ComputeThrottle: %v", err)
	}
	if got != (model.ThrottlePolicy{Limit: 5, Step: model.StepMinute}) {
		t.Fatalf("ComputeThrottle = %+v", got)
	}

	tests := []struct {
		count int
		step  model.ThrottleStep
	}{
		{0, model.StepSecond},
		{-3, model.StepHour},
		{1, "FORTNIGHT"},
	}
	for _, tt := range tests {
		_, err := ComputeThrottle(tt.count, tt.step)
		var verr *model.ValidationError
		if !errors.As(err, &verr) {
			t.Errorf("ComputeThrottle(%d, %q) err = %v, want ValidationError", tt.count, tt.step, err)
		}
	}
}

func TestParseThrottleStep(t *testing.T) {
	t.Parallel()

	tests := map[string]model.ThrottleStep{
		"":        model.StepSecond,
		"second":  model.StepSecond,
		"Minutes": model.StepMinute,
		"HOUR":    model.StepHour,
	}
	for in, want := range tests {
		got, err := ParseThrottleStep(in)
		if err != nil || got != want {
			t.Errorf("ParseThrottleStep(%q) = %q, %v; want %q", in, got, err, want)
		}
	}
	if _, err := ParseThrottleStep("day"); err == nil {
		t.Fatal("ParseThrottleStep(day) should fail")
	}
}

func TestRemainingMillis(t *testing.T) {
	t.Parallel()

	at := int64(10_000)
	if got := RemainingMillis(&at, 4_000); got != 6_000 {
		t.Errorf("RemainingMillis = %d, want 6000", got)
	}
	if got := RemainingMillis(&at, 12_000); got != 0 {
		t.Errorf("RemainingMillis past expiry = %d, want 0", got)
	}
	if got := RemainingMillis(nil, 0); got != -1 {
		t.Errorf("RemainingMillis(nil) = %d, want -1", got)
	}
}
