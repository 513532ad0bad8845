package lifecycle

import "testing"

func TestDescribe(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		status Status
		text   string
	}{
		{"editing", Status{State: StateEditing}, "Editing"},
		{"editing with error", Status{State: StateEditing, LastErrorMessage: "invalid template: log template is empty"}, "invalid template: log template is empty"},
		{"pending", Status{State: StatePendingSave}, "Saving..."},
		{"waiting", Status{State: StateActive, RemainingMillisToExpire: -1}, "Waiting for hits"},
		{"waiting with expiry", Status{State: StateActive, RemainingMillisToExpire: 90_500}, "Waiting for hits | Expires in 1m30s"},
		{"hits without rate", Status{State: StateHit, HitCount: 1, RemainingMillisToExpire: -1}, "Hits: 1"},
		{"hits with rate", Status{State: StateActive, HitCount: 4, RateVisible: true, HitRatePerSecond: 0.5, RemainingMillisToExpire: -1}, "Hits: 4 (0.50/s)"},
		{"throttled", Status{State: StateThrottled, HitCount: 3}, "Throttled (hits: 3)"},
		{"complete", Status{State: StateComplete, HitCount: 1}, "Complete (hits: 1)"},
		{"error verbatim", Status{State: StateError, LastErrorMessage: "probe attach failed"}, "probe attach failed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			text, _ := describe(tt.status)
			if text != tt.text {
				t.Fatalf("describe() = %q, want %q", text, tt.text)
			}
		})
	}
}

func TestStateClassification(t *testing.T) {
	t.Parallel()

	for _, s := range []State{StateActive, StateHit, StateThrottled} {
		if !s.Live() || s.Terminal() {
			t.Fatalf("%s: Live=%v Terminal=%v", s, s.Live(), s.Terminal())
		}
	}
	for _, s := range []State{StateComplete, StateError} {
		if s.Live() || !s.Terminal() {
			t.Fatalf("%s: Live=%v Terminal=%v", s, s.Live(), s.Terminal())
		}
	}
	for _, s := range []State{StateEditing, StatePendingSave} {
		if s.Live() || s.Terminal() {
			t.Fatalf("%s: Live=%v Terminal=%v", s, s.Live(), s.Terminal())
		}
	}
}

func TestRenderKeepsText(t *testing.T) {
	t.Parallel()

	s := Status{Text: "Hits: 2", Color: ColorActive}
	if out := s.Render(); out == "" {
		t.Fatal("Render returned empty string")
	}
}
