package lifecycle

// State is the lifecycle position of one live instrument.
type State string

const (
	StateEditing     State = "EDITING"
	StatePendingSave State = "PENDING_SAVE"
	StateActive      State = "ACTIVE"
	// StateHit is transient: it is published for one refresh and the
	// machine settles back to StateActive.
	StateHit       State = "HIT"
	StateThrottled State = "THROTTLED"
	StateComplete  State = "COMPLETE"
	StateError     State = "ERROR"
)

// Terminal reports whether no further transition can leave s.
func (s State) Terminal() bool {
	return s == StateComplete || s == StateError
}

// Live reports whether s accepts hit and removal events.
func (s State) Live() bool {
	return s == StateActive || s == StateHit || s == StateThrottled
}
