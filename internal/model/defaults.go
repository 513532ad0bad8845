package model

import "time"

// Shared defaults used by the daemon and its packages.
const (
	PlaceholderToken = "{}"

	// NeverExpires is the expiration selector for meters and spans.
	NeverExpires = -1

	// UnlimitedHits disables the server-side hit limit.
	UnlimitedHits = -1

	DefaultHitLimit          = 1
	DefaultExpirationMinutes = 15
	DefaultCountdownInterval = time.Second
)
