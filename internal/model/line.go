package model

// EventLine is one raw event line as read from a transport, before decoding.
type EventLine struct {
	Source string // "tcp", "stdin"
	Line   string
}
