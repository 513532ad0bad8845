package socketrpc

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/tinytelemetry/lotus-live/internal/lifecycle"
	"github.com/tinytelemetry/lotus-live/internal/model"
)

// JSON-RPC 2.0 Method Reference
//
// The socket RPC server exposes the instrument session to the editor plugin.
//
//   Method                 Params                                   Result
//   ─────────────────────  ───────────────────────────────────────  ───────────────────────
//   CreateInstrument       {Draft: Draft}                           Status
//   SaveInstrument         {Anchor: string, Draft: Draft}           Status
//   Status                 {Anchor: string}                         Status
//   ListInstruments        (none)                                   []Status
//   DisposeInstrument      {Anchor: string}                         bool
//   ExpirationChoices      (none)                                   []ExpirationChoice
//   NormalizeTemplate      {Template: string, Variables: []string}  Normalized
//
// CreateInstrument and SaveInstrument reject invalid drafts with code -32001;
// the error's data member carries the instrument Status, including the
// anchor to save the corrected draft under.
//
// Error codes follow JSON-RPC 2.0:
//   -32700  Parse error (malformed JSON)
//   -32601  Method not found
//   -32602  Invalid params
//   -32603  Internal error (marshal failure)
//   -32000  Application error
//   -32001  Validation error (draft rejected before submission)
//   -32004  Unknown anchor

const (
	codeParse          = -32700
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeInternal       = -32603
	codeApplication    = -32000
	codeValidation     = -32001
	codeNotFound       = -32004
)

// Request is a JSON-RPC 2.0 request.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int             `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
}

// Response is a JSON-RPC 2.0 response.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int             `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

// RPCError represents a JSON-RPC 2.0 error object.
type RPCError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *RPCError) Error() string { return e.Message }

// SessionAPI is what the server exposes. *session.Manager implements it.
type SessionAPI interface {
	Create(d model.Draft) (lifecycle.Status, error)
	Save(anchor string, d model.Draft) (lifecycle.Status, error)
	Status(anchor string) (lifecycle.Status, error)
	List() []lifecycle.Status
	Dispose(anchor string) error
}

// DefaultSocketPath returns the default Unix socket path.
// It prefers $XDG_RUNTIME_DIR/lotus-live/lotus-live.sock, falling back to
// ~/.local/state/lotus-live/lotus-live.sock.
func DefaultSocketPath() string {
	if dir := os.Getenv("XDG_RUNTIME_DIR"); dir != "" {
		return filepath.Join(dir, "lotus-live", "lotus-live.sock")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "/tmp/lotus-live.sock"
	}
	return filepath.Join(home, ".local", "state", "lotus-live", "lotus-live.sock")
}
