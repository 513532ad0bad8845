package httpserver

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/tinytelemetry/lotus-live/internal/lifecycle"
	"github.com/tinytelemetry/lotus-live/internal/logging"
	"github.com/tinytelemetry/lotus-live/internal/model"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type stubSessions struct{}

func (stubSessions) List() []lifecycle.Status {
	return []lifecycle.Status{{Anchor: "a-1", State: lifecycle.StateActive, InstrumentID: "abc"}}
}

func (stubSessions) Status(anchor string) (lifecycle.Status, error) {
	if anchor != "a-1" {
		return lifecycle.Status{}, fmt.Errorf("session: %s: %w", anchor, model.ErrNotFound)
	}
	return lifecycle.Status{Anchor: anchor, State: lifecycle.StateActive}, nil
}

type recordingSink struct {
	mu   sync.Mutex
	seen map[string]bool
	got  []model.Event
}

func (s *recordingSink) Dispatch(e model.Event) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.seen == nil {
		s.seen = make(map[string]bool)
	}
	if s.seen[e.Key()] {
		return false
	}
	s.seen[e.Key()] = true
	s.got = append(s.got, e)
	return true
}

func newTestServer(t *testing.T) (*recordingSink, *gin.Engine) {
	t.Helper()
	sink := &recordingSink{}
	reg := prometheus.NewRegistry()
	reg.MustRegister(prometheus.NewCounter(prometheus.CounterOpts{Name: "lotus_live_test_total", Help: "test"}))

	srv := NewServer(Config{
		Sessions: stubSessions{},
		Events:   sink,
		Gatherer: reg,
		Logger:   logging.Discard(),
	})
	return sink, srv.routes()
}

func do(r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestHealthEndpoint(t *testing.T) {
	_, r := newTestServer(t)

	w := do(r, http.MethodGet, "/api/health", "")
	if w.Code != http.StatusOK {
		t.Fatalf("health status = %d, want %d", w.Code, http.StatusOK)
	}

	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal health: %v", err)
	}
	if body["status"] != "ok" || body["instruments"] != 1.0 {
		t.Errorf("health body = %v", body)
	}
}

func TestHealthEndpoint_WrongMethod(t *testing.T) {
	_, r := newTestServer(t)

	w := do(r, http.MethodPost, "/api/health", "")
	if w.Code != http.StatusMethodNotAllowed && w.Code != http.StatusNotFound {
		t.Errorf("health POST status = %d, want 405 or 404", w.Code)
	}
}

func TestInstrumentsEndpoints(t *testing.T) {
	_, r := newTestServer(t)

	w := do(r, http.MethodGet, "/api/instruments", "")
	if w.Code != http.StatusOK {
		t.Fatalf("list status = %d", w.Code)
	}
	var list struct {
		Instruments []lifecycle.Status `json:"instruments"`
		Count       int                `json:"count"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &list); err != nil {
		t.Fatalf("unmarshal list: %v", err)
	}
	if list.Count != 1 || list.Instruments[0].InstrumentID != "abc" {
		t.Fatalf("list = %+v", list)
	}

	if w := do(r, http.MethodGet, "/api/instruments/a-1", ""); w.Code != http.StatusOK {
		t.Fatalf("get status = %d", w.Code)
	}
	if w := do(r, http.MethodGet, "/api/instruments/nope", ""); w.Code != http.StatusNotFound {
		t.Fatalf("unknown anchor status = %d, want 404", w.Code)
	}
}

func TestEventsEndpoint(t *testing.T) {
	sink, r := newTestServer(t)

	body := strings.Join([]string{
		`{"type":"HIT","instrumentId":"abc","eventId":"1"}`,
		``,
		`{"type":"HIT","instrumentId":"abc","eventId":"1"}`,
		`{"type":"BOGUS","instrumentId":"abc"}`,
		`{"type":"REMOVED","instrumentId":"abc","cause":"probe attach failed"}`,
	}, "\n")

	w := do(r, http.MethodPost, "/api/events", body)
	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202: %s", w.Code, w.Body.String())
	}
	var resp struct {
		Accepted   int              `json:"accepted"`
		Duplicates int              `json:"duplicates"`
		Rejected   []map[string]any `json:"rejected"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Accepted != 2 || resp.Duplicates != 1 || len(resp.Rejected) != 1 {
		t.Fatalf("resp = %+v", resp)
	}
	if resp.Rejected[0]["line"] != 4.0 {
		t.Fatalf("rejected line = %v, want 4", resp.Rejected[0]["line"])
	}
	if len(sink.got) != 2 || sink.got[1].Type() != model.EventRemoved {
		t.Fatalf("dispatched = %+v", sink.got)
	}
}

func TestEventsEndpoint_Rejects(t *testing.T) {
	_, r := newTestServer(t)

	if w := do(r, http.MethodPost, "/api/events", ""); w.Code != http.StatusBadRequest {
		t.Fatalf("empty body status = %d, want 400", w.Code)
	}
	if w := do(r, http.MethodPost, "/api/events", `{"type":"HIT"}`); w.Code != http.StatusBadRequest {
		t.Fatalf("invalid-only body status = %d, want 400", w.Code)
	}
}

func TestEventsEndpoint_Disabled(t *testing.T) {
	srv := NewServer(Config{Sessions: stubSessions{}, Logger: logging.Discard()})
	if w := do(srv.routes(), http.MethodPost, "/api/events", `{}`); w.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", w.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	_, r := newTestServer(t)

	w := do(r, http.MethodGet, "/metrics", "")
	if w.Code != http.StatusOK {
		t.Fatalf("metrics status = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "lotus_live_test_total") {
		t.Fatalf("metrics body missing counter:\n%s", w.Body.String())
	}
}
