package socketrpc_test

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/tinytelemetry/lotus-live/internal/instrumentsvc"
	"github.com/tinytelemetry/lotus-live/internal/lifecycle"
	"github.com/tinytelemetry/lotus-live/internal/logging"
	"github.com/tinytelemetry/lotus-live/internal/model"
	"github.com/tinytelemetry/lotus-live/internal/session"
	"github.com/tinytelemetry/lotus-live/internal/socketrpc"
)

func startTestServer(t *testing.T) (*socketrpc.Client, *session.Manager) {
	t.Helper()

	mgr, err := session.New(session.Config{
		Service: instrumentsvc.NewMemory(),
		Logger:  logging.Discard(),
	})
	if err != nil {
		t.Fatalf("session: %v", err)
	}
	t.Cleanup(mgr.Close)

	sockPath := filepath.Join(t.TempDir(), "test.sock")
	srv := socketrpc.NewServer(sockPath, mgr, logging.Discard())
	if err := srv.Start(); err != nil {
		t.Fatalf("start server: %v", err)
	}
	t.Cleanup(srv.Stop)

	client, err := socketrpc.Dial(sockPath)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return client, mgr
}

func TestRoundtrip(t *testing.T) {
	client, mgr := startTestServer(t)

	var anchor string
	t.Run("CreateInstrument", func(t *testing.T) {
		st, err := client.CreateInstrument(model.Draft{
			Kind:     model.KindBreakpoint,
			Location: model.Location{Source: "com.example.Cart", Line: 18},
		})
		if err != nil {
			t.Fatal(err)
		}
		if st.Anchor == "" {
			t.Fatal("no anchor returned")
		}
		anchor = st.Anchor
	})

	t.Run("Status", func(t *testing.T) {
		deadline := time.Now().Add(2 * time.Second)
		for {
			st, err := client.Status(anchor)
			if err != nil {
				t.Fatal(err)
			}
			if st.State == lifecycle.StateActive {
				if st.InstrumentID == "" {
					t.Fatal("active instrument has no id")
				}
				break
			}
			if time.Now().After(deadline) {
				t.Fatalf("state = %s, want ACTIVE", st.State)
			}
			time.Sleep(5 * time.Millisecond)
		}
	})

	t.Run("ListInstruments", func(t *testing.T) {
		list, err := client.ListInstruments()
		if err != nil {
			t.Fatal(err)
		}
		if len(list) != 1 || list[0].Anchor != anchor {
			t.Fatalf("unexpected list: %+v", list)
		}
	})

	t.Run("ExpirationChoices", func(t *testing.T) {
		choices, err := client.ExpirationChoices()
		if err != nil {
			t.Fatal(err)
		}
		if len(choices) == 0 || choices[0].Minutes != 15 {
			t.Fatalf("unexpected choices: %+v", choices)
		}
	})

	t.Run("NormalizeTemplate", func(t *testing.T) {
		n, err := client.NormalizeTemplate("total=${total} n=$n", []string{"total", "n"})
		if err != nil {
			t.Fatal(err)
		}
		if n.Pattern != "total={} n={}" || len(n.Variables) != 2 {
			t.Fatalf("unexpected result: %+v", n)
		}
	})

	t.Run("DisposeInstrument", func(t *testing.T) {
		if err := client.DisposeInstrument(anchor); err != nil {
			t.Fatal(err)
		}
		if n := len(mgr.List()); n != 0 {
			t.Fatalf("instruments after dispose = %d", n)
		}
		if err := client.DisposeInstrument(anchor); err == nil {
			t.Fatal("second dispose should fail with unknown anchor")
		}
	})
}

func TestCreateValidationError(t *testing.T) {
	client, _ := startTestServer(t)

	st, err := client.CreateInstrument(model.Draft{Kind: model.KindLog, Location: model.Location{Source: "A", Line: 1}})
	var verr *socketrpc.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("err = %v, want ValidationError", err)
	}
	if st.Anchor == "" || st.State != lifecycle.StateEditing {
		t.Fatalf("status = %+v", st)
	}

	st, err = client.SaveInstrument(st.Anchor, model.Draft{Template: "hello"})
	if err != nil {
		t.Fatalf("SaveInstrument: %v", err)
	}
	if st.State != lifecycle.StatePendingSave && st.State != lifecycle.StateActive {
		t.Fatalf("state after save = %s", st.State)
	}
}

func TestSecondServerRefused(t *testing.T) {
	sockPath := filepath.Join(t.TempDir(), "busy.sock")

	srv := socketrpc.NewServer(sockPath, nil, logging.Discard())
	if err := srv.Start(); err != nil {
		t.Fatalf("first start: %v", err)
	}

	second := socketrpc.NewServer(sockPath, nil, logging.Discard())
	if err := second.Start(); err == nil {
		second.Stop()
		t.Fatal("second server started while first is listening")
	}
	srv.Stop()
}
