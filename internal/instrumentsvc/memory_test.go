package instrumentsvc

import (
	"context"
	"errors"
	"testing"

	"github.com/tinytelemetry/lotus-live/internal/model"
)

func TestMemoryAddRemove(t *testing.T) {
	t.Parallel()

	m := NewMemory()
	var removed []string
	m.OnRemove = func(r model.Removed) { removed = append(removed, r.ID) }

	ctx := context.Background()
	a, err := m.AddLiveInstrument(ctx, model.LiveInstrument{Kind: model.KindBreakpoint})
	if err != nil {
		t.Fatalf("AddLiveInstrument: %v", err)
	}
	if a.ID == "" {
		t.Fatal("no id assigned")
	}
	if _, ok := m.Get(a.ID); !ok {
		t.Fatal("instrument not stored")
	}
	if n := len(m.List()); n != 1 {
		t.Fatalf("List len = %d, want 1", n)
	}

	if err := m.RemoveLiveInstrument(ctx, a.ID); err != nil {
		t.Fatalf("RemoveLiveInstrument: %v", err)
	}
	if len(removed) != 1 || removed[0] != a.ID {
		t.Fatalf("OnRemove calls = %v", removed)
	}
	if err := m.RemoveLiveInstrument(ctx, a.ID); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("second remove err = %v, want ErrNotFound", err)
	}
}

func TestMemoryRejectsUnknownKind(t *testing.T) {
	t.Parallel()

	if _, err := NewMemory().AddLiveInstrument(context.Background(), model.LiveInstrument{Kind: "PROBE"}); err == nil {
		t.Fatal("expected error for unknown kind")
	}
}
