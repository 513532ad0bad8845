package instrumentsvc

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tinytelemetry/lotus-live/internal/model"
)

// Memory is an in-process instrument service for test mode. It assigns ids
// and remembers instruments; nothing is attached anywhere.
type Memory struct {
	mu    sync.Mutex
	items map[string]model.LiveInstrument
	now   func() time.Time

	// OnRemove, when set, is called after an instrument is removed.
	OnRemove func(model.Removed)
}

var _ model.InstrumentService = (*Memory)(nil)

// NewMemory returns an empty in-memory service.
func NewMemory() *Memory {
	return &Memory{items: make(map[string]model.LiveInstrument), now: time.Now}
}

func (m *Memory) AddLiveInstrument(ctx context.Context, inst model.LiveInstrument) (model.LiveInstrument, error) {
	if err := ctx.Err(); err != nil {
		return model.LiveInstrument{}, err
	}
	if !inst.Kind.Valid() {
		return model.LiveInstrument{}, fmt.Errorf("instrumentsvc: unknown instrument type %q", inst.Kind)
	}

	inst.ID = uuid.NewString()
	inst.Meta = model.CloneMeta(inst.Meta)

	m.mu.Lock()
	m.items[inst.ID] = inst
	m.mu.Unlock()
	return inst, nil
}

func (m *Memory) RemoveLiveInstrument(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	_, ok := m.items[id]
	delete(m.items, id)
	hook := m.OnRemove
	m.mu.Unlock()

	if !ok {
		return fmt.Errorf("instrumentsvc: remove %s: %w", id, model.ErrNotFound)
	}
	if hook != nil {
		hook(model.Removed{ID: id, Timestamp: m.now()})
	}
	return nil
}

// Get returns the instrument with the given id.
func (m *Memory) Get(id string) (model.LiveInstrument, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	inst, ok := m.items[id]
	return inst, ok
}

// List returns all instruments ordered by id.
func (m *Memory) List() []model.LiveInstrument {
	m.mu.Lock()
	out := make([]model.LiveInstrument, 0, len(m.items))
	for _, inst := range m.items {
		out = append(out, inst)
	}
	m.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
