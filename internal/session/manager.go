// Package session owns every live instrument a developer has open: one
// lifecycle machine per UI anchor, sharing a single event loop and router.
package session

import (
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/tinytelemetry/lotus-live/internal/eventloop"
	"github.com/tinytelemetry/lotus-live/internal/lifecycle"
	"github.com/tinytelemetry/lotus-live/internal/model"
	"github.com/tinytelemetry/lotus-live/internal/router"
)

// Config wires a Manager.
type Config struct {
	Service    model.InstrumentService
	Parser     model.ConditionParser
	Router     *router.Router // created when nil
	Registerer prometheus.Registerer
	Logger     logrus.FieldLogger

	Now               func() time.Time
	SubmitTimeout     time.Duration
	CountdownInterval time.Duration

	// OnChange observes every published status, on the event loop.
	OnChange func(lifecycle.Status)
}

// Manager is safe for concurrent use.
type Manager struct {
	cfg    Config
	loop   *eventloop.Loop
	router *router.Router
	log    logrus.FieldLogger
	met    *metrics

	mu       sync.Mutex
	machines map[string]*lifecycle.Machine
	order    []string
	states   map[string]lifecycle.State
	closed   bool
}

// New starts the event loop and returns an empty manager.
func New(cfg Config) (*Manager, error) {
	if cfg.Service == nil {
		return nil, errors.New("session: instrument service is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.StandardLogger()
	}
	r := cfg.Router
	if r == nil {
		r = router.New(router.Config{Logger: cfg.Logger})
	}

	return &Manager{
		cfg:      cfg,
		loop:     eventloop.New(),
		router:   r,
		log:      cfg.Logger.WithField("component", "session"),
		met:      newMetrics(cfg.Registerer),
		machines: make(map[string]*lifecycle.Machine),
		states:   make(map[string]lifecycle.State),
	}, nil
}

// Router returns the router events should be dispatched into.
func (m *Manager) Router() *router.Router { return m.router }

// Dispatch hands a remote event to the router.
func (m *Manager) Dispatch(e model.Event) bool { return m.router.Dispatch(e) }

// Create opens a new instrument for d.Location and saves d. The machine is
// kept even when validation fails, so the developer can correct the draft
// and Save again under the returned anchor.
func (m *Manager) Create(d model.Draft) (lifecycle.Status, error) {
	if !d.Kind.Valid() {
		return lifecycle.Status{}, &model.ValidationError{Field: "kind", Message: fmt.Sprintf("unknown instrument kind %q", d.Kind)}
	}

	anchor := uuid.NewString()
	mach := lifecycle.New(lifecycle.Config{
		Anchor:            anchor,
		Kind:              d.Kind,
		Location:          d.Location,
		Loop:              m.loop,
		Router:            m.router,
		Service:           m.cfg.Service,
		Parser:            m.cfg.Parser,
		Scope:             staticScope(slices.Clone(d.Variables)),
		Logger:            m.cfg.Logger,
		Now:               m.cfg.Now,
		SubmitTimeout:     m.cfg.SubmitTimeout,
		CountdownInterval: m.cfg.CountdownInterval,
		OnChange:          m.onChange,
	})

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		mach.Dispose()
		return lifecycle.Status{}, model.ErrDisposed
	}
	m.machines[anchor] = mach
	m.order = append(m.order, anchor)
	m.states[anchor] = lifecycle.StateEditing
	m.met.move("", lifecycle.StateEditing)
	m.met.created.Inc()
	m.mu.Unlock()

	m.log.WithFields(logrus.Fields{
		"anchor":   anchor,
		"kind":     d.Kind,
		"location": fmt.Sprintf("%s:%d", d.Location.Source, d.Location.Line),
	}).Info("instrument created")

	err := m.save(mach, d)
	return mach.Status(), err
}

// Save resubmits a corrected draft for an instrument still in editing.
// Kind and location are fixed at creation and ignored here.
func (m *Manager) Save(anchor string, d model.Draft) (lifecycle.Status, error) {
	mach, err := m.get(anchor)
	if err != nil {
		return lifecycle.Status{}, err
	}
	err = m.save(mach, d)
	return mach.Status(), err
}

func (m *Manager) save(mach *lifecycle.Machine, d model.Draft) error {
	err := mach.Save(d)
	var verr *model.ValidationError
	if errors.As(err, &verr) {
		m.met.rejected.Inc()
	}
	return err
}

// Status returns the current status of one instrument.
func (m *Manager) Status(anchor string) (lifecycle.Status, error) {
	mach, err := m.get(anchor)
	if err != nil {
		return lifecycle.Status{}, err
	}
	return mach.Status(), nil
}

// Instrument returns the descriptor last submitted for anchor.
func (m *Manager) Instrument(anchor string) (model.LiveInstrument, error) {
	mach, err := m.get(anchor)
	if err != nil {
		return model.LiveInstrument{}, err
	}
	return mach.Instrument(), nil
}

// List returns every open instrument's status in creation order.
func (m *Manager) List() []lifecycle.Status {
	m.mu.Lock()
	machs := make([]*lifecycle.Machine, 0, len(m.order))
	for _, a := range m.order {
		machs = append(machs, m.machines[a])
	}
	m.mu.Unlock()

	out := make([]lifecycle.Status, 0, len(machs))
	for _, mach := range machs {
		out = append(out, mach.Status())
	}
	return out
}

// Dispose closes the instrument owned by anchor. Its listener is gone when
// Dispose returns; the remote remove request completes in the background.
func (m *Manager) Dispose(anchor string) error {
	m.mu.Lock()
	mach, ok := m.machines[anchor]
	if ok {
		delete(m.machines, anchor)
		m.order = slices.DeleteFunc(m.order, func(a string) bool { return a == anchor })
		m.met.move(m.states[anchor], "")
		delete(m.states, anchor)
	}
	m.mu.Unlock()

	if !ok {
		return fmt.Errorf("session: %s: %w", anchor, model.ErrNotFound)
	}
	mach.Dispose()
	m.log.WithField("anchor", anchor).Info("instrument disposed")
	return nil
}

// Close disposes every instrument and stops the event loop.
func (m *Manager) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	anchors := slices.Clone(m.order)
	m.mu.Unlock()

	for _, a := range anchors {
		m.Dispose(a)
	}
	m.loop.Stop()
}

func (m *Manager) get(anchor string) (*lifecycle.Machine, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	mach, ok := m.machines[anchor]
	if !ok {
		return nil, fmt.Errorf("session: %s: %w", anchor, model.ErrNotFound)
	}
	return mach, nil
}

// onChange runs on the event loop.
func (m *Manager) onChange(s lifecycle.Status) {
	// HIT settles back to ACTIVE without a second notification.
	st := s.State
	if st == lifecycle.StateHit {
		st = lifecycle.StateActive
	}
	m.mu.Lock()
	if prev, ok := m.states[s.Anchor]; ok && prev != st {
		m.met.move(prev, st)
		m.states[s.Anchor] = st
	}
	m.mu.Unlock()

	m.met.transitions.WithLabelValues(string(s.State)).Inc()
	if m.cfg.OnChange != nil {
		m.cfg.OnChange(s)
	}
}

// staticScope serves the variable names the plugin sent with the draft.
type staticScope []string

func (s staticScope) Variables(model.Location) []string { return s }
