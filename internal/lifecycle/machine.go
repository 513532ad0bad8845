// Package lifecycle tracks one live instrument from editing through
// activation, hits and removal, and derives the status shown to the
// developer.
//
// All mutation happens on the shared eventloop.Loop. Public methods may be
// called from any goroutine; they post onto the loop.
package lifecycle

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rcrowley/go-metrics"
	"github.com/sirupsen/logrus"

	"github.com/tinytelemetry/lotus-live/internal/eventloop"
	"github.com/tinytelemetry/lotus-live/internal/logtemplate"
	"github.com/tinytelemetry/lotus-live/internal/model"
	"github.com/tinytelemetry/lotus-live/internal/policy"
	"github.com/tinytelemetry/lotus-live/internal/router"
)

const (
	defaultSubmitTimeout = 30 * time.Second
	noExpiry             = int64(-1)
)

// EventRouter is the part of the router a machine subscribes through.
type EventRouter interface {
	RegisterAnchor(anchor string, l model.EventListener) *router.Registration
	Bind(anchor, instrumentID string)
}

// Config wires a Machine to its collaborators.
type Config struct {
	Anchor   string
	Kind     model.InstrumentKind
	Location model.Location

	Loop    *eventloop.Loop
	Router  EventRouter
	Service model.InstrumentService
	Parser  model.ConditionParser // optional; conditions pass through unchanged without it
	Scope   model.ScopeProvider   // optional; no variables without it
	Logger  logrus.FieldLogger

	Now               func() time.Time
	SubmitTimeout     time.Duration
	CountdownInterval time.Duration

	// OnChange is called on the loop after every visible transition.
	OnChange func(Status)
	// OnCountdown is called from the countdown goroutine.
	OnCountdown func(anchor string, remainingMillis int64)
}

// Machine is the lifecycle of one instrument owned by one UI element.
type Machine struct {
	cfg        Config
	log        logrus.FieldLogger
	scope      []string
	normalizer *logtemplate.Normalizer
	reg        *router.Registration

	// Loop-owned state.
	state       State
	disposed    bool
	inst        model.LiveInstrument
	hitCount    int64
	meter       metrics.Meter
	meterDone   bool
	lastError   string
	lastMessage string
	lastHitAt   time.Time
	lastMetric  map[string]any
	stopTicker  chan struct{}

	// Shared with the countdown goroutine.
	expiresAt atomic.Int64
	remaining atomic.Int64

	snapshot atomic.Pointer[Status]
}

// New creates a machine in StateEditing and registers it with the router
// under its anchor, so events are never missed between submission and
// acknowledgement. The scope provider is queried once here.
func New(cfg Config) *Machine {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.SubmitTimeout <= 0 {
		cfg.SubmitTimeout = defaultSubmitTimeout
	}
	if cfg.CountdownInterval <= 0 {
		cfg.CountdownInterval = model.DefaultCountdownInterval
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.StandardLogger()
	}

	var scope []string
	if cfg.Scope != nil {
		scope = cfg.Scope.Variables(cfg.Location)
	}

	m := &Machine{
		cfg:        cfg,
		scope:      scope,
		normalizer: logtemplate.ForScope(scope),
		state:      StateEditing,
		meter:      metrics.NewMeter(),
		log: cfg.Logger.WithFields(logrus.Fields{
			"component": "lifecycle",
			"anchor":    cfg.Anchor,
			"kind":      cfg.Kind,
		}),
	}
	m.inst.Kind = cfg.Kind
	m.inst.Location = cfg.Location
	m.expiresAt.Store(noExpiry)
	m.remaining.Store(noExpiry)
	m.snapshot.Store(m.buildStatus())

	if cfg.Router != nil {
		m.reg = cfg.Router.RegisterAnchor(cfg.Anchor, m)
	}
	return m
}

// Anchor returns the UI anchor this machine belongs to.
func (m *Machine) Anchor() string { return m.cfg.Anchor }

// Status returns the latest published status. Safe from any goroutine.
func (m *Machine) Status() Status {
	s := *m.snapshot.Load()
	if s.State.Live() {
		s.RemainingMillisToExpire = m.remaining.Load()
		s.Text, s.Color = describe(s)
	}
	return s
}

// Instrument returns the descriptor as last submitted or acknowledged.
func (m *Machine) Instrument() model.LiveInstrument {
	var inst model.LiveInstrument
	if !m.cfg.Loop.Do(func() { inst = m.inst }) {
		return model.LiveInstrument{}
	}
	return inst
}

// Save validates d and, if it is acceptable, moves to StatePendingSave and
// submits the instrument asynchronously. Validation failures leave the
// machine in StateEditing and are returned as *model.ValidationError.
func (m *Machine) Save(d model.Draft) error {
	var err error
	if !m.cfg.Loop.Do(func() { err = m.save(d) }) {
		return model.ErrDisposed
	}
	return err
}

// OnEvent implements model.EventListener. It never blocks.
func (m *Machine) OnEvent(e model.Event) {
	m.cfg.Loop.Post(func() { m.apply(e) })
}

// Dispose unregisters the machine from the router before returning and
// sends a best-effort remove request for the instrument. It is idempotent.
func (m *Machine) Dispose() {
	if !m.cfg.Loop.Do(m.dispose) {
		// The loop is gone, so nothing else can touch the machine.
		m.dispose()
	}
}

func (m *Machine) save(d model.Draft) error {
	if m.disposed {
		return model.ErrDisposed
	}
	if m.state.Terminal() {
		return model.ErrTerminal
	}
	if m.state != StateEditing {
		return model.ErrInvalidTransition
	}

	inst, err := m.build(d)
	if err != nil {
		m.lastError = err.Error()
		m.publish()
		return err
	}

	m.inst = inst
	m.lastError = ""
	m.state = StatePendingSave
	m.publish()

	go m.submit(inst)
	return nil
}

// build turns the draft into the wire descriptor.
func (m *Machine) build(d model.Draft) (model.LiveInstrument, error) {
	now := m.cfg.Now()
	kind := m.cfg.Kind
	if !kind.Valid() {
		return model.LiveInstrument{}, &model.ValidationError{Field: "kind", Message: "unknown instrument kind " + string(kind)}
	}

	throttle := policy.DefaultThrottle()
	if d.ThrottleCount != 0 || d.ThrottleStep != "" {
		step := d.ThrottleStep
		if step == "" {
			step = model.StepSecond
		}
		t, err := policy.ComputeThrottle(d.ThrottleCount, step)
		if err != nil {
			return model.LiveInstrument{}, err
		}
		throttle = t
	}

	minutes := d.ExpirationMinutes
	if minutes == 0 {
		minutes = defaultExpiration(kind)
	}
	if minutes == model.NeverExpires && (kind == model.KindBreakpoint || kind == model.KindLog) {
		return model.LiveInstrument{}, &model.ValidationError{Field: "expiration", Message: "only meters and spans may never expire"}
	}
	expiresAt, err := policy.ComputeExpiration(minutes, now.UnixMilli())
	if err != nil {
		return model.LiveInstrument{}, err
	}

	hitLimit := d.HitLimit
	if hitLimit == 0 {
		hitLimit = defaultHitLimit(kind)
	}
	if hitLimit < model.UnlimitedHits {
		return model.LiveInstrument{}, &model.ValidationError{Field: "hitLimit", Message: "must be positive or -1 for unlimited"}
	}

	inst := model.LiveInstrument{
		Kind:      kind,
		Location:  m.cfg.Location,
		HitLimit:  hitLimit,
		Throttle:  throttle,
		ExpiresAt: expiresAt,
		Meta:      model.CloneMeta(d.Meta),
	}
	inst.Meta["anchor"] = m.cfg.Anchor

	if raw := strings.TrimSpace(d.Condition); raw != "" {
		cond := raw
		if m.cfg.Parser != nil {
			cond, err = m.cfg.Parser.ParseCondition(raw, model.SourceContext{
				Location:  m.cfg.Location,
				Variables: m.scope,
			})
			if err != nil {
				return model.LiveInstrument{}, &model.ValidationError{Field: "condition", Message: "could not parse condition", Err: err}
			}
		}
		inst.Condition = cond
	}

	if kind == model.KindLog {
		if err := logtemplate.Check(d.Template); err != nil {
			return model.LiveInstrument{}, &model.ValidationError{Field: "template", Message: "escape or remove the literal " + model.PlaceholderToken, Err: err}
		}
		norm := m.normalizer.Normalize(d.Template)
		if norm.Empty() {
			return model.LiveInstrument{}, &model.ValidationError{Field: "template", Message: "log template is empty"}
		}
		inst.LogFormat = norm.Pattern
		inst.LogArguments = norm.Variables
	}
	return inst, nil
}

func (m *Machine) submit(inst model.LiveInstrument) {
	ctx, cancel := context.WithTimeout(context.Background(), m.cfg.SubmitTimeout)
	created, err := m.cfg.Service.AddLiveInstrument(ctx, inst)
	cancel()
	if err == nil && created.ID == "" {
		err = errors.New("service returned no instrument id")
	}

	if !m.cfg.Loop.Post(func() { m.acknowledge(inst, created, err) }) {
		m.log.Warn("loop stopped before instrument submission completed")
		if err == nil {
			go m.removeRemote(created.ID)
		}
	}
}

func (m *Machine) acknowledge(sent, created model.LiveInstrument, err error) {
	if m.disposed {
		if err == nil {
			// Disposed while pending: the instrument now exists remotely.
			go m.removeRemote(created.ID)
		}
		return
	}
	if err != nil {
		serr := &model.SubmissionError{Op: "add", Err: err}
		m.log.WithError(err).Warn("live instrument submission failed")
		m.state = StateEditing
		m.lastError = serr.Error()
		m.publish()
		return
	}

	inst := sent
	inst.ID = created.ID
	if created.ExpiresAt != nil {
		inst.ExpiresAt = created.ExpiresAt
	}
	m.inst = inst
	m.state = StateActive
	m.log.WithField("instrument_id", inst.ID).Info("live instrument active")

	if inst.ExpiresAt != nil {
		m.expiresAt.Store(*inst.ExpiresAt)
		m.startCountdown()
	}
	m.publish()

	if m.cfg.Router != nil {
		m.cfg.Router.Bind(m.cfg.Anchor, inst.ID)
	}
}

func (m *Machine) apply(e model.Event) {
	if m.disposed || e == nil {
		return
	}
	if e.InstrumentID() != m.inst.ID || !m.state.Live() {
		m.log.WithFields(logrus.Fields{
			"instrument_id": e.InstrumentID(),
			"type":          e.Type(),
			"state":         m.state,
		}).Debug("ignoring event")
		return
	}

	switch ev := e.(type) {
	case model.Hit:
		m.hit(ev.Timestamp, ev.Throttled)
	case model.LogHit:
		m.lastMessage = logtemplate.FormatHit(m.logFormat(ev.Record), ev.Record.Arguments)
		m.hit(ev.Timestamp, ev.Throttled)
	case model.ViewMetric:
		m.lastMetric = ev.Metric
		m.publish()
	case model.Removed:
		m.removed(ev)
	}
}

func (m *Machine) logFormat(r model.LogRecord) string {
	if r.Content != "" {
		return r.Content
	}
	return m.inst.LogFormat
}

func (m *Machine) hit(ts time.Time, throttled bool) {
	if ts.IsZero() {
		ts = m.cfg.Now()
	}
	if throttled {
		m.state = StateThrottled
		m.publish()
		return
	}

	m.hitCount++
	m.meter.Mark(1)
	m.lastHitAt = ts

	m.state = StateHit
	m.publish()
	m.state = StateActive
	m.snapshot.Store(m.buildStatus())
}

func (m *Machine) removed(ev model.Removed) {
	m.stopCountdown()
	m.stopMeter()

	fields := logrus.Fields{"instrument_id": ev.ID, "hits": m.hitCount}
	if ev.Cause == "" {
		m.state = StateComplete
		m.log.WithFields(fields).Info("live instrument complete")
	} else {
		rerr := &model.RuntimeError{InstrumentID: ev.ID, Message: ev.Cause}
		m.state = StateError
		m.lastError = rerr.Error()
		m.log.WithFields(fields).WithError(rerr).Warn("live instrument failed")
	}
	m.publish()
}

func (m *Machine) dispose() {
	if m.disposed {
		return
	}
	m.disposed = true
	m.reg.Unregister()
	m.stopCountdown()
	m.stopMeter()
	if m.inst.ID != "" {
		go m.removeRemote(m.inst.ID)
	}
	m.publish()
}

// removeRemote runs off the loop and only logs its outcome.
func (m *Machine) removeRemote(id string) {
	ctx, cancel := context.WithTimeout(context.Background(), m.cfg.SubmitTimeout)
	defer cancel()
	log := m.log.WithField("instrument_id", id)
	err := m.cfg.Service.RemoveLiveInstrument(ctx, id)
	if errors.Is(err, model.ErrNotFound) {
		log.Debug("instrument already removed")
		return
	}
	if err != nil {
		log.WithError(&model.SubmissionError{Op: "remove", Err: err}).Warn("remove request failed")
		return
	}
	log.Debug("remove request accepted")
}

func (m *Machine) startCountdown() {
	m.stopCountdown()
	stop := make(chan struct{})
	m.stopTicker = stop
	m.tick()

	go func() {
		ticker := time.NewTicker(m.cfg.CountdownInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				m.tick()
			case <-stop:
				return
			}
		}
	}()
}

// tick only reads the expiration; a countdown reaching zero is cosmetic and
// never changes state.
func (m *Machine) tick() {
	at := m.expiresAt.Load()
	left := noExpiry
	if at != noExpiry {
		left = policy.RemainingMillis(&at, m.cfg.Now().UnixMilli())
	}
	m.remaining.Store(left)
	if m.cfg.OnCountdown != nil {
		m.cfg.OnCountdown(m.cfg.Anchor, left)
	}
}

func (m *Machine) stopMeter() {
	if !m.meterDone {
		m.meterDone = true
		m.meter.Stop()
	}
}

func (m *Machine) stopCountdown() {
	if m.stopTicker != nil {
		close(m.stopTicker)
		m.stopTicker = nil
	}
}

func (m *Machine) publish() {
	s := m.buildStatus()
	m.snapshot.Store(s)
	if m.cfg.OnChange != nil {
		m.cfg.OnChange(*s)
	}
}

func (m *Machine) buildStatus() *Status {
	s := &Status{
		Anchor:                  m.cfg.Anchor,
		InstrumentID:            m.inst.ID,
		Kind:                    m.cfg.Kind,
		Location:                m.cfg.Location,
		State:                   m.state,
		HitCount:                m.hitCount,
		RemainingMillisToExpire: m.remaining.Load(),
		LastErrorMessage:        m.lastError,
		LastMessage:             m.lastMessage,
		LastHitAt:               m.lastHitAt,
		LastMetric:              m.lastMetric,
		Disposed:                m.disposed,
	}
	// A single permitted hit has no meaningful rate.
	s.RateVisible = m.inst.HitLimit != 1 && m.hitCount > 0
	if s.RateVisible {
		s.HitRatePerSecond = m.meter.Rate1()
	}
	s.Text, s.Color = describe(*s)
	return s
}

func defaultExpiration(kind model.InstrumentKind) int {
	if kind == model.KindMeter || kind == model.KindSpan {
		return model.NeverExpires
	}
	return model.DefaultExpirationMinutes
}

func defaultHitLimit(kind model.InstrumentKind) int {
	if kind == model.KindMeter || kind == model.KindSpan {
		return model.UnlimitedHits
	}
	return model.DefaultHitLimit
}
