// Package router fans remote instrument events out to the listeners that
// registered interest in an instrument, either directly by id or through
// the UI anchor that created it.
package router

import (
	"sync"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/sirupsen/logrus"

	"github.com/tinytelemetry/lotus-live/internal/model"
)

const (
	// DefaultDedupSize is how many recent event keys are remembered.
	DefaultDedupSize = 8192
	// DefaultReplaySize is how many instruments keep a latest event for replay.
	DefaultReplaySize = 4096
	// MaxBacklog is how many undelivered events are kept per instrument.
	MaxBacklog = 16
)

// Config holds tunable parameters for the router.
type Config struct {
	DedupSize  int
	ReplaySize int
	Metrics    *Metrics
	Logger     logrus.FieldLogger
}

type registration struct {
	key          string
	anchor       string
	instrumentID string
	listener     model.EventListener
	lastKey      string
}

// Router delivers each event to every listener registered for its
// instrument id. Listeners are called with the router lock held, so
// OnEvent must return quickly and must not call back into the router.
type Router struct {
	mu        sync.Mutex
	byID      map[string][]*registration
	byAnchor  map[string][]*registration
	anchorIDs map[string]string

	latest  *lru.Cache[string, model.Event]
	backlog *lru.Cache[string, []model.Event]
	seen    *lru.Cache[string, struct{}]

	metrics *Metrics
	log     logrus.FieldLogger
}

// New creates a router.
func New(conf ...Config) *Router {
	cfg := Config{}
	if len(conf) > 0 {
		cfg = conf[0]
	}
	if cfg.DedupSize <= 0 {
		cfg.DedupSize = DefaultDedupSize
	}
	if cfg.ReplaySize <= 0 {
		cfg.ReplaySize = DefaultReplaySize
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.StandardLogger()
	}

	// lru.New only fails for a non-positive size.
	latest, _ := lru.New[string, model.Event](cfg.ReplaySize)
	backlog, _ := lru.New[string, []model.Event](cfg.ReplaySize)
	seen, _ := lru.New[string, struct{}](cfg.DedupSize)

	return &Router{
		byID:      make(map[string][]*registration),
		byAnchor:  make(map[string][]*registration),
		anchorIDs: make(map[string]string),
		latest:    latest,
		backlog:   backlog,
		seen:      seen,
		metrics:   cfg.Metrics,
		log:       cfg.Logger.WithField("component", "router"),
	}
}

// Registration is a handle to one registered listener.
type Registration struct {
	r    *Router
	reg  *registration
	once sync.Once
}

// Unregister stops delivery to the listener. It is safe to call more than once.
func (g *Registration) Unregister() {
	if g == nil {
		return
	}
	g.once.Do(func() {
		g.r.remove(g.reg)
	})
}

// Register subscribes l to events for instrumentID. Events for that id that
// no listener has seen yet are delivered in order before Register returns.
// Otherwise l receives the cached latest event, if any.
func (r *Router) Register(instrumentID string, l model.EventListener) *Registration {
	reg := &registration{key: uuid.NewString(), instrumentID: instrumentID, listener: l}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID[instrumentID] = append(r.byID[instrumentID], reg)
	r.metrics.addRegistrations(1)
	r.replayLocked(reg)
	return &Registration{r: r, reg: reg}
}

// RegisterAnchor subscribes l on behalf of a UI anchor whose instrument id
// may not be known yet. Delivery starts once Bind links the anchor to an id.
func (r *Router) RegisterAnchor(anchor string, l model.EventListener) *Registration {
	reg := &registration{key: uuid.NewString(), anchor: anchor, listener: l}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.byAnchor[anchor] = append(r.byAnchor[anchor], reg)
	r.metrics.addRegistrations(1)
	if id, ok := r.anchorIDs[anchor]; ok {
		reg.instrumentID = id
		r.byID[id] = append(r.byID[id], reg)
		r.replayLocked(reg)
	}
	return &Registration{r: r, reg: reg}
}

// Bind links anchor to instrumentID. Every listener registered for the
// anchor starts receiving the id's events, beginning with the undelivered
// backlog or the cached latest one.
func (r *Router) Bind(anchor, instrumentID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if prev, ok := r.anchorIDs[anchor]; ok && prev == instrumentID {
		return
	}
	r.anchorIDs[anchor] = instrumentID
	for _, reg := range r.byAnchor[anchor] {
		if reg.instrumentID != "" {
			r.byID[reg.instrumentID] = without(r.byID[reg.instrumentID], reg)
		}
		reg.instrumentID = instrumentID
		r.byID[instrumentID] = append(r.byID[instrumentID], reg)
		r.replayLocked(reg)
	}
}

// Dispatch delivers e to every listener registered for its instrument.
// It reports false when e is a duplicate of an event already seen.
// Events nobody listens to are kept for replay and otherwise dropped.
func (r *Router) Dispatch(e model.Event) bool {
	if e == nil {
		return false
	}
	key := e.Key()
	id := e.InstrumentID()

	r.mu.Lock()
	defer r.mu.Unlock()

	r.metrics.incReceived(string(e.Type()))
	if r.seen.Contains(key) {
		r.metrics.incDuplicates()
		r.log.WithFields(logrus.Fields{"instrument_id": id, "event_key": key}).Debug("dropping duplicate event")
		return false
	}
	r.seen.Add(key, struct{}{})
	r.latest.Add(id, e)

	regs := r.byID[id]
	if len(regs) == 0 {
		r.appendBacklogLocked(id, e)
		r.metrics.incUnrouted()
		r.log.WithFields(logrus.Fields{"instrument_id": id, "type": e.Type()}).Debug("no listener for event, cached for replay")
		return true
	}
	for _, reg := range regs {
		r.deliverLocked(reg, e, key)
	}
	r.metrics.incDispatched()
	return true
}

// Prime records e as the latest event for its instrument without delivering
// it, e.g. when restoring state from the journal.
func (r *Router) Prime(e model.Event) {
	if e == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seen.Add(e.Key(), struct{}{})
	r.latest.Add(e.InstrumentID(), e)
}

// Latest returns the most recent event seen for instrumentID.
func (r *Router) Latest(instrumentID string) (model.Event, bool) {
	return r.latest.Peek(instrumentID)
}

// Listeners returns how many listeners are registered for instrumentID.
func (r *Router) Listeners(instrumentID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byID[instrumentID])
}

func (r *Router) appendBacklogLocked(id string, e model.Event) {
	events, _ := r.backlog.Peek(id)
	events = append(events, e)
	if len(events) > MaxBacklog {
		events = events[len(events)-MaxBacklog:]
	}
	r.backlog.Add(id, events)
}

// replayLocked hands reg the backlog of never-delivered events, so a hit
// and the removal that follows it both count. The backlog is consumed by
// the first registrant; later ones get only the latest event.
func (r *Router) replayLocked(reg *registration) {
	if events, ok := r.backlog.Peek(reg.instrumentID); ok {
		r.backlog.Remove(reg.instrumentID)
		for _, e := range events {
			r.deliverLocked(reg, e, e.Key())
		}
		r.metrics.incReplayed()
		return
	}
	e, ok := r.latest.Peek(reg.instrumentID)
	if !ok {
		return
	}
	r.deliverLocked(reg, e, e.Key())
	r.metrics.incReplayed()
}

func (r *Router) deliverLocked(reg *registration, e model.Event, key string) {
	if reg.lastKey == key {
		return
	}
	reg.lastKey = key
	reg.listener.OnEvent(e)
}

func (r *Router) remove(reg *registration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if reg.instrumentID != "" {
		if regs := without(r.byID[reg.instrumentID], reg); len(regs) > 0 {
			r.byID[reg.instrumentID] = regs
		} else {
			delete(r.byID, reg.instrumentID)
		}
	}
	if reg.anchor != "" {
		if regs := without(r.byAnchor[reg.anchor], reg); len(regs) > 0 {
			r.byAnchor[reg.anchor] = regs
		} else {
			delete(r.byAnchor, reg.anchor)
			delete(r.anchorIDs, reg.anchor)
		}
	}
	r.metrics.addRegistrations(-1)
}

func without(regs []*registration, target *registration) []*registration {
	out := regs[:0:0]
	for _, reg := range regs {
		if reg != target {
			out = append(out, reg)
		}
	}
	return out
}
