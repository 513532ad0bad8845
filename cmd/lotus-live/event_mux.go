package main

import (
	"cmp"
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/tinytelemetry/lotus-live/internal/eventwire"
	"github.com/tinytelemetry/lotus-live/internal/model"
)

// DefaultMuxBuffer is the default number of decoded events queued between
// the inputs and the pipeline.
const DefaultMuxBuffer = 10_000

// sourcedEvent is a decoded event tagged with the input it arrived on.
type sourcedEvent struct {
	Source string
	Event  model.Event
}

// sourceCounts reports what one input produced so far.
type sourceCounts struct {
	Name     string
	Events   uint64
	Rejected uint64
}

type sourceStats struct {
	events   atomic.Uint64
	rejected atomic.Uint64
}

// eventMux decodes the NDJSON lines of every input and merges the events
// into one stream. Undecodable lines are counted against their input and
// dropped at the boundary, so the pipeline only ever sees events.
type eventMux struct {
	ctx    context.Context
	cancel context.CancelFunc
	log    logrus.FieldLogger
	now    func() time.Time

	sources []NamedEventSource
	stats   []*sourceStats
	events  chan sourcedEvent

	started  atomic.Bool
	stopOnce sync.Once
	done     chan struct{}
}

func newEventMux(parent context.Context, sources []NamedEventSource, buffer int, logger logrus.FieldLogger) *eventMux {
	if buffer <= 0 {
		buffer = DefaultMuxBuffer
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	ctx, cancel := context.WithCancel(parent)
	stats := make([]*sourceStats, len(sources))
	for i := range stats {
		stats[i] = &sourceStats{}
	}
	return &eventMux{
		ctx:     ctx,
		cancel:  cancel,
		log:     logger.WithField("component", "mux"),
		now:     time.Now,
		sources: sources,
		stats:   stats,
		events:  make(chan sourcedEvent, buffer),
		done:    make(chan struct{}),
	}
}

// Start begins reading every source. The event channel closes once all
// sources are drained or the mux is stopped.
func (m *eventMux) Start() {
	if !m.started.CompareAndSwap(false, true) {
		return
	}
	if len(m.sources) == 0 {
		m.finish()
		return
	}

	var g errgroup.Group
	for i, src := range m.sources {
		g.Go(func() error {
			m.pump(src, m.stats[i])
			return nil
		})
	}
	go func() {
		_ = g.Wait()
		m.finish()
	}()
}

// Stop cancels reading, stops every source and waits for the pumps to exit.
func (m *eventMux) Stop() {
	m.stopOnce.Do(func() {
		m.cancel()
		for _, src := range m.sources {
			src.Stop()
		}
		if m.started.CompareAndSwap(false, true) {
			m.finish()
		}
		<-m.done
	})
}

func (m *eventMux) Events() <-chan sourcedEvent { return m.events }

func (m *eventMux) HasSources() bool { return len(m.sources) > 0 }

// SourceNames lists the merged inputs in order.
func (m *eventMux) SourceNames() []string {
	names := make([]string, 0, len(m.sources))
	for _, src := range m.sources {
		names = append(names, src.Name())
	}
	return names
}

// Counts returns per-input totals in source order.
func (m *eventMux) Counts() []sourceCounts {
	out := make([]sourceCounts, len(m.sources))
	for i, src := range m.sources {
		out[i] = sourceCounts{
			Name:     src.Name(),
			Events:   m.stats[i].events.Load(),
			Rejected: m.stats[i].rejected.Load(),
		}
	}
	return out
}

// DecodeErrors returns how many lines were dropped as undecodable.
func (m *eventMux) DecodeErrors() uint64 {
	var n uint64
	for _, st := range m.stats {
		n += st.rejected.Load()
	}
	return n
}

func (m *eventMux) pump(src NamedEventSource, st *sourceStats) {
	lines := src.Lines()
	for {
		select {
		case <-m.ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			if strings.TrimSpace(line.Line) == "" {
				continue
			}
			source := cmp.Or(line.Source, src.Name())
			e, err := eventwire.Decode([]byte(line.Line), m.now())
			if err != nil {
				st.rejected.Add(1)
				m.log.WithField("source", source).WithError(err).Warn("dropping undecodable event")
				continue
			}
			st.events.Add(1)
			select {
			case m.events <- sourcedEvent{Source: source, Event: e}:
			case <-m.ctx.Done():
				return
			}
		}
	}
}

func (m *eventMux) finish() {
	close(m.events)
	close(m.done)
}
