package main

import (
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/tinytelemetry/lotus-live/internal/journal"
	"github.com/tinytelemetry/lotus-live/internal/model"
	"github.com/tinytelemetry/lotus-live/internal/router"
)

// eventPipeline is the single path every inbound event takes: journal
// append, router dispatch, journal commit. It serves the input mux and
// the HTTP push endpoint alike.
type eventPipeline struct {
	mu      sync.Mutex
	router  *router.Router
	journal *journal.Journal // nil when the journal is disabled
	log     logrus.FieldLogger
}

func newEventPipeline(r *router.Router, j *journal.Journal, logger logrus.FieldLogger) *eventPipeline {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &eventPipeline{
		router:  r,
		journal: j,
		log:     logger.WithField("component", "ingest"),
	}
}

// Consume dispatches every event from the mux until its channel closes.
func (p *eventPipeline) Consume(events <-chan sourcedEvent) {
	for se := range events {
		if !p.Dispatch(se.Event) {
			p.log.WithFields(logrus.Fields{
				"source":        se.Source,
				"instrument_id": se.Event.InstrumentID(),
			}).Debug("duplicate event from input")
		}
	}
}

// Dispatch journals and routes e. It reports false for duplicates.
func (p *eventPipeline) Dispatch(e model.Event) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	var seq uint64
	if p.journal != nil {
		var err error
		seq, err = p.journal.Append(e)
		if err != nil {
			p.log.WithField("instrument_id", e.InstrumentID()).WithError(err).Error("journal append failed")
		}
	}

	delivered := p.router.Dispatch(e)

	if seq > 0 {
		if err := p.journal.Commit(seq); err != nil {
			p.log.WithError(err).Error("journal commit failed")
		}
	}
	return delivered
}

// replayJournal warms the router from the journal. Committed entries only
// refresh the latest-event cache; uncommitted ones were never dispatched
// and are dispatched now.
func replayJournal(j *journal.Journal, r *router.Router, logger logrus.FieldLogger) error {
	if j == nil {
		return nil
	}
	primed, replayed := 0, 0
	var maxSeq uint64
	err := j.Replay(func(seq uint64, e model.Event, committed bool) error {
		if committed {
			r.Prime(e)
			primed++
			return nil
		}
		r.Dispatch(e)
		replayed++
		if seq > maxSeq {
			maxSeq = seq
		}
		return nil
	})
	if err != nil {
		return err
	}
	if maxSeq > 0 {
		if err := j.Commit(maxSeq); err != nil {
			return err
		}
	}
	if primed > 0 || replayed > 0 {
		logger.WithFields(logrus.Fields{
			"component": "journal",
			"primed":    primed,
			"replayed":  replayed,
		}).Info("event journal replayed")
	}
	return nil
}
