// Package journal keeps a durable record of instrument events so that the
// latest event per instrument, and any event not yet dispatched, survive a
// daemon restart.
package journal

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/tinytelemetry/lotus-live/internal/eventwire"
	"github.com/tinytelemetry/lotus-live/internal/model"
)

const (
	defaultFileMode = 0o644
	defaultDirMode  = 0o755

	// DefaultRetention matches the longest expiration an instrument can have.
	DefaultRetention = 24 * time.Hour
)

type entry struct {
	Seq   uint64          `json:"seq"`
	At    time.Time       `json:"at"`
	Event json.RawMessage `json:"event"`
}

// Options tune compaction.
type Options struct {
	// Retention bounds how long the latest committed event of an instrument
	// is kept for replay.
	Retention time.Duration
	Now       func() time.Time
}

// Journal is an append-only file of events, one JSON entry per line, with
// commit progress tracked in a sidecar file.
type Journal struct {
	mu         sync.Mutex
	path       string
	commitPath string
	file       *os.File
	nextSeq    uint64
	committed  uint64
	now        func() time.Time
}

// Open creates or opens a journal at path. On startup it compacts the file
// down to uncommitted entries plus the latest committed entry of each
// instrument within the retention window, and ignores a partially written
// trailing line.
func Open(path string, opts ...Options) (*Journal, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("journal: path is empty")
	}
	var o Options
	if len(opts) > 0 {
		o = opts[0]
	}
	if o.Retention <= 0 {
		o.Retention = DefaultRetention
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	if err := os.MkdirAll(filepath.Dir(path), defaultDirMode); err != nil {
		return nil, fmt.Errorf("journal: mkdir: %w", err)
	}

	commitPath := path + ".commit"
	committed, err := readCommitted(commitPath)
	if err != nil {
		return nil, err
	}

	maxSeq, err := compact(path, committed, o.Now().Add(-o.Retention))
	if err != nil {
		return nil, err
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_RDWR, defaultFileMode)
	if err != nil {
		return nil, fmt.Errorf("journal: open: %w", err)
	}

	next := maxSeq + 1
	if committed+1 > next {
		next = committed + 1
	}

	return &Journal{
		path:       path,
		commitPath: commitPath,
		file:       f,
		nextSeq:    next,
		committed:  committed,
		now:        o.Now,
	}, nil
}

// Append persists one event and returns its sequence number.
func (j *Journal) Append(e model.Event) (uint64, error) {
	if e == nil {
		return 0, errors.New("journal: nil event")
	}
	raw, err := eventwire.Encode(e)
	if err != nil {
		return 0, fmt.Errorf("journal: encode event: %w", err)
	}

	j.mu.Lock()
	defer j.mu.Unlock()
	if j.file == nil {
		return 0, errors.New("journal: closed")
	}

	seq := j.nextSeq
	j.nextSeq++

	line, err := json.Marshal(entry{Seq: seq, At: j.now().UTC(), Event: raw})
	if err != nil {
		return 0, fmt.Errorf("journal: marshal entry: %w", err)
	}
	line = append(line, '\n')

	if _, err := j.file.Write(line); err != nil {
		return 0, fmt.Errorf("journal: write entry: %w", err)
	}
	if err := j.file.Sync(); err != nil {
		return 0, fmt.Errorf("journal: sync entry: %w", err)
	}
	return seq, nil
}

// Commit marks all entries up to seq as dispatched.
func (j *Journal) Commit(seq uint64) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if seq <= j.committed {
		return nil
	}
	j.committed = seq
	return writeCommitted(j.commitPath, seq)
}

// Committed returns the highest committed sequence number.
func (j *Journal) Committed() uint64 {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.committed
}

// Replay calls fn for each entry in sequence order. committed reports
// whether the event was already dispatched before the restart.
func (j *Journal) Replay(fn func(seq uint64, e model.Event, committed bool) error) error {
	if fn == nil {
		return errors.New("journal: replay callback is nil")
	}

	j.mu.Lock()
	path := j.path
	committed := j.committed
	j.mu.Unlock()

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("journal: open for replay: %w", err)
	}
	defer f.Close()

	return scan(f, func(e entry, _ []byte) error {
		ev, err := eventwire.Decode(e.Event, e.At)
		if err != nil {
			// Entries were validated on the way in; skip rather than abort.
			return nil
		}
		return fn(e.Seq, ev, e.Seq <= committed)
	})
}

// Path returns the journal file path.
func (j *Journal) Path() string { return j.path }

// SnapshotTo copies the complete entries written so far to dstPath.
// Appends are held off while the copy runs.
func (j *Journal) SnapshotTo(dstPath string) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	src, err := os.Open(j.path)
	if err != nil {
		return fmt.Errorf("journal: open for snapshot: %w", err)
	}
	defer src.Close()

	if err := os.MkdirAll(filepath.Dir(dstPath), defaultDirMode); err != nil {
		return fmt.Errorf("journal: snapshot mkdir: %w", err)
	}
	tmp := dstPath + ".tmp"
	dst, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, defaultFileMode)
	if err != nil {
		return fmt.Errorf("journal: create snapshot: %w", err)
	}
	w := bufio.NewWriter(dst)
	werr := scan(src, func(_ entry, line []byte) error {
		_, err := w.Write(line)
		return err
	})
	if werr == nil {
		werr = w.Flush()
	}
	if werr == nil {
		werr = dst.Sync()
	}
	if cerr := dst.Close(); werr == nil {
		werr = cerr
	}
	if werr != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("journal: write snapshot: %w", werr)
	}
	if err := os.Rename(tmp, dstPath); err != nil {
		return fmt.Errorf("journal: rename snapshot: %w", err)
	}
	return nil
}

// Close closes the underlying journal file.
func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.file == nil {
		return nil
	}
	err := j.file.Close()
	j.file = nil
	return err
}

// scan walks complete entries and stops quietly at the first partial or
// malformed line.
func scan(r io.Reader, fn func(e entry, line []byte) error) error {
	reader := bufio.NewReader(r)
	for {
		line, err := reader.ReadBytes('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return fmt.Errorf("journal: read: %w", err)
		}
		if len(line) == 0 || line[len(line)-1] != '\n' {
			return nil
		}

		var e entry
		if uerr := json.Unmarshal(line, &e); uerr != nil {
			return nil
		}
		if ferr := fn(e, line); ferr != nil {
			return ferr
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
	}
}

func readCommitted(path string) (uint64, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, nil
		}
		return 0, fmt.Errorf("journal: read commit file: %w", err)
	}
	s := strings.TrimSpace(string(data))
	if s == "" {
		return 0, nil
	}
	seq, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("journal: parse commit seq: %w", err)
	}
	return seq, nil
}

// writeCommitted replaces the sidecar atomically via a synced temp file.
func writeCommitted(path string, seq uint64) error {
	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, defaultFileMode)
	if err != nil {
		return fmt.Errorf("journal: open commit tmp: %w", err)
	}
	_, werr := f.WriteString(strconv.FormatUint(seq, 10) + "\n")
	if werr == nil {
		werr = f.Sync()
	}
	if cerr := f.Close(); werr == nil {
		werr = cerr
	}
	if werr != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("journal: write commit tmp: %w", werr)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("journal: rename commit file: %w", err)
	}
	return nil
}

// instrumentOf peeks at the instrument id of an encoded event.
func instrumentOf(raw json.RawMessage) string {
	var head struct {
		InstrumentID string `json:"instrumentId"`
	}
	_ = json.Unmarshal(raw, &head)
	return head.InstrumentID
}

func compact(path string, committed uint64, cutoff time.Time) (uint64, error) {
	src, err := os.OpenFile(path, os.O_CREATE|os.O_RDONLY, defaultFileMode)
	if err != nil {
		return 0, fmt.Errorf("journal: open source for compact: %w", err)
	}
	defer src.Close()

	// First pass: which committed entry is the latest for each instrument.
	latest := make(map[string]uint64)
	var maxSeq uint64
	if err := scan(src, func(e entry, _ []byte) error {
		if e.Seq > maxSeq {
			maxSeq = e.Seq
		}
		if e.Seq <= committed {
			latest[instrumentOf(e.Event)] = e.Seq
		}
		return nil
	}); err != nil {
		return 0, err
	}
	if _, err := src.Seek(0, io.SeekStart); err != nil {
		return 0, fmt.Errorf("journal: compact seek: %w", err)
	}

	tmpPath := path + ".compact"
	dst, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_TRUNC|os.O_RDWR, defaultFileMode)
	if err != nil {
		return 0, fmt.Errorf("journal: open compact tmp: %w", err)
	}
	fail := func(err error) (uint64, error) {
		_ = dst.Close()
		_ = os.Remove(tmpPath)
		return 0, err
	}

	err = scan(src, func(e entry, line []byte) error {
		keep := e.Seq > committed ||
			(latest[instrumentOf(e.Event)] == e.Seq && !e.At.Before(cutoff))
		if !keep {
			return nil
		}
		if _, werr := dst.Write(line); werr != nil {
			return fmt.Errorf("journal: compact write: %w", werr)
		}
		return nil
	})
	if err != nil {
		return fail(err)
	}

	if err := dst.Sync(); err != nil {
		return fail(fmt.Errorf("journal: compact sync: %w", err))
	}
	if err := dst.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return 0, fmt.Errorf("journal: compact close: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return 0, fmt.Errorf("journal: compact rename: %w", err)
	}
	return maxSeq, nil
}
