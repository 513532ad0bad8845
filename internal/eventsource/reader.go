package eventsource

import (
	"bufio"
	"context"
	"errors"
	"io"
	"os"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/tinytelemetry/lotus-live/internal/model"
)

const (
	// DefaultReaderBuffer is the default channel buffer size for reader lines.
	DefaultReaderBuffer = 1_000

	// DefaultReaderMaxLineSize is the default maximum size (in bytes) of a single line.
	DefaultReaderMaxLineSize = 1024 * 1024 // 1MB
)

// ReaderConfig holds tunable parameters for reader-backed sources.
type ReaderConfig struct {
	BufferSize  int
	MaxLineSize int
	Logger      logrus.FieldLogger
}

// ReaderSource reads event lines from an io.Reader: stdin, or a file of
// recorded events. The channel closes at EOF or on Stop.
type ReaderSource struct {
	name     string
	ch       chan model.EventLine
	cancel   context.CancelFunc
	closer   io.Closer
	stopOnce sync.Once
}

// NewStdinSource reads events piped into the daemon.
func NewStdinSource(ctx context.Context, conf ...ReaderConfig) *ReaderSource {
	return newReaderSource(ctx, "stdin", os.Stdin, nil, conf...)
}

// NewFileSource reads the recorded events in path once.
func NewFileSource(ctx context.Context, path string, conf ...ReaderConfig) (*ReaderSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	return newReaderSource(ctx, "file", f, f, conf...), nil
}

func newStdinSourceWithReader(ctx context.Context, r io.Reader) *ReaderSource {
	return newReaderSource(ctx, "stdin", r, nil)
}

func newReaderSource(ctx context.Context, name string, r io.Reader, closer io.Closer, conf ...ReaderConfig) *ReaderSource {
	bufferSize := DefaultReaderBuffer
	maxLineSize := DefaultReaderMaxLineSize
	var logger logrus.FieldLogger = logrus.StandardLogger()
	if len(conf) > 0 {
		if conf[0].BufferSize > 0 {
			bufferSize = conf[0].BufferSize
		}
		if conf[0].MaxLineSize > 0 {
			maxLineSize = conf[0].MaxLineSize
		}
		if conf[0].Logger != nil {
			logger = conf[0].Logger
		}
	}
	ctx, cancel := context.WithCancel(ctx)
	s := &ReaderSource{
		name:   name,
		ch:     make(chan model.EventLine, bufferSize),
		cancel: cancel,
		closer: closer,
	}
	go s.read(ctx, r, maxLineSize, logger.WithFields(logrus.Fields{"component": "eventsource", "source": name}))
	return s
}

func (s *ReaderSource) read(ctx context.Context, r io.Reader, maxLineSize int, log logrus.FieldLogger) {
	defer close(s.ch)

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	// A single scanning goroutine feeds results so cancellation is noticed
	// while a read is blocked.
	results := make(chan string)
	go func() {
		defer close(results)
		for scanner.Scan() {
			line := scanner.Text()
			if line == "" {
				continue
			}
			select {
			case results <- line:
			case <-ctx.Done():
				return
			}
		}
		if err := scanner.Err(); err != nil {
			if errors.Is(err, bufio.ErrTooLong) {
				log.WithField("max_line_size", maxLineSize).Warn("line exceeded max size, stopping source")
				return
			}
			log.WithError(err).Warn("scanner error")
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-results:
			if !ok {
				return
			}
			select {
			case s.ch <- model.EventLine{Source: s.name, Line: line}:
			case <-ctx.Done():
				return
			}
		}
	}
}

func (s *ReaderSource) Lines() <-chan model.EventLine { return s.ch }
func (s *ReaderSource) Name() string                  { return s.name }

// Stop is idempotent.
func (s *ReaderSource) Stop() {
	s.stopOnce.Do(func() {
		s.cancel()
		if s.closer != nil {
			s.closer.Close()
		}
	})
}
