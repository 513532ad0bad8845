package httpserver

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/tinytelemetry/lotus-live/internal/eventwire"
	"github.com/tinytelemetry/lotus-live/internal/lifecycle"
	"github.com/tinytelemetry/lotus-live/internal/model"
)

const maxEventBody = 4 << 20

// Sessions is the read side of the session the API reports on.
type Sessions interface {
	List() []lifecycle.Status
	Status(anchor string) (lifecycle.Status, error)
}

// EventSink accepts pushed events. It reports false for duplicates.
type EventSink interface {
	Dispatch(e model.Event) bool
}

// Config wires the API server.
type Config struct {
	Addr     string
	Sessions Sessions
	Events   EventSink          // optional; POST /api/events is 503 without it
	Gatherer prometheus.Gatherer // optional; /metrics is not mounted without it
	Logger   logrus.FieldLogger
	Now      func() time.Time
}

// Server provides the daemon's HTTP API.
type Server struct {
	cfg       Config
	log       logrus.FieldLogger
	server    *http.Server
	listener  net.Listener
	ctx       context.Context
	cancel    context.CancelFunc
	startTime time.Time
}

// NewServer creates a new HTTP API server.
func NewServer(cfg Config) *Server {
	if cfg.Addr == "" {
		cfg.Addr = "127.0.0.1:3000"
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.StandardLogger()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		cfg:       cfg,
		log:       cfg.Logger.WithField("component", "httpserver"),
		ctx:       ctx,
		cancel:    cancel,
		startTime: cfg.Now(),
	}
}

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/api/health", s.handleHealth)
	r.GET("/api/instruments", s.handleInstruments)
	r.GET("/api/instruments/:anchor", s.handleInstrument)
	r.POST("/api/events", s.handleEvents)
	if s.cfg.Gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.cfg.Gatherer, promhttp.HandlerOpts{})))
	}
	return r
}

// Start begins serving HTTP requests.
func (s *Server) Start() error {
	gin.SetMode(gin.ReleaseMode)

	s.server = &http.Server{
		Handler:           s.routes(),
		BaseContext:       func(_ net.Listener) context.Context { return s.ctx },
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
	}

	listener, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return err
	}

	s.listener = listener
	s.startTime = s.cfg.Now()
	s.log.WithField("addr", listener.Addr().String()).Info("listening")

	go s.server.Serve(listener)
	return nil
}

// Addr returns the active listen address.
// Before Start, it returns the configured address.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.cfg.Addr
}

// Stop gracefully shuts down the HTTP server.
func (s *Server) Stop() error {
	s.cancel()
	if s.server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":      "ok",
		"uptime":      s.cfg.Now().Sub(s.startTime).Truncate(time.Second).String(),
		"instruments": len(s.cfg.Sessions.List()),
	})
}

func (s *Server) handleInstruments(c *gin.Context) {
	list := s.cfg.Sessions.List()
	c.JSON(http.StatusOK, gin.H{
		"instruments": list,
		"count":       len(list),
	})
}

func (s *Server) handleInstrument(c *gin.Context) {
	st, err := s.cfg.Sessions.Status(c.Param("anchor"))
	if errors.Is(err, model.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown anchor"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, st)
}

// handleEvents accepts one event per line (NDJSON). Valid lines are
// dispatched even when others in the same body are rejected.
func (s *Server) handleEvents(c *gin.Context) {
	if s.cfg.Events == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "event push is disabled"})
		return
	}

	scanner := bufio.NewScanner(http.MaxBytesReader(c.Writer, c.Request.Body, maxEventBody))
	scanner.Buffer(make([]byte, 0, 64*1024), maxEventBody)

	var accepted, duplicates int
	rejected := []gin.H{}
	line := 0
	for scanner.Scan() {
		line++
		raw := bytes.TrimSpace(scanner.Bytes())
		if len(raw) == 0 {
			continue
		}
		e, err := eventwire.Decode(raw, s.cfg.Now())
		if err != nil {
			rejected = append(rejected, gin.H{"line": line, "error": err.Error()})
			continue
		}
		if s.cfg.Events.Dispatch(e) {
			accepted++
		} else {
			duplicates++
		}
	}
	if err := scanner.Err(); err != nil {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": err.Error()})
		return
	}
	if accepted+duplicates+len(rejected) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "empty body"})
		return
	}

	status := http.StatusAccepted
	if accepted+duplicates == 0 {
		status = http.StatusBadRequest
	}
	if len(rejected) > 0 {
		s.log.WithField("rejected", len(rejected)).Debug("rejected pushed events")
	}
	c.JSON(status, gin.H{
		"accepted":   accepted,
		"duplicates": duplicates,
		"rejected":   rejected,
	})
}
