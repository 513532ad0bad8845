package socketrpc

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/tinytelemetry/lotus-live/internal/lifecycle"
	"github.com/tinytelemetry/lotus-live/internal/logtemplate"
	"github.com/tinytelemetry/lotus-live/internal/model"
	"github.com/tinytelemetry/lotus-live/internal/policy"
)

const (
	// scannerInitBufSize is the initial buffer size for the per-connection scanner (64 KB).
	scannerInitBufSize = 64 * 1024
	// scannerMaxTokenSize is the maximum token size the scanner will accept (4 MB).
	scannerMaxTokenSize = 4 * 1024 * 1024
)

// Server exposes a SessionAPI over a Unix domain socket using JSON-RPC 2.0.
type Server struct {
	socketPath string
	api        SessionAPI
	log        logrus.FieldLogger
	listener   net.Listener
	wg         sync.WaitGroup
	quit       chan struct{}
}

// NewServer creates a new socket RPC server.
func NewServer(socketPath string, api SessionAPI, logger logrus.FieldLogger) *Server {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Server{
		socketPath: socketPath,
		api:        api,
		log:        logger.WithField("component", "socketrpc"),
		quit:       make(chan struct{}),
	}
}

// Start begins listening on the Unix socket and accepting connections.
func (s *Server) Start() error {
	if err := os.MkdirAll(filepath.Dir(s.socketPath), 0o755); err != nil {
		return fmt.Errorf("socketrpc: mkdir: %w", err)
	}

	// Remove stale socket if it exists.
	if _, err := os.Stat(s.socketPath); err == nil {
		conn, dialErr := net.DialTimeout("unix", s.socketPath, 500*time.Millisecond)
		if dialErr != nil {
			os.Remove(s.socketPath)
		} else {
			conn.Close()
			return fmt.Errorf("socketrpc: another server is already listening on %s", s.socketPath)
		}
	}

	ln, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("socketrpc: listen: %w", err)
	}
	s.listener = ln

	s.wg.Add(1)
	go s.acceptLoop()

	s.log.WithField("socket", s.socketPath).Info("listening")
	return nil
}

// Stop closes the listener, waits for connections to drain, and removes the socket file.
func (s *Server) Stop() {
	close(s.quit)
	if s.listener != nil {
		s.listener.Close()
	}
	s.wg.Wait()
	os.Remove(s.socketPath)
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.quit:
				return
			default:
				s.log.WithError(err).Warn("accept error")
				continue
			}
		}
		s.wg.Add(1)
		go s.handleConn(conn)
	}
}

func (s *Server) handleConn(conn net.Conn) {
	defer s.wg.Done()
	defer conn.Close()

	// Unblock the scanner on shutdown.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-s.quit:
			conn.Close()
		case <-done:
		}
	}()

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, scannerInitBufSize), scannerMaxTokenSize)
	encoder := json.NewEncoder(conn)

	for scanner.Scan() {
		var req Request
		if err := json.Unmarshal(scanner.Bytes(), &req); err != nil {
			encoder.Encode(Response{JSONRPC: "2.0", Error: &RPCError{Code: codeParse, Message: "parse error"}})
			continue
		}

		resp := s.dispatch(req)
		if err := encoder.Encode(resp); err != nil {
			return
		}
	}
}

type anchorParams struct {
	Anchor string
}

func (s *Server) dispatch(req Request) Response {
	resp := Response{JSONRPC: "2.0", ID: req.ID}

	marshalResult := func(v any, err error) Response {
		if err != nil {
			resp.Error = s.appError(err, v)
			return resp
		}
		data, merr := json.Marshal(v)
		if merr != nil {
			resp.Error = &RPCError{Code: codeInternal, Message: merr.Error()}
			return resp
		}
		resp.Result = data
		return resp
	}

	invalidParams := func(err error) Response {
		resp.Error = &RPCError{Code: codeInvalidParams, Message: fmt.Sprintf("invalid params: %v", err)}
		return resp
	}

	needAnchor := func() (string, *Response) {
		var p anchorParams
		if err := json.Unmarshal(req.Params, &p); err != nil {
			r := invalidParams(err)
			return "", &r
		}
		if p.Anchor == "" {
			r := invalidParams(errors.New("anchor is required"))
			return "", &r
		}
		return p.Anchor, nil
	}

	switch req.Method {
	case "CreateInstrument":
		var p struct{ Draft model.Draft }
		if err := json.Unmarshal(req.Params, &p); err != nil {
			return invalidParams(err)
		}
		return marshalResult(s.api.Create(p.Draft))

	case "SaveInstrument":
		var p struct {
			Anchor string
			Draft  model.Draft
		}
		if err := json.Unmarshal(req.Params, &p); err != nil {
			return invalidParams(err)
		}
		return marshalResult(s.api.Save(p.Anchor, p.Draft))

	case "Status":
		anchor, bad := needAnchor()
		if bad != nil {
			return *bad
		}
		return marshalResult(s.api.Status(anchor))

	case "ListInstruments":
		return marshalResult(s.api.List(), nil)

	case "DisposeInstrument":
		anchor, bad := needAnchor()
		if bad != nil {
			return *bad
		}
		err := s.api.Dispose(anchor)
		return marshalResult(err == nil, err)

	case "ExpirationChoices":
		return marshalResult(policy.ExpirationChoices(), nil)

	case "NormalizeTemplate":
		var p struct {
			Template  string
			Variables []string
		}
		if err := json.Unmarshal(req.Params, &p); err != nil {
			return invalidParams(err)
		}
		if err := logtemplate.Check(p.Template); err != nil {
			resp.Error = s.appError(&model.ValidationError{Field: "template", Message: "literal placeholder", Err: err}, nil)
			return resp
		}
		return marshalResult(logtemplate.ForScope(p.Variables).Normalize(p.Template), nil)

	default:
		resp.Error = &RPCError{Code: codeMethodNotFound, Message: fmt.Sprintf("method not found: %s", req.Method)}
		return resp
	}
}

// appError maps session errors onto RPC error codes. For validation
// failures the partial result (a Status) travels as error data.
func (s *Server) appError(err error, partial any) *RPCError {
	var verr *model.ValidationError
	switch {
	case errors.As(err, &verr):
		e := &RPCError{Code: codeValidation, Message: err.Error()}
		if st, ok := partial.(lifecycle.Status); ok && st.Anchor != "" {
			e.Data, _ = json.Marshal(st)
		}
		return e
	case errors.Is(err, model.ErrNotFound):
		return &RPCError{Code: codeNotFound, Message: err.Error()}
	}
	return &RPCError{Code: codeApplication, Message: err.Error()}
}
