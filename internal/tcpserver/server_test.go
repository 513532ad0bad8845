package tcpserver

import (
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/tinytelemetry/lotus-live/internal/logging"
)

func TestNewServer_DefaultLocalhostAddress(t *testing.T) {
	t.Parallel()

	s := NewServer("")
	if got := s.Addr(); got != "127.0.0.1:4100" {
		t.Fatalf("Addr() = %q, want %q", got, "127.0.0.1:4100")
	}
}

func TestNewServer_UsesConfiguredAddressAndBuffers(t *testing.T) {
	t.Parallel()

	s := NewServer("0.0.0.0:5000", ServerConfig{
		LineChannelSize: 64,
		MaxLineSize:     2048,
	})

	if got := s.Addr(); got != "0.0.0.0:5000" {
		t.Fatalf("Addr() = %q, want %q", got, "0.0.0.0:5000")
	}
	if got := cap(s.lineChan); got != 64 {
		t.Fatalf("line channel cap = %d, want %d", got, 64)
	}
	if got := s.maxLineSize; got != 2048 {
		t.Fatalf("max line size = %d, want %d", got, 2048)
	}
}

func TestServer_ReceivesLines(t *testing.T) {
	t.Parallel()

	s := NewServer("127.0.0.1:0", ServerConfig{Logger: logging.Discard()})
	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer s.Stop()

	conn, err := net.Dial("tcp", s.Addr())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	fmt.Fprint(conn, "{\"type\":\"HIT\",\"instrumentId\":\"a\"}\n\n{\"type\":\"HIT\",\"instrumentId\":\"b\"}\n")
	conn.Close()

	for _, want := range []string{`{"type":"HIT","instrumentId":"a"}`, `{"type":"HIT","instrumentId":"b"}`} {
		select {
		case got := <-s.Lines():
			if got.Line != want || got.Source != "tcp" {
				t.Fatalf("line = %+v, want %q", got, want)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for %q", want)
		}
	}
}

func TestServer_StopClosesLines(t *testing.T) {
	t.Parallel()

	s := NewServer("127.0.0.1:0", ServerConfig{Logger: logging.Discard()})
	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	conn, err := net.Dial("tcp", s.Addr())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	s.Stop()
	s.Stop()
	if _, ok := <-s.Lines(); ok {
		t.Fatal("expected closed channel after Stop")
	}
}
