package main

import (
	"context"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/tinytelemetry/lotus-live/internal/eventsource"
	"github.com/tinytelemetry/lotus-live/internal/tcpserver"
)

// NamedEventSource aliases the shared source abstraction to keep app-layer APIs explicit.
type NamedEventSource = eventsource.EventSource

// InputSourcePlugin is a small plugin primitive for wiring event inputs.
type InputSourcePlugin interface {
	Name() string
	Enabled() bool
	Build(ctx context.Context) (NamedEventSource, error)
}

// InputPluginConfig defines runtime input selection.
type InputPluginConfig struct {
	TCPEnabled bool
	TCPAddr    string
	ReplayFile string
	Logger     logrus.FieldLogger
}

func buildInputPlugins(cfg InputPluginConfig) []InputSourcePlugin {
	if cfg.Logger == nil {
		cfg.Logger = logrus.StandardLogger()
	}
	plugins := make([]InputSourcePlugin, 0, 3)
	plugins = append(plugins, tcpInputPlugin{
		addr:    cfg.TCPAddr,
		enabled: cfg.TCPEnabled,
		log:     cfg.Logger,
	})
	plugins = append(plugins, fileInputPlugin{
		path: cfg.ReplayFile,
		log:  cfg.Logger,
	})
	plugins = append(plugins, stdinInputPlugin{log: cfg.Logger})
	return plugins
}

type tcpInputPlugin struct {
	addr    string
	enabled bool
	log     logrus.FieldLogger
}

func (p tcpInputPlugin) Name() string { return "tcp" }

func (p tcpInputPlugin) Enabled() bool { return p.enabled }

func (p tcpInputPlugin) Build(_ context.Context) (NamedEventSource, error) {
	server := tcpserver.NewServer(p.addr, tcpserver.ServerConfig{Logger: p.log})
	if err := server.Start(); err != nil {
		return nil, fmt.Errorf("start tcp server: %w", err)
	}
	return eventsource.NewTCPSource(server), nil
}

// fileInputPlugin replays a recorded NDJSON event file once at start-up.
type fileInputPlugin struct {
	path string
	log  logrus.FieldLogger
}

func (p fileInputPlugin) Name() string { return "file" }

func (p fileInputPlugin) Enabled() bool { return p.path != "" }

func (p fileInputPlugin) Build(ctx context.Context) (NamedEventSource, error) {
	src, err := eventsource.NewFileSource(ctx, p.path, eventsource.ReaderConfig{Logger: p.log})
	if err != nil {
		return nil, err
	}
	return src, nil
}

type stdinInputPlugin struct {
	log logrus.FieldLogger
}

func (p stdinInputPlugin) Name() string { return "stdin" }

func (p stdinInputPlugin) Enabled() bool {
	stat, err := os.Stdin.Stat()
	if err != nil {
		return false
	}
	return (stat.Mode() & os.ModeCharDevice) == 0
}

func (p stdinInputPlugin) Build(ctx context.Context) (NamedEventSource, error) {
	return eventsource.NewStdinSource(ctx, eventsource.ReaderConfig{Logger: p.log}), nil
}
