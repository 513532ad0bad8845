package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/tinytelemetry/lotus-live/internal/backup"
	"github.com/tinytelemetry/lotus-live/internal/condition"
	"github.com/tinytelemetry/lotus-live/internal/httpserver"
	"github.com/tinytelemetry/lotus-live/internal/instrumentsvc"
	"github.com/tinytelemetry/lotus-live/internal/journal"
	"github.com/tinytelemetry/lotus-live/internal/logging"
	"github.com/tinytelemetry/lotus-live/internal/model"
	"github.com/tinytelemetry/lotus-live/internal/router"
	"github.com/tinytelemetry/lotus-live/internal/session"
	"github.com/tinytelemetry/lotus-live/internal/socketrpc"
)

// runServer starts the session daemon with its socket API, HTTP API and
// event inputs.
func runServer(cfg appConfig) error {
	logger, closeLog, err := logging.New(logging.Config{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
		Output: cfg.LogOutput,
		File:   cfg.LogFile,
	})
	if err != nil {
		return err
	}
	defer closeLog()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	service, err := newInstrumentService(cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize instrument service: %w", err)
	}

	eventRouter := router.New(router.Config{
		DedupSize:  cfg.DedupCacheSize,
		ReplaySize: cfg.ReplayCacheSize,
		Metrics:    router.NewMetrics(reg),
		Logger:     logger,
	})

	// Open the event journal and warm the router before anything registers.
	var eventJournal *journal.Journal
	if cfg.JournalEnabled {
		eventJournal, err = journal.Open(cfg.JournalPath, journal.Options{Retention: cfg.JournalRetention})
		if err != nil {
			return fmt.Errorf("failed to open event journal: %w", err)
		}
		defer eventJournal.Close()
		if err := replayJournal(eventJournal, eventRouter, logger); err != nil {
			return fmt.Errorf("failed to replay event journal: %w", err)
		}
	}

	// Start periodic journal snapshots when enabled.
	if cfg.BackupEnabled {
		backupManager, err := backup.NewManager(eventJournal, backup.Config{
			Enabled:        true,
			Interval:       cfg.BackupInterval,
			LocalDir:       cfg.BackupLocalDir,
			KeepLast:       cfg.BackupKeepLast,
			BucketURL:      cfg.BackupBucketURL,
			S3Endpoint:     cfg.BackupS3Endpoint,
			S3Region:       cfg.BackupS3Region,
			S3AccessKey:    cfg.BackupS3AccessKey,
			S3SecretKey:    cfg.BackupS3SecretKey,
			S3SessionToken: cfg.BackupS3SessionToken,
			S3UseSSL:       cfg.BackupS3UseSSL,
			Logger:         logger,
		})
		if err != nil {
			return fmt.Errorf("failed to initialize backups: %w", err)
		}
		defer backupManager.Stop()
	}

	manager, err := session.New(session.Config{
		Service:       service,
		Parser:        &condition.Parser{Strict: cfg.StrictConditions},
		Router:        eventRouter,
		Registerer:    reg,
		Logger:        logger,
		SubmitTimeout: cfg.SubmitTimeout,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize session: %w", err)
	}
	defer manager.Close()

	pipeline := newEventPipeline(eventRouter, eventJournal, logger)

	// Start HTTP API server if enabled
	if cfg.APIEnabled {
		apiServer := httpserver.NewServer(httpserver.Config{
			Addr:     cfg.APIAddr,
			Sessions: manager,
			Events:   pipeline,
			Gatherer: reg,
			Logger:   logger,
		})
		if err := apiServer.Start(); err != nil {
			return fmt.Errorf("failed to start API server: %w", err)
		}
		defer apiServer.Stop()
	}

	// Start socket RPC server for the editor plugin
	sockServer := socketrpc.NewServer(cfg.SocketPath, manager, logger)
	if err := sockServer.Start(); err != nil {
		return fmt.Errorf("failed to start socket server: %w", err)
	}
	defer sockServer.Stop()

	// Set up context and signal handling before errgroup
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigCh
		fmt.Println("\nShutting down gracefully... (press Ctrl+C again to force)")
		cancel()

		// Shutdown deadline starts now, not at boot.
		deadline := time.NewTimer(10 * time.Second)
		defer deadline.Stop()

		select {
		case <-sigCh:
			fmt.Println("\nForce shutdown.")
		case <-deadline.C:
			fmt.Println("Shutdown timed out, forcing exit.")
		}
		cleanupSocket(cfg.SocketPath)
		os.Exit(1)
	}()

	// Build input plugins and source multiplexer
	plugins := buildInputPlugins(InputPluginConfig{
		TCPEnabled: cfg.TCPEnabled,
		TCPAddr:    cfg.TCPAddr,
		ReplayFile: cfg.ReplayFile,
		Logger:     logger,
	})

	sources := make([]NamedEventSource, 0, len(plugins))
	for _, plugin := range plugins {
		if !plugin.Enabled() {
			continue
		}
		src, err := plugin.Build(ctx)
		if err != nil {
			logger.WithField("plugin", plugin.Name()).WithError(err).Error("input plugin failed to initialize")
			continue
		}
		sources = append(sources, src)
	}

	mux := newEventMux(ctx, sources, cfg.MuxBufferSize, logger)
	mux.Start()

	printStartupBanner(cfg, mux.SourceNames())

	// Use errgroup for concurrent goroutine lifecycle management.
	g, gctx := errgroup.WithContext(ctx)

	// Ingestion loop
	if mux.HasSources() {
		g.Go(func() error {
			pipeline.Consume(mux.Events())
			return nil
		})
	}

	// The daemon outlives its inputs: a replayed file or closed stdin does
	// not stop the socket API.
	g.Go(func() error {
		<-gctx.Done()
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.WithError(err).Error("server: errgroup exited with error")
	}

	cancel()
	mux.Stop()
	for _, c := range mux.Counts() {
		logger.WithFields(logrus.Fields{
			"component": "mux",
			"source":    c.Name,
			"events":    c.Events,
			"rejected":  c.Rejected,
		}).Info("input closed")
	}

	// If we reach here, graceful shutdown succeeded within the deadline.
	// The signal goroutine (if active) dies with the process.
	signal.Stop(sigCh)

	return nil
}

func newInstrumentService(cfg appConfig, logger logrus.FieldLogger) (model.InstrumentService, error) {
	if cfg.TestMode {
		logger.WithField("component", "instrumentsvc").Warn("test mode: instruments are kept in memory")
		return instrumentsvc.NewMemory(), nil
	}
	return instrumentsvc.NewClient(instrumentsvc.ClientConfig{
		BaseURL:    cfg.ServiceURL,
		APIKey:     cfg.ServiceAPIKey,
		APIVersion: cfg.ServiceAPIVersion,
		Timeout:    cfg.ServiceTimeout,
		Logger:     logger,
	})
}

func cleanupSocket(path string) {
	if path != "" {
		os.Remove(path)
	}
}

func printStartupBanner(cfg appConfig, sources []string) {
	dim := lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	green := lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	cyan := lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
	yellow := lipgloss.NewStyle().Foreground(lipgloss.Color("220"))
	bold := lipgloss.NewStyle().Bold(true)

	check := green.Render("●")
	dot := dim.Render("●")

	logo := cyan.Bold(true).Render(`
    ╦  ╔═╗╔╦╗╦ ╦╔═╗  ╦  ╦╦  ╦╔═╗
    ║  ║ ║ ║ ║ ║╚═╗  ║  ║╚╗╔╝║╣
    ╩═╝╚═╝ ╩ ╚═╝╚═╝  ╩═╝╩ ╚╝ ╚═╝`)

	ver := dim.Render("v" + version)

	var lines []string
	lines = append(lines, "")
	lines = append(lines, logo)
	lines = append(lines, "    "+ver)
	lines = append(lines, "")

	separator := dim.Render("    ─────────────────────────────────")
	lines = append(lines, separator)
	lines = append(lines, "")

	// Gateway
	lines = append(lines, bold.Render("    Gateway"))
	lines = append(lines, "")

	if cfg.APIEnabled {
		lines = append(lines, fmt.Sprintf("    %s  HTTP API       %s", check, cyan.Render(cfg.APIAddr)))
	} else {
		lines = append(lines, fmt.Sprintf("    %s  HTTP API       %s", dot, dim.Render("disabled")))
	}

	if cfg.TCPEnabled {
		lines = append(lines, fmt.Sprintf("    %s  TCP Events     %s", check, cyan.Render(cfg.TCPAddr)))
	} else {
		lines = append(lines, fmt.Sprintf("    %s  TCP Events     %s", dot, dim.Render("disabled")))
	}

	lines = append(lines, fmt.Sprintf("    %s  Unix Socket    %s", check, cyan.Render(shortenPath(cfg.SocketPath))))
	if len(sources) > 0 {
		lines = append(lines, fmt.Sprintf("    %s  Inputs         %s", check, dim.Render(strings.Join(sources, ", "))))
	} else {
		lines = append(lines, fmt.Sprintf("    %s  Inputs         %s", dot, dim.Render("HTTP push only")))
	}
	lines = append(lines, "")

	// Service
	lines = append(lines, bold.Render("    Service"))
	lines = append(lines, "")

	if cfg.TestMode {
		lines = append(lines, fmt.Sprintf("    %s  Instruments    %s", dot, yellow.Render("in-memory (test mode)")))
	} else {
		lines = append(lines, fmt.Sprintf("    %s  Instruments    %s", check, cyan.Render(cfg.ServiceURL)))
	}
	if cfg.StrictConditions {
		lines = append(lines, fmt.Sprintf("    %s  Conditions     %s", check, dim.Render("strict scope")))
	} else {
		lines = append(lines, fmt.Sprintf("    %s  Conditions     %s", check, dim.Render("syntax only")))
	}
	lines = append(lines, "")

	// Journal
	lines = append(lines, bold.Render("    Journal"))
	lines = append(lines, "")

	if cfg.JournalEnabled {
		lines = append(lines, fmt.Sprintf("    %s  Events         %s", check, dim.Render(shortenPath(cfg.JournalPath))))
		lines = append(lines, fmt.Sprintf("    %s  Retention      %s", check, dim.Render(cfg.JournalRetention.String())))
	} else {
		lines = append(lines, fmt.Sprintf("    %s  Events         %s", dot, dim.Render("disabled")))
	}
	if cfg.BackupEnabled {
		lines = append(lines, fmt.Sprintf("    %s  Snapshots      %s", check, dim.Render(shortenPath(cfg.BackupLocalDir))))
	} else {
		lines = append(lines, fmt.Sprintf("    %s  Snapshots      %s", dot, dim.Render("disabled")))
	}

	lines = append(lines, "")
	lines = append(lines, bold.Render("    Config"))
	lines = append(lines, "")
	if cfg.ConfigPath != "" {
		lines = append(lines, fmt.Sprintf("    %s  Config File    %s", check, dim.Render(shortenPath(cfg.ConfigPath))))
	} else {
		lines = append(lines, fmt.Sprintf("    %s  Config File    %s", dot, dim.Render("default (no file)")))
	}

	lines = append(lines, "")
	lines = append(lines, separator)
	lines = append(lines, "")
	lines = append(lines, "    "+dim.Render("Press ")+yellow.Render("Ctrl+C")+dim.Render(" to stop"))
	lines = append(lines, "")

	fmt.Println(strings.Join(lines, "\n"))
}

func shortenPath(path string) string {
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	if strings.HasPrefix(path, home) {
		return "~" + path[len(home):]
	}
	return path
}
