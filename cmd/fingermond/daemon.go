package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"fingermon/internal/config"
	"fingermon/internal/event"
	"fingermon/internal/health"
	"fingermon/internal/ipc"
	"fingermon/internal/listener"
	"fingermon/internal/logging"
	"fingermon/internal/metrics"
	"fingermon/internal/persist"
	"fingermon/internal/power"
	"fingermon/internal/stats"
	"fingermon/internal/store"
)

// snapshotInterval is how many applied events pass between snapshot
// pushes to socket subscribers.
const snapshotInterval = 25

type daemon struct {
	cfg    *config.Config
	loader *config.Loader
	logger *logging.Logger

	agg     *stats.Aggregator
	lst     listener.Listener
	db      *store.Store
	runner  *persist.Runner
	server  *ipc.Server
	checker *health.Checker
	dm      *metrics.DaemonMetrics

	startedAt time.Time
	shutdown  chan struct{}
	noInput   bool
}

func newDaemon(configPath string) (*daemon, error) {
	loader := config.NewLoader(configPath)
	cfg, err := loader.Load()
	if err != nil {
		return nil, fmt.Errorf("load configuration: %w", err)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, err
	}

	logger, err := buildLogger(cfg)
	if err != nil {
		return nil, fmt.Errorf("initialize logging: %w", err)
	}
	logging.SetDefault(logger)

	return &daemon{
		cfg:       cfg,
		loader:    loader,
		logger:    logger,
		checker:   health.NewChecker(),
		dm:        metrics.NewDaemonMetrics(nil),
		startedAt: time.Now(),
		shutdown:  make(chan struct{}),
	}, nil
}

func buildLogger(cfg *config.Config) (*logging.Logger, error) {
	level, err := logging.ParseLevel(cfg.Logging.Level)
	if err != nil {
		return nil, err
	}
	format, err := logging.ParseFormat(cfg.Logging.Format)
	if err != nil {
		return nil, err
	}
	return logging.New(&logging.Config{
		Level:      level,
		Format:     format,
		Output:     cfg.Logging.Output,
		FilePath:   cfg.Logging.FilePath,
		MaxSize:    int64(cfg.Logging.MaxSizeMB),
		MaxBackups: cfg.Logging.MaxBackups,
		Component:  "fingermond",
	})
}

func (d *daemon) run() error {
	defer d.logger.Close()

	logging.Info("starting", "version", version, "pid", os.Getpid())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Resume from the last checkpoint if one exists.
	prior := persist.LoadOrInit(d.cfg.Storage.StatePath)
	var priorSnap *stats.Snapshot
	if prior != nil {
		priorSnap = &prior.Stats
		logging.Info("resumed from checkpoint",
			"saved_at", prior.SavedAt,
			"total_keystrokes", prior.Stats.TotalKeystrokes)
	}

	d.agg = stats.New(stats.Config{
		WPMWindow:    time.Duration(d.cfg.Stats.WPMWindowSec) * time.Second,
		CharsPerWord: d.cfg.Stats.CharsPerWord,
	}, priorSnap)

	// Listener emits into sink; the pump counts events before the
	// aggregator consumes them.
	sink := make(chan event.Event, d.cfg.Listener.ChannelCapacity)
	counted := make(chan event.Event, d.cfg.Listener.ChannelCapacity)
	go d.pump(ctx, sink, counted)

	aggDone := make(chan struct{})
	go func() {
		d.agg.Run(ctx, counted)
		close(aggDone)
	}()

	d.lst = listener.New(sink, listener.Options{
		DevicePattern: d.cfg.Listener.DevicePattern,
		IgnoreDevices: d.cfg.Listener.IgnoreDevices,
	})
	if d.noInput {
		logging.Info("input capture disabled, serving existing statistics only")
	} else if err := d.lst.Start(ctx); err != nil {
		if d.cfg.Listener.Required {
			return fmt.Errorf("start input capture: %w", err)
		}
		logging.Warn("input capture unavailable, running degraded", "error", err)
	} else {
		logging.Info("input capture started", "devices", d.lst.Devices())
	}

	db, err := store.Open(d.cfg.Storage.HistoryDBPath)
	if err != nil {
		return fmt.Errorf("open history database: %w", err)
	}
	d.db = db
	defer db.Close()

	interval := time.Duration(d.cfg.Storage.CheckpointIntervalSec) * time.Second
	d.runner = persist.NewRunner(d.cfg.Storage.StatePath, interval,
		&checkpointSource{agg: d.agg, db: db}, d.dm)
	go d.runner.Run(ctx)

	d.registerHealthChecks(interval)

	if d.cfg.IPC.Enabled {
		if err := d.startIPC(); err != nil {
			return err
		}
		defer d.server.Stop()
	}

	if d.cfg.Metrics.Enabled {
		d.startMetricsHTTP(ctx)
	}

	d.startPowerMonitor(ctx)
	d.watchConfig()
	go d.telemetryLoop(ctx)

	d.checker.SetReady(true)
	logging.Info("ready")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logging.Info("received signal, shutting down", "signal", sig.String())
	case <-d.shutdown:
		logging.Info("shutdown requested over control socket")
	}

	// Stop the event source first so the aggregator can drain what is
	// already buffered, then flush one final checkpoint.
	d.lst.Stop()
	cancel()
	select {
	case <-aggDone:
	case <-time.After(5 * time.Second):
		logging.Warn("aggregator drain timed out")
	}
	if err := d.runner.Checkpoint(); err != nil {
		logging.Error("final checkpoint failed", "error", err)
	}
	d.loader.Close()

	logging.Info("stopped",
		"uptime", time.Since(d.startedAt).Round(time.Second).String(),
		"events_dropped", d.lst.Dropped())
	return nil
}

// pump forwards events from the listener sink to the aggregator while
// counting them per kind.
func (d *daemon) pump(ctx context.Context, in <-chan event.Event, out chan<- event.Event) {
	defer close(out)
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-in:
			d.dm.EventsIngestedTotal.Inc()
			switch ev.Kind {
			case event.KindKeyPress:
				d.dm.KeystrokesTotal.Inc()
			case event.KindMouseClick:
				d.dm.MouseClicksTotal.Inc()
			case event.KindScrollTick:
				d.dm.ScrollTicksTotal.Inc()
			}
			select {
			case out <- ev:
			case <-ctx.Done():
				return
			}
		}
	}
}

// checkpointSource snapshots the aggregator and mirrors the daily
// totals into the history database on every checkpoint.
type checkpointSource struct {
	agg *stats.Aggregator
	db  *store.Store
}

func (s *checkpointSource) Snapshot() stats.Snapshot {
	snap := s.agg.Snapshot()
	if err := s.db.UpsertDays(snap.Daily); err != nil {
		logging.Warn("history database update failed", "error", err)
	}
	return snap
}

func (d *daemon) registerHealthChecks(checkpointInterval time.Duration) {
	d.checker.RegisterFunc("listener", d.cfg.Listener.Required && !d.noInput,
		health.ListenerCheck(d.lst.Devices, d.lst.Dropped))
	d.checker.RegisterFunc("history_db", false,
		health.DatabaseCheck(d.db.Ping))
	d.checker.RegisterFunc("checkpoint", false,
		health.CheckpointCheck(d.lastCheckpoint, 3*checkpointInterval))
}

func (d *daemon) lastCheckpoint() time.Time {
	ts := d.dm.LastCheckpointTs.Value()
	if ts == 0 {
		return time.Time{}
	}
	return time.Unix(ts, 0)
}

func (d *daemon) startIPC() error {
	d.server = ipc.NewServer(ipc.ServerConfig{
		SocketPath:     d.cfg.IPC.SocketPath,
		Version:        version,
		MaxConnections: d.cfg.IPC.MaxConnections,
		ReadTimeout:    time.Duration(d.cfg.IPC.TimeoutSec) * time.Second,
	}, ipc.HandlerFunc(d.handleMessage))
	if err := d.server.Start(); err != nil {
		return fmt.Errorf("start control socket: %w", err)
	}

	// Push snapshots to subscribers as events accumulate.
	sub := d.agg.Subscribe(snapshotInterval)
	go func() {
		for snap := range sub {
			d.server.Publish(snap)
		}
	}()
	return nil
}

func (d *daemon) handleMessage(ctx context.Context, conn *ipc.Conn, msg *ipc.Message) (*ipc.Message, error) {
	switch msg.Header.Type {
	case ipc.MsgStatusRequest:
		healthy, detail := d.checker.Summary(ctx)
		return ipc.NewResponse(ipc.MsgStatusResponse, msg.Header.RequestID, &ipc.StatusResponse{
			Version:        version,
			StartedAt:      d.startedAt,
			Uptime:         time.Since(d.startedAt).Round(time.Second).String(),
			ListenerActive: d.lst.Devices() > 0,
			EventsDropped:  d.lst.Dropped(),
			StatePath:      d.cfg.Storage.StatePath,
			LastCheckpoint: d.lastCheckpoint(),
			Healthy:        healthy,
			HealthDetail:   detail,
		})

	case ipc.MsgStatsRequest:
		return ipc.NewResponse(ipc.MsgStatsResponse, msg.Header.RequestID, &ipc.StatsResponse{
			Snapshot: d.agg.Snapshot(),
		})

	case ipc.MsgHistoryRequest:
		var req ipc.HistoryRequest
		if len(msg.Payload) > 0 {
			if err := ipc.Decode(msg.Payload, &req); err != nil {
				return ipc.NewErrorMessage(msg.Header.RequestID, ipc.ErrInvalidRequest, "bad history request"), nil
			}
		}
		n := req.Days
		if n <= 0 {
			n = 365
		}
		days, err := d.db.RecentDays(n)
		if err != nil {
			return ipc.NewErrorMessage(msg.Header.RequestID, ipc.ErrUnavailable, err.Error()), nil
		}
		totals, err := d.db.Totals()
		if err != nil {
			return ipc.NewErrorMessage(msg.Header.RequestID, ipc.ErrUnavailable, err.Error()), nil
		}
		return ipc.NewResponse(ipc.MsgHistoryResponse, msg.Header.RequestID, &ipc.HistoryResponse{
			Days:   days,
			Totals: totals,
		})

	case ipc.MsgShutdown:
		// Acknowledge before tearing the socket down.
		go func() {
			time.Sleep(100 * time.Millisecond)
			select {
			case <-d.shutdown:
			default:
				close(d.shutdown)
			}
		}()
		return ipc.NewMessage(ipc.MsgShutdownAck, msg.Header.RequestID, nil), nil

	default:
		return ipc.NewErrorMessage(msg.Header.RequestID, ipc.ErrInvalidRequest,
			fmt.Sprintf("unsupported message type 0x%04x", msg.Header.Type)), nil
	}
}

func (d *daemon) startMetricsHTTP(ctx context.Context) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Default().HTTPHandler())
	mux.Handle("/healthz", d.checker.Handler())

	srv := &http.Server{
		Addr:              d.cfg.Metrics.ListenAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logging.Info("metrics listening", "addr", d.cfg.Metrics.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.Error("metrics server failed", "error", err)
		}
	}()
	go func() {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		srv.Shutdown(shutCtx)
	}()
}

func (d *daemon) startPowerMonitor(ctx context.Context) {
	if !d.cfg.Power.SleepCheckpoint {
		return
	}
	mon, err := power.NewMonitor(func() {
		if err := d.runner.Checkpoint(); err != nil {
			logging.Error("sleep checkpoint failed", "error", err)
		}
	})
	if err != nil {
		logging.Warn("sleep monitoring unavailable", "error", err)
		return
	}
	go func() {
		defer mon.Close()
		if err := mon.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logging.Warn("sleep monitor stopped", "error", err)
		}
	}()
}

// watchConfig applies hot-reloadable settings. Structural settings
// such as paths and socket addresses need a restart.
func (d *daemon) watchConfig() {
	d.loader.OnChange(func(cfg *config.Config) {
		if cfg.Logging != d.cfg.Logging {
			logger, err := buildLogger(cfg)
			if err != nil {
				logging.Warn("new logging configuration rejected", "error", err)
			} else {
				old := d.logger
				d.logger = logger
				logging.SetDefault(logger)
				old.Close()
				logging.Info("logging configuration reloaded", "level", cfg.Logging.Level)
			}
		}
		if cfg.Storage != d.cfg.Storage || cfg.IPC != d.cfg.IPC ||
			cfg.Listener.ChannelCapacity != d.cfg.Listener.ChannelCapacity {
			logging.Warn("storage, socket and channel settings need a restart to apply")
		}
		d.cfg = cfg
	})
	if err := d.loader.Watch(); err != nil {
		logging.Warn("configuration watch unavailable", "error", err)
		return
	}
	go func() {
		for err := range d.loader.Errors() {
			logging.Warn("configuration reload failed", "error", err)
		}
	}()
}

// telemetryLoop refreshes gauges that mirror live daemon state.
func (d *daemon) telemetryLoop(ctx context.Context) {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	var lastDropped uint64
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.dm.UpdateUptime()
			d.dm.InputDevices.Set(int64(d.lst.Devices()))
			if d.server != nil {
				d.dm.SubscriberCount.Set(int64(d.server.ConnCount()))
			}
			dropped := d.lst.Dropped()
			if dropped > lastDropped {
				d.dm.EventsDroppedTotal.Add(dropped - lastDropped)
				lastDropped = dropped
			}
		}
	}
}
