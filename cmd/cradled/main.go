// Package main implements the entry point for the Cradle daemon.
// cradled runs the whole monitor pipeline in one process: device chunks
// arrive over WebSocket and MQTT, ride the NATS bus, pass the per-device
// rate gate into ML inference, and come back out as cached results,
// stored alerts and realtime broadcasts.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/YuvDwi/Cradle/alert"
	"github.com/YuvDwi/Cradle/config"
	"github.com/YuvDwi/Cradle/health"
	"github.com/YuvDwi/Cradle/inference"
	"github.com/YuvDwi/Cradle/ingest"
	"github.com/YuvDwi/Cradle/kvstore"
	"github.com/YuvDwi/Cradle/metric"
	"github.com/YuvDwi/Cradle/natsclient"
	"github.com/YuvDwi/Cradle/pkg/retry"
	"github.com/YuvDwi/Cradle/ratelimit"
	"github.com/YuvDwi/Cradle/realtime"
	"github.com/YuvDwi/Cradle/resultcache"
	"github.com/YuvDwi/Cradle/store"
	"github.com/YuvDwi/Cradle/telemetry"
)

// Build information constants
const (
	Version   = "0.1.0"
	BuildTime = "dev"
	appName   = "cradled"
)

// Values for the cradle_service_status gauge.
const (
	serviceStopped  = 0
	serviceRunning  = 2
	serviceStopping = 3
)

// healthProbeInterval paces the component health probes.
const healthProbeInterval = 30 * time.Second

func main() {
	// Add panic recovery
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := run(); err != nil {
		slog.Error("Daemon failed", "error", err, "exit_code", 1)
		os.Exit(1)
	}
}

func run() error {
	// A .env file supplies CRADLE_* variables in development; real
	// deployments set the environment directly.
	_ = godotenv.Load()

	cliCfg, shouldExit, err := initializeCLI()
	if shouldExit || err != nil {
		return err
	}

	cfg, logger, err := initializeConfiguration(cliCfg)
	if err != nil {
		return err
	}

	if cliCfg.Validate {
		slog.Info("Configuration is valid")
		return nil
	}

	ctx := context.Background()
	p, err := buildPipeline(ctx, cfg, logger)
	if err != nil {
		return err
	}

	return runWithSignalHandling(ctx, p, cliCfg.ShutdownTimeout)
}

// initializeCLI parses flags and installs a provisional logger so
// startup messages have structure before the config is loaded.
func initializeCLI() (*CLIConfig, bool, error) {
	cliCfg := parseFlags()
	if err := validateFlags(cliCfg); err != nil {
		return nil, false, fmt.Errorf("invalid flags: %w", err)
	}

	if cliCfg.ShowVersion {
		fmt.Printf("%s version %s\n", appName, Version)
		return nil, true, nil
	}

	if cliCfg.ShowHelp {
		printDetailedHelp()
		return nil, true, nil
	}

	slog.SetDefault(setupLogger(cliCfg.LogLevel, cliCfg.LogFormat))

	slog.Info("Starting Cradle daemon",
		"version", Version,
		"build_time", BuildTime,
		"config_path", cliCfg.ConfigPath)

	return cliCfg, false, nil
}

// initializeConfiguration loads and validates configuration, then
// rebuilds the logger from the merged log section. Flags beat the file.
func initializeConfiguration(cliCfg *CLIConfig) (*config.Config, *slog.Logger, error) {
	loader := config.NewLoader()
	if cliCfg.ConfigPath != "" {
		loader.AddLayer(cliCfg.ConfigPath)
	}

	cfg, err := loader.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}

	if cliCfg.LogLevel != "" {
		cfg.Log.Level = cliCfg.LogLevel
	}
	if cliCfg.LogFormat != "" {
		cfg.Log.Format = cliCfg.LogFormat
	}

	if err := cfg.Validate(); err != nil {
		return nil, nil, fmt.Errorf("invalid configuration: %w", err)
	}

	logger := setupLogger(cfg.Log.Level, cfg.Log.Format)
	slog.SetDefault(logger)

	return cfg, logger, nil
}

// pipeline holds every component the daemon runs. Optional components
// (metrics server, telemetry sink, MQTT bridge) are nil when disabled.
type pipeline struct {
	cfg    *config.Config
	logger *slog.Logger

	registry     *metric.Registry
	metricServer *metric.Server

	natsClient *natsclient.Client
	kv         kvstore.Store
	durable    store.Store

	sink        *telemetry.Sink
	coordinator *inference.Coordinator
	rtServer    *realtime.Server
	bridge      *ingest.Bridge

	monitor *health.Monitor
}

// buildPipeline wires the full chunk path: bus and stores first, then
// the gate, cache and engine the coordinator drives, then the edges
// (realtime server, MQTT bridge) that feed the bus.
func buildPipeline(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*pipeline, error) {
	registry := metric.NewRegistry()
	core := registry.CoreMetrics()

	natsClient, err := connectBus(ctx, cfg, logger, registry)
	if err != nil {
		return nil, err
	}

	kv, err := openKVStore(ctx, cfg, natsClient)
	if err != nil {
		return nil, err
	}

	durable, err := openStore(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	recorder, sink, err := buildTelemetry(cfg, logger)
	if err != nil {
		return nil, err
	}

	engine, err := buildEngine(cfg, logger)
	if err != nil {
		return nil, err
	}

	gate := ratelimit.NewLimiter(kv, ratelimit.Config{
		Audio: ratelimit.Limit{Requests: int64(cfg.RateLimit.AudioPerWindow), Window: cfg.RateLimit.Window},
		Video: ratelimit.Limit{Requests: int64(cfg.RateLimit.VideoPerWindow), Window: cfg.RateLimit.Window},
	}, ratelimit.WithLogger(logger), ratelimit.WithMetrics(core))

	cache := resultcache.NewCache(kv,
		resultcache.WithLogger(logger),
		resultcache.WithMetrics(core),
		resultcache.WithResultTTL(cfg.Cache.ResultTTL),
		resultcache.WithPresenceTTL(cfg.Cache.PresenceTTL))

	rtRegistry := realtime.NewRegistry(realtime.RegistryConfig{
		Presence:  cache,
		Metrics:   core,
		Logger:    logger,
		WriteWait: cfg.Realtime.WriteWait,
	})

	dispatcher := alert.NewDispatcher(alert.Deps{
		Store:     durable,
		Broadcast: rtRegistry,
		Notifier:  buildNotifier(cfg, logger),
		Recorder:  recorder,
	},
		alert.WithLogger(logger),
		alert.WithMetrics(core),
		alert.WithNotifyRetry(notifyRetryConfig(cfg)))

	coordinator, err := inference.NewCoordinator(inference.Deps{
		Bus:      natsClient,
		Engine:   engine,
		Gate:     gate,
		Cache:    cache,
		Sink:     dispatcher,
		Recorder: recorder,
	},
		inference.WithLogger(logger),
		inference.WithMetrics(core),
		inference.WithTopics(cfg.Topics.Audio, cfg.Topics.Video, cfg.Topics.Alerts),
		inference.WithWorkers(cfg.Inference.Workers),
		inference.WithQueueSize(cfg.Inference.QueueSize),
		inference.WithEngineTimeout(cfg.Inference.RequestTimeout))
	if err != nil {
		return nil, fmt.Errorf("create inference coordinator: %w", err)
	}

	rtServer, err := realtime.NewServer(realtime.ServerConfig{
		Port:            cfg.Realtime.Port,
		AudioTopic:      cfg.Topics.Audio,
		VideoTopic:      cfg.Topics.Video,
		ReadBufferSize:  cfg.Realtime.ReadBufferSize,
		WriteBufferSize: cfg.Realtime.WriteBufferSize,
		MaxMessageBytes: cfg.Realtime.MaxMessageBytes,
		PingInterval:    cfg.Realtime.PingInterval,
		PongWait:        cfg.Realtime.PongWait,
		WriteWait:       cfg.Realtime.WriteWait,
		InboundBuffer:   cfg.Realtime.InboundBuffer,
		Metrics:         core,
		Logger:          logger,
	}, natsClient, rtRegistry)
	if err != nil {
		return nil, fmt.Errorf("create realtime server: %w", err)
	}

	var bridge *ingest.Bridge
	if cfg.MQTT.Enabled {
		bridge, err = ingest.NewBridge(ingest.BridgeConfig{
			BrokerURL:   cfg.MQTT.BrokerURL,
			ClientID:    cfg.MQTT.ClientID,
			Username:    cfg.MQTT.Username,
			Password:    cfg.MQTT.Password,
			QoS:         cfg.MQTT.QoS,
			TopicPrefix: cfg.MQTT.TopicPrefix,
			AudioTopic:  cfg.Topics.Audio,
			VideoTopic:  cfg.Topics.Video,
			Metrics:     core,
			Logger:      logger,
		}, natsClient)
		if err != nil {
			return nil, fmt.Errorf("create MQTT bridge: %w", err)
		}
	}

	var metricServer *metric.Server
	if cfg.Metrics.Enabled {
		metricServer = metric.NewServer(cfg.Metrics.Port, cfg.Metrics.Path, registry)
	}

	return &pipeline{
		cfg:          cfg,
		logger:       logger,
		registry:     registry,
		metricServer: metricServer,
		natsClient:   natsClient,
		kv:           kv,
		durable:      durable,
		sink:         sink,
		coordinator:  coordinator,
		rtServer:     rtServer,
		bridge:       bridge,
		monitor:      health.NewMonitor(),
	}, nil
}

// connectBus creates the NATS client and waits for the first
// connection so startup fails fast when the bus is down.
func connectBus(ctx context.Context, cfg *config.Config, logger *slog.Logger, registry *metric.Registry) (*natsclient.Client, error) {
	opts := []natsclient.ClientOption{
		natsclient.WithName(cfg.Instance.ID),
		natsclient.WithLogger(logger),
		natsclient.WithMetrics(registry),
		natsclient.WithMaxReconnects(cfg.NATS.MaxReconnects),
	}
	if cfg.NATS.ReconnectWait > 0 {
		opts = append(opts, natsclient.WithReconnectWait(cfg.NATS.ReconnectWait))
	}
	if cfg.NATS.Username != "" {
		opts = append(opts, natsclient.WithCredentials(cfg.NATS.Username, cfg.NATS.Password))
	}
	if cfg.NATS.Token != "" {
		opts = append(opts, natsclient.WithToken(cfg.NATS.Token))
	}

	client, err := natsclient.NewClient(strings.Join(cfg.NATS.URLs, ","), opts...)
	if err != nil {
		return nil, fmt.Errorf("create NATS client: %w", err)
	}

	slog.Info("Connecting to NATS", "urls", cfg.NATS.URLs)
	if err := client.Connect(ctx); err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	connCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := client.WaitForConnection(connCtx); err != nil {
		return nil, fmt.Errorf("NATS connection timeout: %w", err)
	}

	return client, nil
}

// openKVStore selects the counter/TTL backend behind the rate limiter,
// result cache and device presence.
func openKVStore(ctx context.Context, cfg *config.Config, client *natsclient.Client) (kvstore.Store, error) {
	switch cfg.KVStore.Backend {
	case config.KVBackendRedis:
		kv := kvstore.NewRedisStore(kvstore.RedisConfig{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			PoolSize: cfg.Redis.PoolSize,
		})
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := kv.Ping(pingCtx); err != nil {
			return nil, fmt.Errorf("redis unreachable: %w", err)
		}
		slog.Info("Using Redis kvstore", "addr", cfg.Redis.Addr)
		return kv, nil

	case config.KVBackendNATS:
		kv, err := kvstore.NewNATSStore(ctx, client, cfg.NATS.KVBucket.Name)
		if err != nil {
			return nil, fmt.Errorf("create NATS KV store: %w", err)
		}
		slog.Info("Using NATS JetStream kvstore", "bucket", cfg.NATS.KVBucket.Name)
		return kv, nil

	default:
		slog.Info("Using in-memory kvstore")
		return kvstore.NewMemoryStore(ctx), nil
	}
}

// openStore opens the durable session/alert/device store and runs the
// idempotent schema migration.
func openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (store.Store, error) {
	if !cfg.Postgres.Enabled {
		logger.Info("Postgres disabled, using in-memory store")
		return store.NewMemoryStore(), nil
	}

	db, err := store.Open(cfg.Postgres.DSN())
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if cfg.Postgres.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.Postgres.MaxOpenConns)
	}
	if cfg.Postgres.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.Postgres.MaxIdleConns)
	}
	if cfg.Postgres.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.Postgres.ConnMaxLifetime)
	}

	pg := store.NewPostgresStore(db)

	migrateCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := pg.Migrate(migrateCtx); err != nil {
		return nil, fmt.Errorf("migrate postgres schema: %w", err)
	}

	logger.Info("Connected to Postgres",
		"host", cfg.Postgres.Host,
		"database", cfg.Postgres.Database)
	return pg, nil
}

// buildTelemetry returns the recorder the pipeline stamps rows into
// and the sink that needs a lifecycle, nil when ClickHouse is off.
func buildTelemetry(cfg *config.Config, logger *slog.Logger) (telemetry.Recorder, *telemetry.Sink, error) {
	if !cfg.ClickHouse.Enabled {
		return telemetry.Nop{}, nil, nil
	}

	sink, err := telemetry.NewSink(telemetry.Config{
		Addr:     cfg.ClickHouse.Addrs[0],
		Database: cfg.ClickHouse.Database,
		Username: cfg.ClickHouse.Username,
		Password: cfg.ClickHouse.Password,
	},
		telemetry.WithLogger(logger),
		telemetry.WithQueueSize(cfg.ClickHouse.QueueSize),
		telemetry.WithMaxBatch(cfg.ClickHouse.BatchSize),
		telemetry.WithFlushInterval(cfg.ClickHouse.FlushInterval))
	if err != nil {
		return nil, nil, fmt.Errorf("connect clickhouse: %w", err)
	}

	logger.Info("Telemetry sink connected", "addr", cfg.ClickHouse.Addrs[0])
	return sink, sink, nil
}

// buildEngine selects the inference engine.
func buildEngine(cfg *config.Config, logger *slog.Logger) (inference.Engine, error) {
	if cfg.Inference.Mode == config.EngineModeHTTP {
		engine, err := inference.NewHTTPEngine(inference.HTTPConfig{
			BaseURL: cfg.Inference.URL,
			Timeout: cfg.Inference.RequestTimeout,
			Logger:  logger,
		})
		if err != nil {
			return nil, fmt.Errorf("create HTTP engine: %w", err)
		}
		logger.Info("Using HTTP inference engine", "url", cfg.Inference.URL)
		return engine, nil
	}

	logger.Info("Using local heuristic inference engine")
	return inference.NewHeuristicEngine(), nil
}

// buildNotifier returns the push leg. Delivery through a real provider
// is an external collaborator; the log notifier keeps alert content
// visible until one is wired in.
func buildNotifier(cfg *config.Config, logger *slog.Logger) alert.Notifier {
	if !cfg.Push.Enabled {
		return nil
	}
	return alert.LogNotifier{Logger: logger}
}

func notifyRetryConfig(cfg *config.Config) retry.Config {
	rc := retry.DefaultConfig()
	if cfg.Push.MaxAttempts > 0 {
		rc.MaxAttempts = cfg.Push.MaxAttempts
	}
	if cfg.Push.Backoff > 0 {
		rc.InitialDelay = cfg.Push.Backoff
	}
	return rc
}

// runWithSignalHandling starts the pipeline and blocks until a signal
// arrives or a supervised component fails, then shuts down in order.
func runWithSignalHandling(ctx context.Context, p *pipeline, shutdownTimeout time.Duration) error {
	signalCtx, signalCancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer signalCancel()

	g, gctx := errgroup.WithContext(signalCtx)

	if p.metricServer != nil {
		g.Go(func() error {
			// Start blocks until Stop closes the listener.
			if err := p.metricServer.Start(); err != nil {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
		slog.Info("Metrics server listening", "address", p.metricServer.Address())
	}

	if p.sink != nil {
		p.sink.Start(gctx)
	}

	if err := p.coordinator.Start(gctx); err != nil {
		return fmt.Errorf("start inference coordinator: %w", err)
	}
	if err := p.rtServer.Start(gctx); err != nil {
		return fmt.Errorf("start realtime server: %w", err)
	}
	if p.bridge != nil {
		if err := p.bridge.Start(gctx); err != nil {
			return fmt.Errorf("start MQTT bridge: %w", err)
		}
	}

	g.Go(func() error {
		runHealthLoop(gctx, p)
		return nil
	})

	core := p.registry.CoreMetrics()
	core.RecordServiceStatus(appName, serviceRunning)
	slog.Info("Cradle daemon started",
		"instance", p.cfg.Instance.ID,
		"realtime_port", p.cfg.Realtime.Port,
		"kvstore", p.cfg.KVStore.Backend,
		"engine", p.cfg.Inference.Mode)

	<-gctx.Done()
	slog.Info("Received shutdown signal")
	core.RecordServiceStatus(appName, serviceStopping)

	shutdownErr := shutdown(p, shutdownTimeout)

	// Shutdown stopped the metrics server and cancelled the health
	// loop, so the group drains here.
	if err := g.Wait(); err != nil {
		return err
	}
	if shutdownErr != nil {
		return fmt.Errorf("graceful shutdown failed: %w", shutdownErr)
	}

	core.RecordServiceStatus(appName, serviceStopped)
	slog.Info("Cradle daemon shutdown complete")
	return nil
}

// runHealthLoop probes the backing services until ctx is done. Health
// transitions are logged; steady state stays quiet.
func runHealthLoop(ctx context.Context, p *pipeline) {
	core := p.registry.CoreMetrics()
	ticker := time.NewTicker(healthProbeInterval)
	defer ticker.Stop()

	lastStatus := "healthy"
	probe := func() {
		if ctx.Err() != nil {
			return
		}
		probeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()

		if p.natsClient.IsHealthy() {
			p.monitor.UpdateHealthy("nats", "Connected")
		} else {
			p.monitor.UpdateUnhealthy("nats", "Connection down or circuit open")
		}
		p.monitor.Update("kvstore", health.FromError("kvstore", p.kv.Ping(probeCtx)))
		p.monitor.Update("store", health.FromError("store", p.durable.Ping(probeCtx)))

		for name, status := range p.monitor.GetAll() {
			core.RecordHealthStatus(name, status.Healthy)
		}

		system := p.monitor.AggregateHealth(appName)
		core.RecordHealthStatus(appName, system.Healthy)
		if system.Status != lastStatus {
			if system.Healthy {
				p.logger.Info("Health recovered", "status", system.Status)
			} else {
				p.logger.Warn("Health changed",
					"status", system.Status,
					"message", system.Message)
			}
			lastStatus = system.Status
		}
	}

	probe()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			probe()
		}
	}
}

// shutdown stops components in reverse data-flow order: edges first so
// the bus drains, the coordinator next, infrastructure last. Every
// stage shares one deadline.
func shutdown(p *pipeline, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	remaining := func() time.Duration {
		d := time.Until(deadline)
		if d < time.Second {
			return time.Second
		}
		return d
	}

	var errs []error

	if p.bridge != nil {
		p.bridge.Stop()
	}
	if err := p.rtServer.Stop(remaining()); err != nil {
		errs = append(errs, fmt.Errorf("stop realtime server: %w", err))
	}
	if err := p.coordinator.Stop(remaining()); err != nil {
		errs = append(errs, fmt.Errorf("stop inference coordinator: %w", err))
	}
	if p.sink != nil {
		if err := p.sink.Stop(remaining()); err != nil {
			errs = append(errs, fmt.Errorf("stop telemetry sink: %w", err))
		}
	}

	closeCtx, cancel := context.WithTimeout(context.Background(), remaining())
	defer cancel()
	if err := p.natsClient.Close(closeCtx); err != nil {
		errs = append(errs, fmt.Errorf("close NATS client: %w", err))
	}
	if err := p.kv.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close kv store: %w", err))
	}
	if err := p.durable.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close store: %w", err))
	}
	if p.metricServer != nil {
		if err := p.metricServer.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("stop metrics server: %w", err))
		}
	}

	return errors.Join(errs...)
}
