package main

import (
	"SwapLedger/internal/core"
	"SwapLedger/internal/ingestion"
	"SwapLedger/internal/observability"
	"SwapLedger/internal/persistence"
	"SwapLedger/internal/projection"
	"SwapLedger/internal/query"
	"SwapLedger/internal/server"
	"SwapLedger/migrations"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

const (
	rawChanSize     = 4096
	drainTimeout    = 30 * time.Second
	shutdownTimeout = 5 * time.Second
)

func openDB(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres open: %w", err)
	}
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("postgres ping: %w", err)
	}
	return db, nil
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger := newLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- Postgres ---
	db, err := openDB(ctx, cfg.PostgresDSN)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := persistence.NewMigrator(db, migrations.FS, logger).Up(ctx); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	// --- Observability ---
	metrics := observability.NewMetrics(prometheus.DefaultRegisterer)
	health := observability.NewHealthChecker()
	health.AddCheck("postgres", db.PingContext)

	// --- Engine ---
	engineCfg, err := cfg.Engine()
	if err != nil {
		return err
	}
	persistCoreChan := make(chan core.CoreOutput, cfg.PersistChanSize)
	projectionCoreChan := make(chan core.CoreOutput, cfg.ProjectionChanSize)
	dbChecker := persistence.NewPostgresIdempotencyChecker(db)

	engine, err := core.NewEngine(engineCfg, persistCoreChan, projectionCoreChan, dbChecker, metrics,
		logger.With().Str("component", "core").Logger())
	if err != nil {
		return err
	}

	// --- Recovery ---
	snapMgr := persistence.NewSnapshotManager(db, metrics)
	if _, err := recoverEngine(ctx, engine, snapMgr, metrics, logger); err != nil {
		return fmt.Errorf("recovery: %w", err)
	}
	keys, err := dbChecker.RecentKeys(ctx, cfg.LRUCapacity)
	if err != nil {
		return fmt.Errorf("load idempotency keys: %w", err)
	}
	engine.WarmLRU(keys)

	// ingestCtx stops new calls; workCtx aborts the drain if it overruns
	ingestCtx, stopIngest := context.WithCancel(ctx)
	defer stopIngest()
	workCtx, stopWork := context.WithCancel(context.Background())
	defer stopWork()

	errChan := make(chan error, 8)
	var ingestWG, workWG sync.WaitGroup

	// --- NATS ---
	var publishChan chan ingestion.PublishableEvent
	var subscriber *ingestion.NATSSubscriber
	var nc *nats.Conn
	if !cfg.DisableNATS {
		var js jetstream.JetStream
		nc, js, err = ingestion.ConnectNATS(cfg.NATSURL, logger)
		if err != nil {
			return err
		}
		defer nc.Close()
		health.AddCheck("nats", func(context.Context) error {
			if !nc.IsConnected() {
				return errors.New(nc.Status().String())
			}
			return nil
		})

		if err := ingestion.EnsureStreams(ctx, js, logger); err != nil {
			return err
		}

		rawChan := make(chan ingestion.RawEvent, rawChanSize)
		subscriber = ingestion.NewNATSSubscriber(js, rawChan, metrics, logger)
		if err := subscriber.Subscribe(ingestCtx); err != nil {
			return err
		}
		ingestWG.Add(1)
		go func() {
			defer ingestWG.Done()
			ingestion.RunIngestionLoop(ingestCtx, rawChan, engine, metrics, logger)
		}()

		publishChan = make(chan ingestion.PublishableEvent, cfg.PublishChanSize)
		publisher := ingestion.NewOutboundPublisher(js, publishChan, logger)
		workWG.Add(1)
		go func() {
			defer workWG.Done()
			if err := publisher.Run(workCtx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error().Err(err).Msg("outbound publisher stopped")
			}
		}()
	}

	// --- Workers ---
	persistWorkerChan := make(chan persistence.Output, cfg.PersistChanSize)
	projectionWorkerChan := make(chan projection.ProjectionOutput, cfg.ProjectionChanSize)

	persistWorker := persistence.NewPersistenceWorker(db, persistWorkerChan, cfg.PersistBatchSize, cfg.PersistFlushTimeout, metrics, logger)
	persistDone := make(chan struct{})
	go func() {
		defer close(persistDone)
		if err := persistWorker.Run(workCtx); err != nil && !errors.Is(err, context.Canceled) {
			errChan <- fmt.Errorf("persistence worker: %w", err)
		}
	}()

	projWorker := projection.NewProjectionWorker(db, projectionWorkerChan, metrics, logger)
	workWG.Add(2)
	go func() {
		defer workWG.Done()
		if err := projWorker.Run(workCtx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error().Err(err).Msg("projection worker stopped")
		}
	}()
	go func() {
		defer workWG.Done()
		bridgeCoreOutputs(workCtx, persistCoreChan, projectionCoreChan,
			persistWorkerChan, projectionWorkerChan, publishChan, metrics)
	}()
	go reportChannels(workCtx, metrics, map[string]channelLen{
		"persist":    func() (int, int) { return len(persistCoreChan), cap(persistCoreChan) },
		"projection": func() (int, int) { return len(projectionCoreChan), cap(projectionCoreChan) },
	})

	snaps := &snapshotter{
		engine:   engine,
		mgr:      snapMgr,
		interval: cfg.SnapshotInterval,
		lastSeq:  engine.GetSequence(),
		metrics:  metrics,
		logger:   logger,
	}
	go snaps.run(ingestCtx)

	// --- API ---
	srv, err := server.NewGRPCServer(cfg.GRPCAddr, cfg.HTTPAddr, &server.ServerDeps{
		Ledger:        engine,
		Submitter:     ingestion.NewSubmitter(engine, metrics, logger),
		QueryService:  query.NewQueryService(db, metrics),
		DB:            db,
		HealthChecker: health,
		Metrics:       metrics,
		Logger:        logger,
	})
	if err != nil {
		return err
	}
	ingestWG.Add(3)
	go func() {
		defer ingestWG.Done()
		if err := srv.StartGRPC(ingestCtx); err != nil {
			errChan <- fmt.Errorf("grpc server: %w", err)
		}
	}()
	go func() {
		defer ingestWG.Done()
		if err := srv.StartHTTPGateway(ingestCtx); err != nil {
			errChan <- fmt.Errorf("http gateway: %w", err)
		}
	}()
	go func() {
		defer ingestWG.Done()
		if err := serveMetrics(ingestCtx, cfg.MetricsAddr, logger); err != nil {
			errChan <- err
		}
	}()

	srv.SetServing(true)
	health.SetReady(true)
	logger.Info().
		Int64("sequence", engine.GetSequence()).
		Str("grpc", cfg.GRPCAddr).
		Str("http", cfg.HTTPAddr).
		Str("metrics", cfg.MetricsAddr).
		Bool("nats", !cfg.DisableNATS).
		Msg("SwapLedger ready")

	select {
	case <-ctx.Done():
		logger.Info().Msg("signal received, shutting down")
	case err := <-errChan:
		logger.Error().Err(err).Msg("component failed, shutting down")
	}

	// --- Graceful shutdown ---
	// Stop intake, let the core's outputs drain through the workers, then
	// snapshot the final state.
	health.SetReady(false)
	srv.SetServing(false)
	if subscriber != nil {
		subscriber.Stop()
	}
	stopIngest()
	ingestWG.Wait()

	close(persistCoreChan)
	close(projectionCoreChan)

	select {
	case <-persistDone:
	case <-time.After(drainTimeout):
		logger.Error().Msg("persistence drain timed out")
		stopWork()
		<-persistDone
	}

	finalCtx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()
	if err := snaps.take(finalCtx); err != nil {
		logger.Error().Err(err).Msg("final snapshot failed")
	} else if _, err := snapMgr.VerifyPending(finalCtx); err != nil {
		logger.Warn().Err(err).Msg("final snapshot verification failed")
	}

	stopWork()
	workWG.Wait()
	logger.Info().Int64("sequence", engine.GetSequence()).Msg("SwapLedger shutdown complete")
	return nil
}

func serveMetrics(ctx context.Context, addr string, logger zerolog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	metricsServer := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		metricsServer.Shutdown(shutCtx)
	}()

	logger.Info().Str("addr", addr).Msg("metrics server listening")
	if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("metrics server: %w", err)
	}
	return nil
}

// channelLen reports a channel's length and capacity
type channelLen func() (int, int)

func reportChannels(ctx context.Context, metrics *observability.Metrics, chans map[string]channelLen) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for name, fn := range chans {
				size, capacity := fn()
				metrics.SetChannelMetrics(name, size, capacity)
			}
		}
	}
}
