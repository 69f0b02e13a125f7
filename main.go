// /apps/scadasim/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	influx "github.com/Resanso/minerva-ericsson/apps/scadasim/internal/influxdb"
	"github.com/Resanso/minerva-ericsson/apps/scadasim/internal/health"
	"github.com/Resanso/minerva-ericsson/apps/scadasim/internal/logging"
	"github.com/Resanso/minerva-ericsson/apps/scadasim/internal/metadata"
	"github.com/Resanso/minerva-ericsson/apps/scadasim/internal/metrics"
	"github.com/Resanso/minerva-ericsson/apps/scadasim/internal/mysql"
	"github.com/Resanso/minerva-ericsson/apps/scadasim/internal/registry"
	"github.com/Resanso/minerva-ericsson/apps/scadasim/internal/server"
	"github.com/Resanso/minerva-ericsson/apps/scadasim/internal/simulation"
	"github.com/Resanso/minerva-ericsson/apps/scadasim/internal/transport"
)

const shutdownTimeout = 5 * time.Second

func main() {
	envErr := godotenv.Load()

	logger, err := logging.New(logging.FromEnv())
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger config error: %v\n", err)
		os.Exit(2)
	}
	defer func() { _ = logger.Sync() }()
	if envErr != nil {
		logger.Debug(".env file not loaded", zap.Error(envErr))
	}

	if err := run(logger); err != nil {
		logger.Error("simulator exited with error", zap.Error(err))
		_ = logger.Sync()
		os.Exit(1)
	}
}

func run(logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runID := uuid.NewString()
	logger = logger.With(zap.String("run_id", runID))

	cfg := simulation.ConfigFromEnv(logger)
	reg, err := loadRegistry(cfg.RegistryFile)
	if err != nil {
		return err
	}

	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	logger.Info("simulation configured",
		zap.Int64("seed", seed),
		zap.Duration("interval", cfg.Interval),
		zap.Float64("anomaly_probability", cfg.AnomalyProbability),
		zap.Int("sensors", reg.Len()))

	recorder := metrics.New()
	synth := simulation.NewSynthesizer(reg,
		simulation.WithRand(rand.New(rand.NewSource(seed))),
		simulation.WithAnomalyProbability(cfg.AnomalyProbability),
		simulation.WithAnomalyListener(simulation.AnomalyObserver(recorder)),
		simulation.WithSynthLogger(logger.Named("synth")))

	repo, closeMetadata, err := maintenanceSource(ctx, logger, reg)
	if err != nil {
		return err
	}
	defer closeMetadata()
	agg := newAggregator(reg, synth, repo, rand.New(rand.NewSource(seed+1)), logger)
	// status reads draw uptimes from their own source so a fixed seed replays the stream
	readAgg := newAggregator(reg, synth, repo, nil, logger)

	trCfg, err := transport.FromEnv()
	if err != nil {
		return fmt.Errorf("transport config: %w", err)
	}
	tr, err := newTransport(trCfg, logger.Named("transport"))
	if err != nil {
		return err
	}

	sim := simulation.New(tr, synth, agg,
		simulation.WithInterval(cfg.Interval),
		simulation.WithStatusEvery(cfg.StatusEvery),
		simulation.WithTickLimit(cfg.TickLimit),
		simulation.WithErrorPause(cfg.ErrorPause),
		simulation.WithReconnectPolicy(cfg.ReconnectAttempts, cfg.ReconnectBackoff),
		simulation.WithObserver(recorder),
		simulation.WithLogger(logger.Named("simulation")),
		simulation.WithReadAggregator(readAgg),
		simulation.WithRunID(runID))

	var metadataPinger server.Pinger
	if repo != nil {
		metadataPinger = repo
	}

	srvCfg := server.FromEnv()
	if srvCfg.Enabled() {
		srv := &http.Server{
			Addr: srvCfg.Addr,
			Handler: server.NewRouter(server.Dependencies{
				Simulator:      sim,
				Metadata:       metadataPinger,
				Metrics:        recorder.Handler(),
				Transport:      trCfg.Kind,
				AllowedOrigins: srvCfg.AllowedOrigins,
				Logger:         logger.Named("http"),
			}),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			logger.Info("status server listening", zap.String("addr", srvCfg.Addr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("status server failed", zap.Error(err))
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.Warn("status server shutdown", zap.Error(err))
			}
		}()
	}

	logger.Info("starting sensor simulator", zap.String("transport", trCfg.Kind), zap.String("url", trCfg.URL))
	return sim.Run(ctx)
}

func loadRegistry(path string) (*registry.Registry, error) {
	if path == "" {
		return registry.Default(), nil
	}
	reg, err := registry.LoadFile(path)
	if err != nil {
		return nil, fmt.Errorf("sensor registry: %w", err)
	}
	return reg, nil
}

func newAggregator(reg *registry.Registry, synth *simulation.Synthesizer, repo *metadata.Repository, rng *rand.Rand, logger *zap.Logger) *health.Aggregator {
	opts := []health.Option{
		health.WithFallback(health.NewStaticMaintenance(rng)),
		health.WithLogger(logger.Named("health")),
	}
	if repo != nil {
		opts = append(opts, health.WithMaintenanceSource(repo))
	}
	return health.NewAggregator(reg, synth, opts...)
}

// maintenanceSource opens the MySQL device table when MYSQL_* is configured. A nil
// repository means static maintenance metadata.
func maintenanceSource(ctx context.Context, logger *zap.Logger, reg *registry.Registry) (*metadata.Repository, func(), error) {
	dbCfg, err := mysql.FromEnv()
	if errors.Is(err, mysql.ErrNotConfigured) {
		logger.Info("mysql not configured, using static maintenance metadata")
		return nil, func() {}, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("mysql config: %w", err)
	}

	db, err := mysql.New(ctx, dbCfg)
	if err != nil {
		return nil, nil, fmt.Errorf("mysql connection: %w", err)
	}
	repo := metadata.NewRepository(db)
	if err := repo.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, nil, err
	}
	if err := repo.RegisterDevices(ctx, reg.Devices(), time.Now().UTC()); err != nil {
		_ = db.Close()
		return nil, nil, err
	}
	logger.Info("maintenance metadata backed by mysql", zap.Int("devices", len(reg.Devices())))
	return repo, func() { _ = db.Close() }, nil
}

func newTransport(cfg transport.Config, logger *zap.Logger) (transport.Transport, error) {
	switch cfg.Kind {
	case transport.KindInflux:
		influxCfg, err := influx.FromEnv()
		if err != nil {
			return nil, fmt.Errorf("influx config: %w", err)
		}
		return influx.NewTransport(influxCfg, logger), nil
	default:
		return transport.NewWebSocket(cfg, logger), nil
	}
}
