package bootstrap

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"

	goRiskAuth "github.com/MrEthical07/goRiskAuth"
	"github.com/MrEthical07/goRiskAuth/audit/kafka"
	"github.com/MrEthical07/goRiskAuth/device"
	"github.com/MrEthical07/goRiskAuth/geo"
	"github.com/MrEthical07/goRiskAuth/internal/httpapi"
	"github.com/MrEthical07/goRiskAuth/metrics/export/prometheus"
	"github.com/MrEthical07/goRiskAuth/store/gormstore"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"gorm.io/gorm"
)

// Runtime owns every long-lived resource of the server.
type Runtime struct {
	cfg        Config
	logger     *zap.Logger
	engine     *goRiskAuth.Engine
	store      *gormstore.Store
	httpServer *http.Server
	grpcServer *grpc.Server
	health     *health.Server
	closers    []func() error
}

// NewRuntime connects dependencies and builds the engine and servers. Nothing listens
// until Run.
func NewRuntime(ctx context.Context, cfg Config, logger *zap.Logger) (_ *Runtime, err error) {
	rt := &Runtime{cfg: cfg, logger: logger}
	defer func() {
		if err != nil {
			rt.cleanup()
		}
	}()

	db, err := openDatabase(ctx, cfg)
	if err != nil {
		return nil, err
	}
	rt.store = gormstore.New(db)
	rt.closers = append(rt.closers, rt.store.Close)
	if err := gormstore.Migrate(ctx, db); err != nil {
		return nil, err
	}

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	redisClient := redis.NewClient(redisOpts)
	rt.closers = append(rt.closers, redisClient.Close)
	if err := redisClient.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect redis: %w", err)
	}

	engineCfg := cfg.EngineConfig()
	engineCfg.JWT.PrivateKey, engineCfg.JWT.PublicKey, err = loadKeys(cfg, logger)
	if err != nil {
		return nil, err
	}

	b := goRiskAuth.New().
		WithConfig(engineCfg).
		WithRedis(redisClient).
		WithCredentialStore(rt.store).
		WithSessionStore(rt.store).
		WithEventStore(rt.store).
		WithDeviceParser(device.UserAgentParser{}).
		WithLogger(logger.Named("engine"))

	locator, err := rt.geoLocator()
	if err != nil {
		return nil, err
	}
	if locator != nil {
		b.WithGeoLocator(locator)
	}
	sink, err := rt.auditSink()
	if err != nil {
		return nil, err
	}
	if sink != nil {
		b.WithAuditSink(sink)
	}

	rt.engine, err = b.Build()
	if err != nil {
		return nil, fmt.Errorf("build engine: %w", err)
	}

	handler := httpapi.NewHandler(rt.engine, httpapi.Config{
		RateLimit:  cfg.HTTP.RateLimit,
		RateBurst:  cfg.HTTP.RateBurst,
		TrustProxy: cfg.HTTP.TrustProxy,
		CookieName: cfg.HTTP.CookieName,
		Ready: func(ctx context.Context) error {
			if err := rt.store.Ping(ctx); err != nil {
				return err
			}
			return redisClient.Ping(ctx).Err()
		},
	}, logger.Named("http"))

	mux := http.NewServeMux()
	if cfg.MetricsPath != "" {
		mux.Handle(cfg.MetricsPath, prometheus.NewExporter(rt.engine).Handler())
	}
	mux.Handle("/", httpapi.NewRouter(handler))

	rt.httpServer = &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	rt.grpcServer = grpc.NewServer()
	rt.health = health.NewServer()
	healthpb.RegisterHealthServer(rt.grpcServer, rt.health)

	return rt, nil
}

// Engine returns the built engine.
func (r *Runtime) Engine() *goRiskAuth.Engine { return r.engine }

// Store returns the relational store.
func (r *Runtime) Store() *gormstore.Store { return r.store }

// Run serves HTTP and gRPC until ctx is cancelled or a server fails, then shuts down.
func (r *Runtime) Run(ctx context.Context) error {
	lis, err := net.Listen("tcp", r.cfg.GRPCAddr)
	if err != nil {
		return fmt.Errorf("listen grpc: %w", err)
	}

	errCh := make(chan error, 2)
	go func() {
		r.logger.Info("http server started", zap.String("addr", r.httpServer.Addr))
		if err := r.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()
	go func() {
		r.logger.Info("grpc server started", zap.String("addr", lis.Addr().String()))
		if err := r.grpcServer.Serve(lis); err != nil {
			errCh <- fmt.Errorf("grpc server: %w", err)
		}
	}()
	r.health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)

	var runErr error
	select {
	case <-ctx.Done():
		r.logger.Info("shutdown signal received")
	case runErr = <-errCh:
		r.logger.Error("server failure", zap.Error(runErr))
	}

	r.health.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := r.httpServer.Shutdown(shutdownCtx); err != nil {
		r.logger.Warn("http shutdown", zap.Error(err))
	}
	r.grpcServer.GracefulStop()
	r.Close()
	return runErr
}

// Close drains the engine and releases connections. It is called by Run.
func (r *Runtime) Close() {
	if r.engine != nil {
		r.engine.Close()
		r.engine = nil
	}
	r.cleanup()
}

func (r *Runtime) cleanup() {
	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i](); err != nil {
			r.logger.Warn("close resource", zap.Error(err))
		}
	}
	r.closers = nil
}

func openDatabase(ctx context.Context, cfg Config) (*gorm.DB, error) {
	switch cfg.Database.Driver {
	case "sqlite":
		return gormstore.OpenSQLite(ctx, cfg.Database.DSN)
	default:
		return gormstore.Connect(ctx, cfg.Database.DSN, cfg.Database.MaxConns)
	}
}

// loadKeys returns the signing and verification keys. Ephemeral Ed25519 keys are only
// generated when explicitly allowed; tokens do not survive a restart then.
func loadKeys(cfg Config, logger *zap.Logger) (priv, pub []byte, err error) {
	if cfg.JWT.SigningMethod == "hs256" {
		return []byte(cfg.JWT.Secret), nil, nil
	}
	if cfg.JWT.PrivateKeyFile != "" && cfg.JWT.PublicKeyFile != "" {
		if priv, err = os.ReadFile(cfg.JWT.PrivateKeyFile); err != nil {
			return nil, nil, fmt.Errorf("read jwt private key: %w", err)
		}
		if pub, err = os.ReadFile(cfg.JWT.PublicKeyFile); err != nil {
			return nil, nil, fmt.Errorf("read jwt public key: %w", err)
		}
		return priv, pub, nil
	}
	logger.Warn("using ephemeral ed25519 keys")
	edPub, edPriv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, nil, fmt.Errorf("generate ed25519 keys: %w", err)
	}
	return edPriv, edPub, nil
}

func (r *Runtime) geoLocator() (goRiskAuth.GeoLocator, error) {
	switch {
	case r.cfg.Geo.MaxMindPath != "":
		m, err := geo.OpenMaxMind(r.cfg.Geo.MaxMindPath)
		if err != nil {
			return nil, err
		}
		r.closers = append(r.closers, m.Close)
		return m, nil
	case len(r.cfg.Geo.Static) > 0:
		return geo.NewStatic(r.cfg.Geo.Static)
	default:
		return nil, nil
	}
}

func (r *Runtime) auditSink() (goRiskAuth.AuditSink, error) {
	var sinks []goRiskAuth.AuditSink
	if r.cfg.Audit.Log {
		sinks = append(sinks, goRiskAuth.NewLoggerSink(r.logger.Named("audit")))
	}
	if len(r.cfg.Audit.KafkaBrokers) > 0 {
		k, err := kafka.NewSink(kafka.Config{
			Brokers:      r.cfg.Audit.KafkaBrokers,
			Topic:        r.cfg.Audit.KafkaTopic,
			WriteTimeout: r.cfg.Audit.WriteTimeout,
		}, r.logger.Named("kafka"))
		if err != nil {
			return nil, err
		}
		r.closers = append(r.closers, k.Close)
		sinks = append(sinks, k)
	}
	switch len(sinks) {
	case 0:
		return nil, nil
	case 1:
		return sinks[0], nil
	default:
		return goRiskAuth.NewMultiSink(sinks...), nil
	}
}
