// Command riskauth runs the risk-based authentication server.
//
//	riskauth -config riskauth.yaml
//	riskauth useradd -config riskauth.yaml -email alice@example.com -password '...' -roles admin
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	goRiskAuth "github.com/MrEthical07/goRiskAuth"
	"github.com/MrEthical07/goRiskAuth/internal/bootstrap"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "useradd" {
		os.Exit(runUserAdd(os.Args[2:]))
	}
	os.Exit(runServer(os.Args[1:]))
}

func runServer(args []string) int {
	fs := flag.NewFlagSet("riskauth", flag.ExitOnError)
	configPath := fs.String("config", envOr("RISKAUTH_CONFIG", "riskauth.yaml"), "path to the YAML config file")
	_ = fs.Parse(args)

	cfg, logger, ok := setup(*configPath)
	if !ok {
		return 1
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := bootstrap.NewRuntime(ctx, cfg, logger)
	if err != nil {
		logger.Error("bootstrap failed", zap.Error(err))
		return 1
	}
	if err := rt.Run(ctx); err != nil {
		logger.Error("server stopped", zap.Error(err))
		return 1
	}
	return 0
}

func runUserAdd(args []string) int {
	fs := flag.NewFlagSet("useradd", flag.ExitOnError)
	configPath := fs.String("config", envOr("RISKAUTH_CONFIG", "riskauth.yaml"), "path to the YAML config file")
	id := fs.String("id", "", "user id (default: random UUID)")
	email := fs.String("email", "", "login email")
	password := fs.String("password", "", "initial password")
	roles := fs.String("roles", "user", "comma-separated roles")
	_ = fs.Parse(args)

	if *email == "" || *password == "" {
		fmt.Fprintln(os.Stderr, "useradd: -email and -password are required")
		return 2
	}
	if *id == "" {
		*id = uuid.NewString()
	}

	cfg, logger, ok := setup(*configPath)
	if !ok {
		return 1
	}
	defer func() { _ = logger.Sync() }()

	ctx := context.Background()
	rt, err := bootstrap.NewRuntime(ctx, cfg, logger)
	if err != nil {
		logger.Error("bootstrap failed", zap.Error(err))
		return 1
	}
	defer rt.Close()

	hash, err := rt.Engine().HashPassword(*password)
	if err != nil {
		logger.Error("hash password", zap.Error(err))
		return 1
	}
	err = rt.Store().CreateUser(ctx, &goRiskAuth.User{
		ID:           *id,
		Email:        *email,
		PasswordHash: hash,
		Roles:        splitRoles(*roles),
		Active:       true,
	})
	if err != nil {
		logger.Error("create user", zap.Error(err))
		return 1
	}
	fmt.Println(*id)
	return 0
}

func setup(configPath string) (bootstrap.Config, *zap.Logger, bool) {
	cfg, err := bootstrap.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		return bootstrap.Config{}, nil, false
	}
	logger, err := newLogger(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		return bootstrap.Config{}, nil, false
	}
	return cfg, logger, true
}

func newLogger(cfg bootstrap.Config) (*zap.Logger, error) {
	zc := zap.NewProductionConfig()
	if cfg.Log.Development {
		zc = zap.NewDevelopmentConfig()
	}
	if cfg.Log.Level != "" {
		level, err := zap.ParseAtomicLevel(cfg.Log.Level)
		if err != nil {
			return nil, err
		}
		zc.Level = level
	}
	logger, err := zc.Build()
	if err != nil {
		return nil, err
	}
	return logger.With(zap.String("service", "riskauth")), nil
}

func splitRoles(v string) []string {
	var out []string
	for _, r := range strings.Split(v, ",") {
		if r = strings.TrimSpace(r); r != "" {
			out = append(out, r)
		}
	}
	return out
}

func envOr(name, fallback string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return fallback
}
