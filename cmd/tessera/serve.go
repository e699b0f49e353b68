package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/gin-gonic/gin"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/layer-3/tessera/adapters/events"
	"github.com/layer-3/tessera/adapters/hasher"
	"github.com/layer-3/tessera/adapters/store"
	"github.com/layer-3/tessera/adapters/tokenizer"
	"github.com/layer-3/tessera/config"
	"github.com/layer-3/tessera/core"
	"github.com/layer-3/tessera/internal/logging"
	"github.com/layer-3/tessera/internal/metrics"
	"github.com/layer-3/tessera/ports"
	"github.com/layer-3/tessera/service"
	httptransport "github.com/layer-3/tessera/transport/http"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configPath, os.Getenv)
			if err != nil {
				return err
			}
			if err := cfg.ApplyFlags(cmd.Flags()); err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}

			logger, err := logging.New(os.Stdout, cfg.LogLevel, cfg.Env)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg, logger)
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "path to a YAML config file")
	config.RegisterFlags(cmd.Flags())
	return cmd
}

// app is the wired server with everything that must be released on exit
type app struct {
	router  *gin.Engine
	sweeper *service.Sweeper
	closers []func() error
}

func (a *app) close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	return errors.Join(errs...)
}

func serve(ctx context.Context, cfg *config.Config, logger *logging.SlogLogger) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	a, err := newApp(ctx, cfg, logger, reg)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.close(); err != nil {
			logger.Warn(context.Background(), "failed to release resources", "error", err)
		}
	}()

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           a.router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info(gctx, "http server listening", "addr", cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		return a.sweeper.Run(gctx)
	})

	err = g.Wait()
	logger.Info(context.Background(), "server stopped")
	return err
}

func newApp(ctx context.Context, cfg *config.Config, logger logging.Logger, reg *prometheus.Registry) (*app, error) {
	a := &app{}
	ok := false
	defer func() {
		if !ok {
			_ = a.close()
		}
	}()

	m, err := metrics.New(reg, reg)
	if err != nil {
		return nil, fmt.Errorf("failed to register metrics: %w", err)
	}
	opts := []service.Option{service.WithLogger(logger), service.WithMetrics(m)}

	h, err := newHasher(cfg)
	if err != nil {
		return nil, err
	}

	principals, err := newPrincipalStore(ctx, a, cfg)
	if err != nil {
		return nil, err
	}

	var (
		ledger   ports.RevocationLedger = store.NewMemoryLedger()
		eventPub ports.EventPublisher   = events.NopPublisher{}
	)
	if cfg.RedisURL != "" {
		ledger, eventPub, err = newRedisBackends(ctx, a, cfg)
		if err != nil {
			return nil, err
		}
	}

	tk, err := tokenizer.NewJWTTokenizer(tokenizer.Config{
		AccessSecret:  []byte(cfg.AccessSecret),
		RefreshSecret: []byte(cfg.RefreshSecret),
		AccessTTL:     cfg.AccessTTL,
		RefreshTTL:    cfg.RefreshTTL,
		Issuer:        cfg.Issuer,
	})
	if err != nil {
		return nil, err
	}

	credentials := service.NewCredentialStore(principals, h)
	authService := service.NewAuthService(credentials, tk, ledger, eventPub, opts...)

	seeds, err := toSeeds(cfg.Bootstrap)
	if err != nil {
		return nil, err
	}
	if _, err := authService.Bootstrap(ctx, seeds); err != nil {
		return nil, fmt.Errorf("failed to bootstrap principals: %w", err)
	}

	a.sweeper, err = service.NewSweeper(ledger, cfg.SweepInterval, opts...)
	if err != nil {
		return nil, err
	}

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	a.router = httptransport.SetupRouter(authService, httptransport.RouterConfig{
		Logger:              logger,
		Metrics:             m,
		LoginRateLimitRPS:   cfg.LoginRateLimitRPS,
		LoginRateLimitBurst: cfg.LoginRateLimitBurst,
	})

	ok = true
	return a, nil
}

func newHasher(cfg *config.Config) (ports.Hasher, error) {
	switch cfg.Hasher {
	case config.HasherArgon2id:
		return hasher.NewArgon2(hasher.DefaultArgon2Config)
	default:
		return hasher.NewBcrypt(cfg.BcryptCost)
	}
}

func newPrincipalStore(ctx context.Context, a *app, cfg *config.Config) (ports.PrincipalStore, error) {
	if cfg.DatabaseDSN == "" {
		return store.NewMemoryPrincipalStore(), nil
	}

	db, err := sql.Open("pgx", cfg.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	a.closers = append(a.closers, db.Close)

	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to reach database: %w", err)
	}

	pg := store.NewPostgresPrincipalStore(db)
	if err := pg.EnsureSchema(ctx); err != nil {
		return nil, err
	}
	return pg, nil
}

func newRedisBackends(ctx context.Context, a *app, cfg *config.Config) (ports.RevocationLedger, ports.EventPublisher, error) {
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	redisClient := redis.NewClient(opts)
	a.closers = append(a.closers, redisClient.Close)

	if err := redisClient.Ping(ctx).Err(); err != nil {
		return nil, nil, fmt.Errorf("failed to reach Redis: %w", err)
	}

	publisher, err := redisstream.NewPublisher(
		redisstream.PublisherConfig{
			Client: redisClient,
		},
		watermill.NewStdLogger(false, false),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create Redis publisher: %w", err)
	}
	a.closers = append(a.closers, publisher.Close)

	return store.NewRedisLedger(redisClient), events.NewWatermillPublisher(publisher), nil
}

func toSeeds(in []config.Seed) ([]service.Seed, error) {
	out := make([]service.Seed, 0, len(in))
	for _, s := range in {
		balance := decimal.Zero
		if s.Balance != "" {
			var err error
			if balance, err = decimal.NewFromString(s.Balance); err != nil {
				return nil, fmt.Errorf("seed %q: invalid balance: %w", s.Key, err)
			}
		}
		out = append(out, service.Seed{
			Key:     s.Key,
			Secret:  s.Secret,
			Role:    core.Role(s.Role),
			Balance: balance,
		})
	}
	return out, nil
}
