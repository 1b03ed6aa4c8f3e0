package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"guildhall.org/internal/auth"
	"guildhall.org/internal/config"
	"guildhall.org/internal/guild"
	"guildhall.org/internal/height"
	"guildhall.org/internal/httpapi"
	"guildhall.org/internal/migrate"
	"guildhall.org/internal/obs"
	"guildhall.org/internal/store/badger"
	"guildhall.org/internal/store/memory"
	"guildhall.org/internal/store/pg"
	"guildhall.org/internal/stream"
	"guildhall.org/ops/migrations"
)

const (
	shutdownTimeout = 10 * time.Second
	probeInterval   = 10 * time.Second
	badgerGCEvery   = 5 * time.Minute
)

func serveCommand() *cobra.Command {
	var autoMigrate bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP and gRPC servers",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := commonRun()
			if err != nil {
				return err
			}
			return serveRun(cmd.Context(), cfg, logger, autoMigrate)
		},
	}
	cmd.Flags().BoolVar(&autoMigrate, "migrate", true, "apply pending migrations and seeds before serving (postgres backend)")
	return cmd
}

func serveRun(ctx context.Context, cfg *config.Config, logger *slog.Logger, autoMigrate bool) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	obs.Init()
	obs.InitBuildInfo(obs.Build{Version: version, Commit: commit, Backend: cfg.Storage.Backend})
	shutdownTracing, err := obs.SetupTracing(ctx, programName, obs.TracingConfig{
		Enabled:  cfg.Tracing.Enabled,
		Endpoint: cfg.Tracing.Endpoint,
	})
	if err != nil {
		return fmt.Errorf("setup tracing: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			logger.Warn("flush traces", "error", err)
		}
	}()

	store, err := openStore(ctx, cfg, logger, autoMigrate)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error("close store", "error", err)
		}
	}()

	var (
		src    guild.HeightSource
		manual *height.Manual
	)
	if cfg.Chain.Manual {
		manual = height.NewManual(0)
		src = manual
	} else {
		clock, err := height.NewClock(cfg.Chain.Genesis, cfg.Chain.BlockInterval)
		if err != nil {
			return err
		}
		src = clock
	}

	events := stream.New(obs.RecordStreamDrop)
	reg, err := guild.NewRegistry(store, src, guild.WithEvents(events))
	if err != nil {
		return err
	}
	if cfg.Admin != "" {
		if err := reg.Init(ctx, cfg.Admin); err != nil {
			return fmt.Errorf("init registry: %w", err)
		}
	} else {
		logger.Warn("no contract admin configured; keeping the stored one")
	}

	issuer, err := newIssuer(cfg, logger)
	if err != nil {
		return err
	}

	api := httpapi.New(reg, issuer, httpapi.Options{
		Version:       version,
		Stream:        events,
		ManualHeight:  manual,
		IssueTokens:   cfg.Auth.IssueTokens,
		RateBurst:     cfg.RateLimit.Burst,
		RatePerSecond: cfg.RateLimit.PerSecond,
	})
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		// No WriteTimeout: /v1/events streams stay open.
		IdleTimeout: 60 * time.Second,
	}

	httpLis, grpcLis, err := openListeners(cfg)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("http listening", "addr", httpLis.Addr().String(), "version", version, "backend", cfg.Storage.Backend)
		if err := srv.Serve(httpLis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http serve: %w", err)
		}
		return nil
	})

	var grpcSrv *httpapi.GRPCServer
	if grpcLis != nil {
		grpcSrv = httpapi.NewGRPCServer(httpapi.ReadyProbe{Registry: reg})
		g.Go(func() error {
			grpcSrv.Watch(gctx, probeInterval)
			return nil
		})
		g.Go(func() error {
			logger.Info("grpc listening", "addr", cfg.GRPCAddr)
			return grpcSrv.Serve(grpcLis)
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if grpcSrv != nil {
			grpcSrv.GracefulStop()
		}
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("stopped")
	return nil
}

// openListeners binds the HTTP and optional gRPC addresses before any server
// goroutine starts. On failure nothing is left open.
func openListeners(cfg *config.Config) (httpLis, grpcLis net.Listener, err error) {
	httpLis, err = net.Listen("tcp", cfg.HTTPAddr)
	if err != nil {
		return nil, nil, fmt.Errorf("http listen: %w", err)
	}
	if cfg.GRPCAddr == "" {
		return httpLis, nil, nil
	}
	grpcLis, err = net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		_ = httpLis.Close()
		return nil, nil, fmt.Errorf("grpc listen: %w", err)
	}
	return httpLis, grpcLis, nil
}

func openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger, autoMigrate bool) (guild.Store, error) {
	switch strings.ToLower(cfg.Storage.Backend) {
	case config.BackendBadger:
		return badger.Open(
			badger.WithDataDir(cfg.Storage.BadgerDir),
			badger.WithLogger(logger.With("store", "badger")),
			badger.WithGC(badgerGCEvery),
		)
	case config.BackendPostgres:
		s, err := pg.Open(cfg.Storage.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		if autoMigrate {
			mgr, err := newMigrator(cfg, s)
			if err != nil {
				_ = s.Close()
				return nil, err
			}
			if _, err := mgr.Up(ctx); err != nil {
				_ = s.Close()
				return nil, err
			}
			if _, err := mgr.Seed(ctx); err != nil {
				_ = s.Close()
				return nil, err
			}
		}
		return s, nil
	default:
		logger.Warn("using in-memory storage; state is lost on restart")
		return memory.New(), nil
	}
}

func newMigrator(cfg *config.Config, s *pg.Store) (*migrate.Manager, error) {
	schema, err := migrationFS(cfg.MigrationsDir, migrations.SQL, "sql")
	if err != nil {
		return nil, err
	}
	seeds, err := migrationFS(cfg.SeedsDir, migrations.Seeds, "seeds")
	if err != nil {
		return nil, err
	}
	return migrate.NewManager(s.DB(), schema, seeds), nil
}

// migrationFS prefers an on-disk directory and falls back to the embedded
// copy.
func migrationFS(dir string, embedded fs.FS, sub string) (fs.FS, error) {
	if dir != "" {
		return os.DirFS(dir), nil
	}
	return fs.Sub(embedded, sub)
}

func newIssuer(cfg *config.Config, logger *slog.Logger) (*auth.Issuer, error) {
	secret := cfg.Auth.Secret
	if secret == "" {
		if !cfg.Auth.IssueTokens {
			return nil, errors.New("auth.secret is required")
		}
		secret = uuid.NewString()
		logger.Warn("no auth secret configured; using an ephemeral one")
	}
	return auth.NewIssuer(secret, cfg.Auth.TokenTTL)
}
