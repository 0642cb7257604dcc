package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"google.golang.org/grpc"

	"fundimart.org/internal/admin"
	"fundimart.org/internal/auth"
	"fundimart.org/internal/catalog"
	"fundimart.org/internal/config"
	"fundimart.org/internal/httpapi"
	"fundimart.org/internal/obs"
	"fundimart.org/internal/revocation"
	"fundimart.org/internal/settings"
	"fundimart.org/internal/store/memory"
	"fundimart.org/internal/store/pg"
	"fundimart.org/internal/workflow"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

// backend is the storage both stores satisfy.
type backend interface {
	auth.IdentityStore
	auth.OwnershipSource
	admin.Store
	workflow.ReceiptStore
	workflow.ReportStore
	settings.Store
	catalog.Store
}

func main() {
	v := config.New()
	root := &cobra.Command{
		Use:          "fundimart-api",
		Short:        "fundimart admin API: authorization and verification workflows",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(v)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return run(ctx, cfg)
		},
	}
	if err := config.BindFlags(root, v); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config) error {
	if err := obs.SetLevel(cfg.LogLevel); err != nil {
		return err
	}
	obs.Init()
	obs.InitBuildInfo(version, commit)
	log := obs.Logger()

	var (
		store backend
		probe httpapi.ReadyProbe
	)
	if cfg.PostgresDSN != "" {
		pgStore, err := pg.Open(cfg.PostgresDSN)
		if err != nil {
			return fmt.Errorf("open postgres: %w", err)
		}
		defer pgStore.Close()
		store = pgStore
		probe.DB = pgStore
		log.Info().Msg("using postgres store")
	} else {
		mem := memory.New()
		if err := memory.SeedDemo(ctx, mem); err != nil {
			return fmt.Errorf("seed demo data: %w", err)
		}
		store = mem
		log.Warn().Msg("no pg_dsn configured, serving in-memory demo data")
	}

	var revoker auth.Revoker
	if cfg.RedisAddr != "" {
		rs, err := revocation.NewRedisStore(ctx, revocation.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		defer rs.Close()
		revoker = rs
		probe.Cache = rs
	} else {
		revoker = revocation.NewMemoryStore(nil)
	}

	tokens, err := auth.NewTokens(cfg.AuthSecret, cfg.TokenTTL)
	if err != nil {
		return err
	}
	authSvc, err := auth.NewService(store, tokens, auth.WithRevoker(revoker))
	if err != nil {
		return err
	}
	gate := auth.NewGate(auth.NewResolver(store))
	admins, err := admin.NewService(store, store, gate)
	if err != nil {
		return err
	}
	settingsSvc, err := settings.NewService(store, gate)
	if err != nil {
		return err
	}
	flows, err := workflow.NewService(store, store, gate,
		workflow.WithStats(admins),
		workflow.WithGenerator(workflow.URLGenerator{BaseURL: cfg.ReportBaseURL}),
		workflow.WithUploadLimit(settingsSvc.MaxReceiptBytes),
	)
	if err != nil {
		return err
	}
	products, err := catalog.NewService(store, gate)
	if err != nil {
		return err
	}

	proxies, err := cfg.ProxyPrefixes()
	if err != nil {
		return err
	}
	api, err := httpapi.New(probe, version, httpapi.Services{
		Auth:     authSvc,
		Admins:   admins,
		Workflow: flows,
		Settings: settingsSvc,
		Catalog:  products,
	},
		httpapi.WithRateLimit(cfg.RatePerSecond, cfg.RateBurst),
		httpapi.WithMaxBodyBytes(cfg.MaxBodyBytes),
		httpapi.WithTrustedProxies(proxies),
	)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	health := httpapi.NewGRPCServer(probe, version)
	grpcSrv := grpc.NewServer()
	health.Register(grpcSrv)

	errc := make(chan error, 2)
	go func() {
		log.Info().Str("addr", srv.Addr).Str("version", version).Msg("http listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- fmt.Errorf("http: %w", err)
		}
	}()
	if cfg.GRPCAddr != "" {
		lis, err := net.Listen("tcp", cfg.GRPCAddr)
		if err != nil {
			return fmt.Errorf("grpc listen: %w", err)
		}
		go health.Run(ctx, 10*time.Second)
		go func() {
			log.Info().Str("addr", cfg.GRPCAddr).Msg("grpc listening")
			if err := grpcSrv.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
				errc <- fmt.Errorf("grpc: %w", err)
			}
		}()
	}

	var runErr error
	select {
	case <-ctx.Done():
		log.Info().Msg("shutting down")
	case runErr = <-errc:
		log.Error().Err(runErr).Msg("server failed")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	health.Shutdown()
	grpcSrv.GracefulStop()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	log.Info().Msg("stopped")
	return runErr
}
