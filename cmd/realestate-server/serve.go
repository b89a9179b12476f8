package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/realestate/server/internal/api"
	"github.com/realestate/server/internal/config"
	"github.com/realestate/server/internal/database"
	"github.com/realestate/server/internal/geometry"
	"github.com/realestate/server/internal/location"
	"github.com/realestate/server/internal/subdivision"
)

const shutdownTimeout = 15 * time.Second

var skipMigrate bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return serve(ctx)
	},
}

func init() {
	serveCmd.Flags().BoolVar(&skipMigrate, "skip-migrate", false, "do not create missing tables on startup")
}

func serve(ctx context.Context) error {
	opts, err := serviceOptions(cfg.Geometry)
	if err != nil {
		return err
	}

	db, err := database.Open(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close()

	if !skipMigrate {
		if err := database.EnsureSchema(ctx, db); err != nil {
			return err
		}
	}

	cache, closeCache := locationCache(ctx, cfg)
	defer closeCache()

	registry := location.NewRegistry(database.NewLocationStorage(db), cache, log.Named("location"))
	hub := api.NewEventHub(cfg.Server.AllowedOrigins, log.Named("events"))
	service := subdivision.NewService(database.NewSubdivisionStorage(db), registry, hub, opts, log.Named("subdivision"))

	hubCtx, stopHub := context.WithCancel(context.Background())
	defer stopHub()
	go hub.Run(hubCtx)

	server := &http.Server{
		Addr:         net.JoinHostPort(cfg.Server.Host, cfg.Server.Port),
		Handler:      api.NewRouter(cfg, service, hub, log.Named("http")),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("server starting",
			zap.String("addr", server.Addr),
			zap.String("api_base", cfg.Server.APIBase),
			zap.String("environment", cfg.Server.Environment),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	stopHub()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func serviceOptions(cfg config.GeometryConfig) (subdivision.Options, error) {
	reconstruction, err := location.ParseReconstruction(cfg.Reconstruction)
	if err != nil {
		return subdivision.Options{}, err
	}
	policy, err := geometry.ParseRepresentativePolicy(cfg.RepresentativePoint)
	if err != nil {
		return subdivision.Options{}, err
	}
	return subdivision.Options{
		Reconstruction: reconstruction,
		Policy:         policy,
		SearchRadius:   cfg.SearchRadiusMeters,
	}, nil
}

// locationCache builds the in-process LRU and, when Redis is enabled and
// reachable, a shared Redis tier behind it.
func locationCache(ctx context.Context, cfg *config.Config) (location.Cache, func()) {
	lru := location.NewLRU(cfg.Geometry.LocationCacheSize)
	if !cfg.Redis.Enabled {
		return lru, func() {}
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr(),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		log.Warn("redis unavailable, using in-process location cache only",
			zap.String("addr", cfg.Redis.Addr()), zap.Error(err))
		_ = client.Close()
		return lru, func() {}
	}

	log.Info("redis location cache enabled", zap.String("addr", cfg.Redis.Addr()))
	tiered := location.TieredCache{lru, location.NewRedisCache(client, cfg.Redis.CacheTTL, log.Named("redis"))}
	return tiered, func() { _ = client.Close() }
}
