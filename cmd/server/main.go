// Command server runs the repair marketplace HTTP API.
//
//	@title			Repair Marketplace API
//	@version		1.0
//	@description	Chats, repair orders, invoices and service requests.
//	@BasePath		/api/v1
package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"gorm.io/gorm"

	"github.com/tbourn/go-repair-backend/docs"
	"github.com/tbourn/go-repair-backend/internal/catalog"
	"github.com/tbourn/go-repair-backend/internal/config"
	"github.com/tbourn/go-repair-backend/internal/docstore"
	httpapi "github.com/tbourn/go-repair-backend/internal/http"
	"github.com/tbourn/go-repair-backend/internal/observability"
	"github.com/tbourn/go-repair-backend/internal/repo"
	"github.com/tbourn/go-repair-backend/internal/services"
	"github.com/tbourn/go-repair-backend/internal/sysutil"
)

// version is set at build time with -ldflags "-X main.version=...".
var version string

const purgeEvery = time.Hour

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}
	logger := sysutil.InitLogger(os.Stderr, cfg.LogLevel, cfg.LogPretty, cfg.OTEL.ServiceName)
	appVersion := sysutil.FirstNonEmpty(os.Getenv("APP_VERSION"), version, "dev")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger, appVersion); err != nil {
		logger.Fatal().Err(err).Msg("server exited")
	}
}

func run(ctx context.Context, cfg config.Config, logger zerolog.Logger, appVersion string) error {
	shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL, appVersion)
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownOTel(sctx); err != nil {
			logger.Warn().Err(err).Msg("otel shutdown")
		}
	}()

	db, err := repo.Open(cfg.Store.Driver, cfg.Store.DSN)
	if err != nil {
		return err
	}
	if err := repo.AutoMigrate(db); err != nil {
		return err
	}
	if cfg.OTEL.Enabled {
		if err := observability.InstrumentDB(db); err != nil {
			return err
		}
	}

	st, closeBus, err := openStore(ctx, db, cfg.Store, logger)
	if err != nil {
		return err
	}
	defer closeBus()

	if cfg.CatalogSeedPath != "" {
		businesses, err := catalog.LoadSeedFile(cfg.CatalogSeedPath)
		if err != nil {
			return err
		}
		n, err := services.NewBusinessService(st).Seed(ctx, businesses)
		if err != nil {
			return err
		}
		logger.Info().Int("count", n).Str("path", cfg.CatalogSeedPath).Msg("catalog seeded")
	}

	go purgeIdempotency(ctx, db, logger)

	gin.SetMode(cfg.GinMode)
	r := gin.New()
	r.Use(gzip.Gzip(gzip.DefaultCompression,
		gzip.WithExcludedPathsRegexs([]string{`/stream$`, `/ws$`, `^/metrics$`})))
	if cfg.SwaggerEnabled {
		docs.SwaggerInfo.BasePath = cfg.APIBasePath
		docs.SwaggerInfo.Version = appVersion
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}
	httpapi.RegisterRoutes(r, db, st, cfg)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", srv.Addr).Str("version", appVersion).Msg("listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info().Msg("shutting down")
	sctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(sctx)
}

// openStore builds the document store, fanning changes out over Redis when
// an address is configured.
func openStore(ctx context.Context, db *gorm.DB, sc config.StoreConfig, logger zerolog.Logger) (docstore.Store, func(), error) {
	indexes := docstore.DefaultIndexes
	if sc.Indexes != "" {
		parsed, err := docstore.ParseIndexes(sc.Indexes)
		if err != nil {
			return nil, nil, err
		}
		indexes = parsed
	}

	storeLog := logger.With().Str("component", "docstore").Logger()
	opts := docstore.Options{Indexes: indexes, Logger: &storeLog}

	if sc.RedisAddr == "" {
		bus := docstore.NewLocalBus()
		opts.Bus = bus
		return docstore.NewGormStore(db, opts), func() { _ = bus.Close() }, nil
	}

	bus, err := docstore.NewRedisBus(ctx, sc.RedisAddr, sc.RedisChannel, logger)
	if err != nil {
		return nil, nil, err
	}
	if err := bus.StartForwarder(ctx); err != nil {
		_ = bus.Close()
		return nil, nil, err
	}
	opts.Bus = bus
	return docstore.NewGormStore(db, opts), func() { _ = bus.Close() }, nil
}

func purgeIdempotency(ctx context.Context, db *gorm.DB, logger zerolog.Logger) {
	t := time.NewTicker(purgeEvery)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			n, err := repo.PurgeExpiredIdempotency(ctx, db, now.UTC())
			if err != nil {
				logger.Warn().Err(err).Msg("idempotency purge failed")
				continue
			}
			if n > 0 {
				logger.Debug().Int64("rows", n).Msg("idempotency purged")
			}
		}
	}
}
