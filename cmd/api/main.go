package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"go.uber.org/zap"

	"github.com/jeovahfialho/moex-history/internal/api"
	"github.com/jeovahfialho/moex-history/internal/config"
	"github.com/jeovahfialho/moex-history/internal/ingestion"
	"github.com/jeovahfialho/moex-history/internal/service"
	"github.com/jeovahfialho/moex-history/internal/storage/cache"
	"github.com/jeovahfialho/moex-history/internal/storage/postgres"
	"github.com/jeovahfialho/moex-history/internal/storage/sqlite"
	pkglogger "github.com/jeovahfialho/moex-history/pkg/logger"
)

// @title MOEX History API
// @version 1.0
// @description API para consulta do histórico de negociação da Bolsa de Moscou (ISS)

// @host localhost:8000
// @BasePath /api/v1
// @schemes http https
func main() {
	cfg := config.Load()

	if err := pkglogger.Init(cfg.LogLevel, cfg.LogFormat, cfg.Development()); err != nil {
		log.Fatal("Erro ao inicializar logger:", err)
	}
	defer pkglogger.Close()

	endpoints, err := cfg.Endpoints()
	if err != nil {
		pkglogger.Fatal("erro ao carregar endpoints", zap.Error(err))
	}

	builder := ingestion.NewRequestBuilder(endpoints)
	downloader := ingestion.NewDownloader(cfg.ISSHTTPTimeout)
	fetcher := ingestion.NewFetcher(builder, downloader, cfg.ISSMaxPages)

	checks := map[string]api.HealthChecker{}
	var sinks []service.HistorySink

	if db := connectPostgres(cfg); db != nil {
		defer db.Close()
		sinks = append(sinks, ingestion.NewBulkLoader(db.Pool()))
		checks["database"] = db
	}

	if cfg.SQLitePath != "" {
		store, err := sqlite.Open(context.Background(), cfg.SQLitePath)
		if err != nil {
			pkglogger.Fatal("erro ao abrir sqlite", zap.String("path", cfg.SQLitePath), zap.Error(err))
		}
		defer store.Close()
		sinks = append(sinks, store)
		checks["sqlite"] = store
	}

	sessionCache := connectSessionStore(cfg)
	defer sessionCache.Close()
	checks["sessions"] = sessionCache

	history := service.NewHistoryService(fetcher, sinks...)
	sessions := service.NewSessionService(history, service.NewSessionStore(sessionCache))
	handler := api.NewHandler(history, sessions, builder, checks)

	app := fiber.New(fiber.Config{
		ServerHeader:            "MOEX-History",
		AppName:                 "MOEX History v1.0.0",
		ReadTimeout:             cfg.APIReadTimeout,
		WriteTimeout:            cfg.APIWriteTimeout,
		IdleTimeout:             120 * time.Second,
		ProxyHeader:             "X-Forwarded-For",
		EnableTrustedProxyCheck: true,
		BodyLimit:               1 * 1024 * 1024,
	})

	app.Use(recover.New())
	app.Use(logger.New(logger.Config{
		Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
	}))
	app.Use(compress.New(compress.Config{
		Level: compress.LevelBestSpeed,
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,DELETE,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept,X-Request-ID",
	}))

	api.SetupRoutes(app, handler, api.RouteOptions{
		RateLimit:      cfg.APIRateLimit,
		MetricsEnabled: cfg.MetricsEnabled,
	})

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		<-sigChan

		pkglogger.Info("encerrando servidor")
		if err := app.Shutdown(); err != nil {
			pkglogger.Error("erro ao encerrar servidor", zap.Error(err))
		}
	}()

	addr := fmt.Sprintf("%s:%s", cfg.APIHost, cfg.APIPort)
	pkglogger.Info("iniciando servidor",
		zap.String("addr", addr),
		zap.Int("sinks", len(sinks)))

	if err := app.Listen(addr); err != nil {
		pkglogger.Fatal("erro no servidor", zap.Error(err))
	}
}

// connectPostgres returns nil when no database is configured or reachable;
// the export is optional.
func connectPostgres(cfg *config.Config) *postgres.DB {
	if cfg.DatabaseURL == "" {
		return nil
	}

	db, err := postgres.NewDB(cfg)
	if err != nil {
		log.Printf("⚠️ PostgreSQL não disponível: %v (continuando sem exportação)", err)
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := db.EnsureSchema(ctx); err != nil {
		log.Printf("⚠️ Erro ao preparar schema: %v (continuando sem exportação)", err)
		db.Close()
		return nil
	}

	log.Println("✅ Conectado ao PostgreSQL")
	return db
}

type sessionBackend interface {
	service.KeyValueStore
	HealthCheck(ctx context.Context) error
	Close() error
}

func connectSessionStore(cfg *config.Config) sessionBackend {
	if cfg.RedisURL != "" {
		redisCache, err := cache.NewRedisCache(cfg.RedisURL, "session:", cfg.SessionTTL)
		if err == nil {
			log.Println("✅ Sessões no Redis")
			return redisCache
		}
		log.Printf("⚠️ Redis não disponível: %v (sessões em memória)", err)
	}

	return cache.NewMemoryCache(cfg.SessionMaxEntries, cfg.SessionTTL)
}
