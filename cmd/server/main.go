package main

import (
	"context"
	"database/sql"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/go-chi/chi/v5"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"onboard/internal/audit"
	"onboard/internal/blueprint"
	"onboard/internal/docstore"
	"onboard/internal/letterhead"
	"onboard/internal/platform/config"
	"onboard/internal/platform/httpserver"
	"onboard/internal/platform/jwttoken"
	"onboard/internal/platform/logger"
	platformredis "onboard/internal/platform/redis"
	"onboard/internal/policy"
	"onboard/internal/provision"
	"onboard/internal/provision/handler"
	"onboard/internal/scope"
	"onboard/internal/visibility"
	"onboard/internal/workspace"
)

// main wires high-level dependencies, exposes the HTTP router, and keeps the
// server lifecycle small. Business logic lives in the internal packages.
func main() {
	cfg := config.FromEnv()
	log := logger.New()
	ctx := context.Background()

	var (
		store docstore.Store
		txr   docstore.Tx
	)
	if cfg.DatabaseURL == "" {
		log.Warn("no database configured, using in-memory document store")
		store, txr = docstore.NewInMemory(), docstore.NoTx{}
	} else {
		db, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			log.Error("open database failed", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		pg := docstore.NewPostgres(db)
		if err := pg.Migrate(ctx); err != nil {
			log.Error("migrate failed", "error", err)
			os.Exit(1)
		}
		store, txr = pg, docstore.NewPostgresTx(db)
	}

	redisClient, err := platformredis.New(cfg.Redis)
	if err != nil {
		log.Error("redis connect failed", "error", err)
		os.Exit(1)
	}

	kafkaSink, err := audit.NewKafkaSink(ctx, cfg.Kafka, log)
	if err != nil {
		log.Error("kafka connect failed", "error", err)
		os.Exit(1)
	}

	loader := blueprint.NewLoader(cfg.BlueprintRoot)
	policies := &policy.Source{
		Root:         cfg.BlueprintRoot,
		ExplicitPath: cfg.PolicyPath,
		Slug:         cfg.BlueprintSlug,
		Resolver:     loader,
		Logger:       log,
	}

	scopeOpts := []scope.Option{}
	if redisClient != nil {
		scopeOpts = append(scopeOpts, scope.WithRedis(redisClient, cfg.Redis.ScopeTTL))
	}
	scopes := scope.NewResolver(store, log, scopeOpts...)

	hardener := workspace.NewHardener(store)
	var sink audit.Sink
	if kafkaSink != nil {
		sink = kafkaSink
	}
	svc := provision.NewService(provision.Config{
		Loader:      loader,
		Store:       store,
		Tx:          txr,
		Hardener:    hardener,
		Letterheads: letterhead.NewApplier(loader, store, &letterhead.DiskFileStore{Root: cfg.FilesRoot}, log),
		Audits:      audit.NewPublisher(audit.NewMemory(), sink),
		Scopes:      scopes,
		Logger:      log,
		Metrics:     provision.NewMetrics(),
		Policies:    policies,
	})

	composer := visibility.NewComposer(policies, scopes, store, visibility.NewMetrics())
	tokens := jwttoken.NewService(cfg.JWTSigningKey, provision.AppName)
	h := handler.New(svc, provision.NewDoctor(store, policies), hardener, composer, store, tokens, log)

	router := chi.NewRouter()
	h.Register(router)
	router.Handle("/metrics", promhttp.Handler())

	srv := httpserver.New(cfg.Addr, router)
	log.Info("starting onboard server", "addr", cfg.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt)
	<-quit

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	kafkaSink.Close(shutdownCtx)
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", "error", err)
		os.Exit(1)
	}
}
