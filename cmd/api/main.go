package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"foodbridge.org/internal/auth"
	"foodbridge.org/internal/catalog"
	"foodbridge.org/internal/config"
	"foodbridge.org/internal/httpapi"
	"foodbridge.org/internal/obs"
	"foodbridge.org/internal/store/pg"
	"foodbridge.org/internal/stream"
)

var (
	version = "1.2.0"
	commit  = "dev"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	obs.Init()
	obs.InitBuildInfo(version, commit)

	policy := catalog.Policy{AllowOwnClaim: cfg.AllowOwnClaim}

	// Postgres when a DSN is configured, in-process otherwise.
	var (
		svc catalog.Service
		db  *sql.DB
	)
	if cfg.PostgresDSN != "" {
		store, err := pg.Open(cfg.PostgresDSN, policy)
		if err != nil {
			log.Fatalf("open db: %v", err)
		}
		svc = store
		db = store.DB()
	} else {
		svc = catalog.NewInMemory(policy)
		log.Print("FOODBRIDGE_PG_DSN not set, using in-memory catalog")
	}

	issuer, err := auth.NewIssuer(cfg.AuthSecret)
	if err != nil {
		log.Fatalf("auth: %v", err)
	}

	api := httpapi.New(httpapi.ReadyProbe{DB: db}, issuer, svc, stream.New(), httpapi.Options{
		Version:        version,
		SecureCookies:  cfg.IsProduction(),
		SessionTTL:     cfg.SessionTTL,
		AllowedOrigins: cfg.CORSOrigins,
		RateBurst:      cfg.RateBurst,
		RatePerSec:     cfg.RatePerSec,
	})

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		// No WriteTimeout: /events holds the response open indefinitely.
		IdleTimeout: 60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		log.Printf("Starting foodbridge-api %s on %s", version, srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	<-ctx.Done()
	log.Print("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(shutdownCtx)
	if db != nil {
		_ = db.Close()
	}
	log.Print("Stopped")
}
