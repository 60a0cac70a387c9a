package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"bizdesk.org/internal/auth"
	"bizdesk.org/internal/httpapi"
	"bizdesk.org/internal/obs"
	"bizdesk.org/internal/token"
)

var (
	version = "0.3.0"
	commit  = "dev"
)

func main() {
	obs.Init()
	obs.InitBuildInfo(version, commit)

	codec, err := token.FromEnv()
	if err != nil {
		log.Fatalf("token config: %v", err)
	}

	dsn := os.Getenv("BIZDESK_PG_DSN")
	if dsn == "" {
		log.Fatal("BIZDESK_PG_DSN is not configured")
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	store := auth.NewPGStore(db)

	api, err := httpapi.New(httpapi.Config{
		Codec:         codec,
		Users:         store.Users(),
		Businesses:    store.Businesses(),
		Memberships:   store.Memberships(),
		ReadyProbe:    httpapi.ReadyProbe{DB: db},
		Version:       version,
		SecureCookies: os.Getenv("APP_ENV") == "production",
	})
	if err != nil {
		log.Fatalf("wire api: %v", err)
	}

	addr := os.Getenv("BIZDESK_ADDR")
	if addr == "" {
		addr = ":8080"
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("Starting bizdesk-api %s on %s", version, srv.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(ctx)
	_ = db.Close()
	log.Println("Stopped")
}
