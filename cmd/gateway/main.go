package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"medboard.org/internal/authapi"
	"medboard.org/internal/guard"
	"medboard.org/internal/httpapi"
	"medboard.org/internal/obs"
	"medboard.org/internal/rbac"
	"medboard.org/internal/roles"
	"medboard.org/internal/session"
)

var (
	version = "0.3.1"
	commit  = "dev"
)

func main() {
	obs.Init()
	obs.InitBuildInfo(version, commit)

	apiBase := os.Getenv("MEDBOARD_API_URL")
	if apiBase == "" {
		apiBase = "http://localhost:8000/api"
	}
	client, err := authapi.NewClient(apiBase)
	if err != nil {
		log.Fatalf("auth client: %v", err)
	}

	// Token slot: Postgres when a DSN is set, a local file otherwise.
	var (
		db    *sql.DB
		store session.TokenStore
	)
	if dsn := os.Getenv("MEDBOARD_PG_DSN"); dsn != "" {
		db, err = sql.Open("pgx", dsn)
		if err != nil {
			log.Fatalf("open db: %v", err)
		}
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(10)
		db.SetConnMaxLifetime(30 * time.Minute)

		slotKey := os.Getenv("MEDBOARD_SLOT_KEY")
		if slotKey == "" {
			slotKey = defaultSlotKey()
		}
		sqlStore, err := session.NewSQLStore(db, slotKey)
		if err != nil {
			log.Fatalf("sql token store: %v", err)
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := sqlStore.EnsureSchema(ctx); err != nil {
			cancel()
			log.Fatalf("token store schema: %v", err)
		}
		cancel()
		store = sqlStore
	} else {
		path := os.Getenv("MEDBOARD_TOKEN_FILE")
		if path == "" {
			home, err := os.UserHomeDir()
			if err != nil {
				log.Fatalf("resolve home dir: %v", err)
			}
			path = filepath.Join(home, ".medboard", "token.json")
		}
		fileStore, err := session.NewFileStore(path)
		if err != nil {
			log.Fatalf("file token store: %v", err)
		}
		store = fileStore
	}

	sessions, err := session.NewManager(client, store)
	if err != nil {
		log.Fatalf("session manager: %v", err)
	}

	// Resolve any persisted session before taking traffic.
	initCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	state := sessions.Initialize(initCtx)
	cancel()
	log.Printf("session resolved: %s", state)

	registry := rbac.NewRegistry()
	resolver := rbac.NewResolver(rbac.NewEngine(), registry)
	roleSvc, err := roles.NewService(client, registry, sessions)
	if err != nil {
		log.Fatalf("role service: %v", err)
	}
	if state == session.StateAuthenticated {
		syncCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := roleSvc.Sync(syncCtx); err != nil {
			log.Printf("role sync skipped: %v", err)
		}
		cancel()
	}

	guards := guard.NewEvaluator(sessions, resolver)
	api := httpapi.New(sessions, guards, resolver, roleSvc, httpapi.ReadyProbe{DB: db}, version)

	handler := httpapi.RequestID(api.Handler())
	handler = httpapi.Logging(handler)
	handler = httpapi.SecurityHeaders(handler)
	handler = httpapi.CORS(handler)
	handler = httpapi.MaxBodyBytes(handler, 1<<20)
	handler = httpapi.RateLimit(handler, rateBurst(), ratePerSecond())

	addr := os.Getenv("MEDBOARD_LISTEN_ADDR")
	if addr == "" {
		addr = ":8088"
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("Starting medboard-gateway %s on %s", version, srv.Addr)

	// graceful shutdown
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
	if db != nil {
		_ = db.Close()
	}
	log.Println("Stopped")
}

// defaultSlotKey must be stable across restarts so the persisted session
// survives; it is host-scoped so gateways sharing a database keep separate
// slots.
func defaultSlotKey() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		return "gateway"
	}
	return "gateway-" + host
}

func rateBurst() int {
	return envInt("MEDBOARD_RATE_BURST", 20)
}

func ratePerSecond() int {
	return envInt("MEDBOARD_RATE_PER_SECOND", 10)
}

func envInt(key string, def int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return def
	}
	val, err := strconv.Atoi(raw)
	if err != nil || val <= 0 {
		log.Printf("ignoring %s=%q: want a positive integer", key, raw)
		return def
	}
	return val
}
