package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ignite/waitlist-service/internal/api"
	"github.com/ignite/waitlist-service/internal/beehiiv"
	"github.com/ignite/waitlist-service/internal/config"
	"github.com/ignite/waitlist-service/internal/dispatch"
	"github.com/ignite/waitlist-service/internal/pkg/distlock"
	"github.com/ignite/waitlist-service/internal/repository/postgres"
	"github.com/ignite/waitlist-service/internal/service/reconcile"
	"github.com/ignite/waitlist-service/internal/service/signup"

	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/redis/go-redis/v9"
)

// checkPortAvailable verifies that the target port is not already in use.
// This prevents confusion from stale processes occupying the port.
func checkPortAvailable(host string, port int) error {
	addr := fmt.Sprintf("%s:%d", host, port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("port %d is already in use (addr %s): %v\n"+
			"  Hint: Run 'lsof -i :%d' to find the blocking process", port, addr, err, port)
	}
	ln.Close()
	return nil
}

func extractHost(dsn string) string {
	at := strings.Index(dsn, "@")
	if at < 0 {
		return "(unknown)"
	}
	rest := dsn[at+1:]
	if slash := strings.Index(rest, "/"); slash >= 0 {
		rest = rest[:slash]
	}
	return rest
}

func main() {
	configPath := "config/config.yaml"
	if p := os.Getenv("CONFIG_PATH"); p != "" {
		configPath = p
	}

	cfg, err := config.LoadFromEnv(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid config: %v", err)
	}

	if err := checkPortAvailable(cfg.Server.GetHost(), cfg.Server.Port); err != nil {
		log.Fatalf("Port check failed: %v", err)
	}

	db, err := sql.Open("postgres", cfg.Database.URL)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()
	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.Database.ConnMaxLifetime())

	pingCtx, pingCancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := db.PingContext(pingCtx); err != nil {
		pingCancel()
		log.Fatalf("Database unreachable at %s: %v", extractHost(cfg.Database.URL), err)
	}
	pingCancel()
	log.Printf("Connected to database at %s", extractHost(cfg.Database.URL))

	// Redis is optional: without it the bulk-sync lock falls back to a
	// Postgres advisory lock.
	var redisClient *redis.Client
	if cfg.Redis.Enabled && cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := redisClient.Ping(context.Background()).Err(); err != nil {
			log.Printf("Redis unreachable (%v), bulk-sync lock will use Postgres", err)
			redisClient = nil
		}
	}

	repo := postgres.NewWaitlistRepo(db)
	newsletter := beehiiv.NewClient(cfg.Beehiiv)
	dispatcher := dispatch.NewDispatcher(cfg.Email)

	coordinator := signup.NewCoordinator(repo, newsletter, dispatcher, signup.Config{
		WelcomeSubject: cfg.Email.WelcomeSubject,
		WelcomeHTML:    cfg.Email.WelcomeHTML,
		WelcomeText:    cfg.Email.WelcomeText,
	})
	job := reconcile.NewJob(repo, newsletter, cfg.Sync)
	syncLock := distlock.NewLock(redisClient, db, "waitlist:bulk-sync", cfg.Sync.LockTTL())

	handlers := api.NewHandlers(coordinator, job, repo, syncLock, cfg.Sync.Token)
	server := api.NewServer(handlers)

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		addr := fmt.Sprintf("%s:%d", cfg.Server.GetHost(), cfg.Server.Port)
		log.Printf("Starting server on %s", addr)
		if err := server.ListenAndServe(addr); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	<-done
	log.Println("Shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}
	log.Println("Server stopped")
}
