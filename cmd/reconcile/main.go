// Command reconcile runs the drift-repair job from the command line,
// bypassing the HTTP endpoint. Useful from cron or for one-off repairs.
package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/ignite/waitlist-service/internal/beehiiv"
	"github.com/ignite/waitlist-service/internal/config"
	"github.com/ignite/waitlist-service/internal/repository/postgres"
	"github.com/ignite/waitlist-service/internal/service/reconcile"

	_ "github.com/lib/pq" // PostgreSQL driver
)

func main() {
	var (
		configPath = flag.String("config", "config/config.yaml", "path to config file")
		mode       = flag.String("mode", "scan-drift", "scan-drift | resync-one | check-status")
		email      = flag.String("email", "", "target address for resync-one / check-status")
		batchSize  = flag.Int("batch", 0, "override configured batch size")
		dryRun     = flag.Bool("dry-run", false, "report what would happen without remote calls or writes")
	)
	flag.Parse()

	cfg, err := config.LoadFromEnv(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid config: %v", err)
	}

	db, err := sql.Open("postgres", cfg.Database.URL)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	repo := postgres.NewWaitlistRepo(db)
	job := reconcile.NewJob(repo, beehiiv.NewClient(cfg.Beehiiv), cfg.Sync)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	var out any
	switch *mode {
	case "scan-drift":
		out, err = job.SyncAll(ctx, reconcile.Options{BatchSize: *batchSize, DryRun: *dryRun})
	case "resync-one":
		if *email == "" {
			log.Fatal("-email is required for resync-one")
		}
		out, err = job.ResyncOne(ctx, *email, *dryRun)
	case "check-status":
		if *email == "" {
			log.Fatal("-email is required for check-status")
		}
		out, err = job.CheckStatus(ctx, *email)
	default:
		log.Fatalf("unknown mode %q", *mode)
	}
	if err != nil {
		log.Fatalf("%s failed: %v", *mode, err)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		log.Fatalf("encode result: %v", err)
	}
}
