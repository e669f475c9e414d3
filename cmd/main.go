package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/freightdesk/loadboard/internal/clock"
	"github.com/freightdesk/loadboard/internal/config"
	"github.com/freightdesk/loadboard/internal/db"
	"github.com/freightdesk/loadboard/internal/directory"
	"github.com/freightdesk/loadboard/internal/handlers"
	"github.com/freightdesk/loadboard/internal/metrics"
	"github.com/freightdesk/loadboard/internal/notifier"
	"github.com/freightdesk/loadboard/internal/repository"
	"github.com/freightdesk/loadboard/internal/router"
	"github.com/freightdesk/loadboard/internal/services"
	"github.com/freightdesk/loadboard/internal/sweeper"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
)

func main() {
	cfg, err := config.LoadConfig(".")
	if err != nil {
		log.Fatal("cannot load config:", err)
	}

	runDBMigration(cfg.MigrationURL, cfg.PostgresConn)

	dbPool, err := db.InitDb(cfg)
	if err != nil {
		log.Fatalf("error initializing database: %v", err)
	}
	defer dbPool.Close()

	logger := log.New(os.Stdout, "INFO: ", log.LstdFlags)
	ctx := context.Background()

	var events notifier.Notifier = notifier.Nop{}
	if cfg.RedisURL != "" {
		rdb, err := db.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			log.Fatalf("error initializing redis: %v", err)
		}
		defer rdb.Close()
		events = notifier.NewRedisNotifier(rdb, logger)
	}

	postingRepo := repository.NewPostgresPostingRepository(dbPool)
	bidRepo := repository.NewPostgresBidRepository(dbPool)
	dir := directory.NewPostgresDirectory(dbPool)
	clk := clock.System()
	collector := metrics.NewCollector()

	postingService := services.NewPostingService(postingRepo, bidRepo, dir, dir, events, clk)
	bidService := services.NewBidService(bidRepo, postingRepo, dir, events, clk, collector)

	sweep := sweeper.New(postingRepo, bidRepo, events, clk, collector, logger, cfg.SweepIntervalS)
	if err := sweep.Start(ctx); err != nil {
		log.Fatalf("error starting sweeper: %v", err)
	}
	defer sweep.Stop()

	timeout := time.Duration(cfg.RequestTimeoutS) * time.Second
	postingHandler := handlers.NewPostingHandler(postingService, logger, timeout)
	bidHandler := handlers.NewBidHandler(bidService, logger, timeout)

	routes := router.InitRoutes(postingHandler, bidHandler, collector.Handler())

	log.Printf("server is listening on %s...", cfg.ServerAddress)
	if err := http.ListenAndServe(cfg.ServerAddress, routes); err != nil {
		log.Fatalf("server failed: %v", err)
	}
}

func runDBMigration(migrationURL string, dbSource string) {
	migration, err := migrate.New(migrationURL, dbSource)
	if err != nil {
		log.Fatal("cannot create a new migrate instance", err)
	}

	if err = migration.Up(); err != nil && err != migrate.ErrNoChange {
		log.Fatal("failed to run migrate up:", err)
	}
	log.Println("db migrated successfully")
}
