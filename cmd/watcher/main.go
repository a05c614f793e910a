package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"clore-watch/internal/config"
	"clore-watch/internal/database"
	"clore-watch/internal/services/clore"
	"clore-watch/internal/services/monitor"
	"clore-watch/internal/store"

	"github.com/go-co-op/gocron"
	"github.com/joho/godotenv"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found")
	}

	cfg := config.Load()

	db, err := database.Initialize(cfg.DatabaseURL)
	if err != nil {
		log.Fatal("Failed to connect to database:", err)
	}

	st := store.New(db)
	registry := clore.NewRegistry(cfg.CloreAPIBaseURL, cfg.RequestSpacing)

	balances := monitor.NewBalanceMonitor(st, registry, cfg.BalanceCheckInterval, cfg.CloreToUSD, cfg.BTCToUSD,
		log.New(os.Stdout, "[BalanceMonitor] ", log.LstdFlags))
	servers := monitor.NewServerMonitor(st, registry, cfg.ServerCheckInterval, cfg.CloreToUSD, cfg.HuntDedupTTL,
		log.New(os.Stdout, "[ServerMonitor] ", log.LstdFlags))
	hunts := monitor.NewHuntMonitor(st, registry, cfg.HuntCheckInterval, cfg.CloreToUSD, cfg.HuntDedupTTL,
		log.New(os.Stdout, "[HuntMonitor] ", log.LstdFlags))

	archiverLog := log.New(os.Stdout, "[Archiver] ", log.LstdFlags)
	archiver := monitor.NewArchiver(st, registry, cfg.CloreToUSD, archiverLog)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup
	for _, run := range []func(context.Context){balances.Run, servers.Run, hunts.Run} {
		wg.Add(1)
		go func(run func(context.Context)) {
			defer wg.Done()
			run(ctx)
		}(run)
	}

	// Hourly marketplace archive for price history
	scheduler := gocron.NewScheduler(time.UTC)
	if _, err := scheduler.Every(1).Hour().Do(func() {
		if err := archiver.Archive(ctx); err != nil {
			archiverLog.Printf("archive failed: %v", err)
		}
	}); err != nil {
		log.Fatal("Failed to schedule archiver:", err)
	}
	scheduler.StartAsync()

	log.Printf("Watcher started (PID: %d)", os.Getpid())
	log.Printf("Intervals: balance=%v server=%v hunt=%v", cfg.BalanceCheckInterval, cfg.ServerCheckInterval, cfg.HuntCheckInterval)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	log.Println("Shutdown signal received, stopping monitors...")
	scheduler.Stop()
	cancel()
	wg.Wait()
	log.Println("Watcher stopped")
}
