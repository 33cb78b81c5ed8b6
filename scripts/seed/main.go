// Seed adds sample todos through the todo service. Run from project root:
// go run ./scripts/seed [-n 50]
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"todo-api/internal/config"
	"todo-api/internal/database"
	"todo-api/internal/service"
)

var samples = []string{
	"Buy groceries",
	"Walk the dog",
	"Finish project report",
	"Call the dentist",
	"Water the plants",
	"Renew passport",
	"Book flight tickets",
	"Clean the garage",
}

func main() {
	n := flag.Int("n", len(samples), "number of todos to create")
	flag.Parse()

	if err := config.LoadEnvFile(".env"); err != nil {
		fmt.Fprintln(os.Stderr, "Reading .env failed:", err)
	}
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Config:", err)
		os.Exit(1)
	}

	ctx := context.Background()
	gw, err := database.Open(ctx, database.Options{
		Driver:         cfg.DBDriver,
		DSN:            cfg.DSN(),
		PoolSize:       cfg.DBPoolSize,
		AcquireTimeout: cfg.DBAcquireTimeout,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "DB connection failed:", err)
		os.Exit(1)
	}
	defer gw.Close()

	if err := gw.Migrate(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Schema failed:", err)
		os.Exit(1)
	}

	svc := service.New(gw)
	start := time.Now()
	for i := 0; i < *n; i++ {
		title := samples[i%len(samples)]
		if i >= len(samples) {
			title = fmt.Sprintf("%s #%d", title, i/len(samples)+1)
		}
		completed := i%3 == 0
		if _, err := svc.Create(ctx, service.CreateInput{Title: &title, Completed: &completed}); err != nil {
			fmt.Fprintln(os.Stderr, "\nCreate failed:", err)
			os.Exit(1)
		}
		fmt.Printf("\rInserted %d / %d", i+1, *n)
	}
	fmt.Printf("\nDone: %d todos in %v\n", *n, time.Since(start))
}
