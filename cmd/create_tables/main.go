// Command create_tables manages the star schema: it creates all five
// tables, optionally dropping them first for a full reset.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"sparkify/internal/config"
	"sparkify/internal/storage"

	_ "sparkify/internal/storage/all"
)

func main() {
	cfgPath := flag.String("config", "configs/sample.json", "pipeline config JSON path")
	drop := flag.Bool("drop", false, "drop all tables before creating them")
	flag.Parse()

	p, err := config.Load(*cfgPath)
	if err != nil {
		fatalf("%v", err)
	}
	if p.Storage.Kind == "" || p.Storage.DSN == "" {
		fatalf("config %s: storage.kind and storage.dsn are required", *cfgPath)
	}

	ctx := context.Background()
	repo, err := storage.Connect(ctx,
		storage.Config{Kind: p.Storage.Kind, DSN: p.Storage.ExpandedDSN()},
		storage.DefaultRetryConfig())
	if err != nil {
		fatalf("connect storage: %v", err)
	}
	defer repo.Close()

	if *drop {
		if err := repo.DropTables(ctx); err != nil {
			fatalf("drop tables: %v", err)
		}
		log.Printf("dropped tables kind=%s", p.Storage.Kind)
	}

	if err := repo.CreateTables(ctx); err != nil {
		fatalf("create tables: %v", err)
	}
	log.Printf("created tables kind=%s", p.Storage.Kind)
}

func fatalf(format string, a ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", a...)
	os.Exit(1)
}
