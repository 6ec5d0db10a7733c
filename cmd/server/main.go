package main

import (
	"flag"
	"fmt"
	"os"

	"streamevents/internal/config"
	"streamevents/internal/database"
	"streamevents/internal/log"
	"streamevents/internal/server"
)

func main() {
	configPath := flag.String("config", "./config.yaml", "path to the analysis config")
	addr := flag.String("addr", ":8080", "listen address")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if err := log.Init(cfg.Debug); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer log.Sync()

	db, err := database.NewDB(config.GetDatabaseDriver(), config.GetDatabaseDSN())
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer db.Close()

	httpServer := server.NewServer(db)

	log.Infof("Starting server on %s", *addr)
	if err := httpServer.Start(*addr); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}
