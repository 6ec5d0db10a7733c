package main

import (
	"errors"
	"flag"
	"fmt"
	"os"

	"streamevents/internal/config"
	"streamevents/internal/database"
	"streamevents/internal/log"
	"streamevents/internal/series"
)

func main() {
	configPath := flag.String("config", "./config.yaml", "path to the analysis config")
	csvPath := flag.String("csv", "", "USGS site listing (defaults to data.stations_csv)")
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

	path := *csvPath
	if path == "" {
		path = cfg.Data.StationsCSV
	}
	if path == "" {
		log.Fatalf("No site listing given. Use -csv or set data.stations_csv.")
	}

	db, err := database.NewDB(config.GetDatabaseDriver(), config.GetDatabaseDSN())
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer db.Close()

	stations, skipped, err := series.ReadStationsFile(path)
	if err != nil {
		log.Fatalf("Failed to read %s: %v", path, err)
	}
	log.Infof("Read %d stations from %s (%d invalid records)", len(stations), path, skipped)

	count := 0
	for _, station := range stations {
		if err := db.InsertStation(station); err != nil {
			if errors.Is(err, database.ErrDuplicateStation) {
				log.Debugf("Station already exists: %s", station.SiteNo)
			} else {
				log.Warnf("Failed to insert station %s: %v", station.SiteNo, err)
			}
			skipped++
			continue
		}

		count++
		if count%100 == 0 {
			log.Infof("Inserted %d stations...", count)
		}
	}

	log.Infof("Import complete! Successfully inserted %d stations, skipped %d", count, skipped)
}
