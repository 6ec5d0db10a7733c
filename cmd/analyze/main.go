package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"

	"streamevents/internal/config"
	"streamevents/internal/database"
	"streamevents/internal/detector"
	"streamevents/internal/log"
	"streamevents/internal/metrics"
	"streamevents/internal/models"
	"streamevents/internal/series"
	"streamevents/internal/stream"
	"streamevents/internal/summary"
)

func main() {
	configPath := flag.String("config", "./config.yaml", "path to the analysis config")
	useDB := flag.Bool("db", true, "store results in the database")
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

	detCfg, err := cfg.Detector()
	if err != nil {
		log.Fatalf("Invalid analysis config: %v", err)
	}
	normalizer, err := series.NewNormalizer(cfg.NormalizeOptions())
	if err != nil {
		log.Fatalf("Invalid normalize config: %v", err)
	}
	anomalyDetector, err := detector.NewAnomalyDetector(detCfg, normalizer)
	if err != nil {
		log.Fatalf("Failed to create detector: %v", err)
	}

	var db *database.DB
	if *useDB {
		db, err = database.NewDB(config.GetDatabaseDriver(), config.GetDatabaseDSN())
		if err != nil {
			log.Fatalf("Failed to initialize database: %v", err)
		}
		defer db.Close()
	}

	stations, err := resolveStations(cfg, db)
	if err != nil {
		log.Fatalf("Failed to resolve stations: %v", err)
	}
	if len(stations) == 0 {
		log.Fatalf("No stations to analyze. Configure stations, data.stations_csv, or run the seed job first.")
	}
	log.Infof("Found %d stations", len(stations))

	p := &pipeline{
		detector:  anomalyDetector,
		cfg:       cfg,
		db:        db,
		table:     summary.NewTable(stations),
		seriesDir: cfg.Output.SeriesDir,
		workers:   cfg.Workers,
	}

	if cfg.Redis.Enabled {
		redisCfg := config.GetRedisConfig()
		redisClient := redis.NewClient(&redis.Options{
			Addr:     redisCfg.Addr,
			Password: redisCfg.Password,
			DB:       redisCfg.DB,
		})
		defer redisClient.Close()
		p.publisher = stream.NewPublisher(redisClient, redisCfg.Stream)
	}

	// Run once; scheduling is left to the container runner
	run := p.run(context.Background(), stations)

	if cfg.Output.SummaryPath != "" {
		if err := writeSummary(cfg.Output.SummaryPath, p.table); err != nil {
			log.Fatalf("Failed to write summary: %v", err)
		}
		log.Infof("✓ Wrote summary for %d stations to %s", len(p.table.Stations()), cfg.Output.SummaryPath)
	}

	if run.Errors > 0 {
		log.Warnf("Analysis run %s completed with %d errors", run.ID, run.Errors)
	}
}

// resolveStations prefers the configured list, then the site listing CSV,
// then the stations table.
func resolveStations(cfg *config.Config, db *database.DB) ([]string, error) {
	if len(cfg.Stations) > 0 {
		return cfg.Stations, nil
	}

	var stations []models.Station
	switch {
	case cfg.Data.StationsCSV != "":
		list, skipped, err := series.ReadStationsFile(cfg.Data.StationsCSV)
		if err != nil {
			return nil, err
		}
		if skipped > 0 {
			log.Warnf("Skipped %d invalid station records in %s", skipped, cfg.Data.StationsCSV)
		}
		stations = list
	case db != nil:
		list, err := db.GetAllStations()
		if err != nil {
			return nil, err
		}
		stations = list
	}

	ids := make([]string, len(stations))
	for i, s := range stations {
		ids[i] = s.SiteNo
	}
	return ids, nil
}

type job struct {
	siteNo string
	kind   models.DataKind
}

// stationResult holds the outcome for a single station and data kind
type stationResult struct {
	job
	result         *detector.Result
	err            error
	processingTime time.Duration
}

type pipeline struct {
	detector  *detector.AnomalyDetector
	cfg       *config.Config
	db        *database.DB
	publisher *stream.Publisher
	table     *summary.Table
	seriesDir string
	workers   int
}

// run analyzes every station for every configured data kind with a worker
// pool. A single collector owns the summary table, database and stream.
func (p *pipeline) run(ctx context.Context, stations []string) *models.AnalysisRun {
	startTime := time.Now()
	run := &models.AnalysisRun{ID: uuid.New().String(), StartedAt: startTime.UTC()}

	if p.db != nil {
		if err := p.db.StartRun(run); err != nil {
			log.Errorf("Failed to record run start: %v", err)
		}
	}

	kinds := p.cfg.DataKinds()
	var jobs []job
	for _, site := range stations {
		for _, kind := range kinds {
			jobs = append(jobs, job{siteNo: site, kind: kind})
		}
	}

	numWorkers := p.workers
	if len(jobs) < numWorkers {
		numWorkers = len(jobs)
	}
	if numWorkers < 1 {
		numWorkers = 1
	}
	log.Infof("Running analysis %s: %d stations x %d kinds with %d workers", run.ID, len(stations), len(kinds), numWorkers)

	jobCh := make(chan job, len(jobs))
	results := make(chan stationResult, len(jobs))

	var wg sync.WaitGroup
	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go p.worker(jobCh, results, &wg)
	}

	for _, j := range jobs {
		jobCh <- j
	}
	close(jobCh)

	go func() {
		wg.Wait()
		close(results)
	}()

	processed, missing, totalExceedances := 0, 0, 0
	for res := range results {
		processed++
		metrics.RecordStation(string(res.kind), res.err)

		if res.err != nil {
			if errors.Is(res.err, series.ErrNotFound) {
				log.Warnf("[%d/%d] - %s (%s): no export found", processed, len(jobs), res.siteNo, res.kind)
				missing++
				continue
			}
			log.Errorf("[%d/%d] ❌ %s (%s): %v (%.1fs)",
				processed, len(jobs), res.siteNo, res.kind, res.err, res.processingTime.Seconds())
			run.Errors++
			continue
		}

		n, err := p.collect(ctx, run.ID, res.result)
		if err != nil {
			log.Errorf("[%d/%d] ❌ %s (%s): %v", processed, len(jobs), res.siteNo, res.kind, err)
			run.Errors++
			continue
		}
		run.Stations++
		totalExceedances += n

		log.Infof("[%d/%d] ✓ %s (%s): %d exceedances, %d gaps (%.1fs)",
			processed, len(jobs), res.siteNo, res.kind, n, len(res.result.Gaps), res.processingTime.Seconds())
	}

	run.CompletedAt = time.Now().UTC()
	if p.db != nil {
		if err := p.db.CompleteRun(run); err != nil {
			log.Errorf("Failed to record run completion: %v", err)
		}
	}

	totalDuration := time.Since(startTime)
	log.Infof("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	log.Infof("Analysis complete in %.1f seconds", totalDuration.Seconds())
	log.Infof("  Series: %d analyzed, %d missing, %d errors", run.Stations, missing, run.Errors)
	log.Infof("  Exceedances: %d flagged", totalExceedances)
	log.Infof("  Workers: %d", numWorkers)
	log.Infof("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	return run
}

// worker analyzes jobs from the jobs channel
func (p *pipeline) worker(jobs <-chan job, results chan<- stationResult, wg *sync.WaitGroup) {
	defer wg.Done()

	for j := range jobs {
		startTime := time.Now()
		result, err := p.detector.AnalyzeStation(p.cfg.DataDir(j.kind), j.siteNo, j.kind)
		results <- stationResult{
			job:            j,
			result:         result,
			err:            err,
			processingTime: time.Since(startTime),
		}
	}
}

// collect merges one result into the summary table and forwards it to the
// configured sinks. It returns the number of exceedances.
func (p *pipeline) collect(ctx context.Context, runID string, res *detector.Result) (int, error) {
	p.table.Upsert(res.SiteNo, res.Frequencies)

	sr := res.StationResult(runID)
	for _, e := range sr.Exceedances {
		metrics.ExceedancesTotal.WithLabelValues(e.Flag, string(e.Kind)).Inc()
	}
	metrics.GapsTotal.WithLabelValues(string(res.Kind)).Add(float64(len(res.Gaps)))

	if p.seriesDir != "" {
		if err := writeSeries(p.seriesDir, res); err != nil {
			return 0, err
		}
	}

	if p.db != nil {
		if err := p.db.StoreStationResult(sr); err != nil {
			return 0, err
		}
	}

	if p.publisher != nil {
		if err := p.publisher.Publish(ctx, sr); err != nil {
			// publish failures are logged only
			log.Warnf("%v", err)
		}
	}

	return len(sr.Exceedances), nil
}

func seriesPath(dir string, res *detector.Result) string {
	return filepath.Join(dir, fmt.Sprintf("%s_%s.csv", res.SiteNo, res.Kind.Suffix()))
}

func writeSeries(dir string, res *detector.Result) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", dir, err)
	}
	path := seriesPath(dir, res)
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := res.Frame.WriteCSV(f); err != nil {
		f.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return f.Close()
}

func writeSummary(path string, table *summary.Table) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := table.WriteCSV(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
