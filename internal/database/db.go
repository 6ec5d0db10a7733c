package database

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "modernc.org/sqlite"

	"streamevents/internal/log"
	"streamevents/internal/metrics"
	"streamevents/internal/models"
	"streamevents/internal/summary"
)

// ErrDuplicateStation is returned when a station is inserted twice
var ErrDuplicateStation = errors.New("duplicate station")

// ErrStationNotFound is returned when no station has the requested site number
var ErrStationNotFound = errors.New("station not found")

// DB represents the database connection
type DB struct {
	conn    *sql.DB
	dialect dialect
}

// NewDB creates a new database connection and initializes the schema.
// driver is "mysql" or "sqlite".
// mysql dsn: "user:pass@tcp(localhost:3306)/streamevents?parseTime=true"
// sqlite dsn: "file:streamevents.db" or ":memory:"
func NewDB(driver, dsn string) (*DB, error) {
	d, ok := dialects[driver]
	if !ok {
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	conn, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if driver == "sqlite" {
		// one writer; also keeps :memory: databases on a single connection
		conn.SetMaxOpenConns(1)
	} else {
		conn.SetMaxOpenConns(25)
		conn.SetMaxIdleConns(5)
		conn.SetConnMaxLifetime(5 * time.Minute)
	}

	db := &DB{conn: conn, dialect: d}

	if err := db.initSchema(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return db, nil
}

// initSchema creates the necessary tables
func (db *DB) initSchema() error {
	for _, stmt := range db.dialect.schema {
		if _, err := db.conn.Exec(stmt); err != nil {
			return fmt.Errorf("failed to execute schema statement: %w", err)
		}
	}
	return nil
}

func (db *DB) recordStats() {
	stats := db.conn.Stats()
	metrics.UpdateDBConnectionStats(stats.OpenConnections, stats.InUse, stats.Idle)
}

// InsertStation inserts a new station
func (db *DB) InsertStation(station models.Station) error {
	query := `INSERT INTO stations (site_no, station_nm, latitude, longitude) VALUES (?, ?, ?, ?)`
	queryStart := time.Now()
	_, err := db.conn.Exec(query, station.SiteNo, station.Name, station.Latitude, station.Longitude)
	metrics.RecordDBQuery("INSERT", "stations", time.Since(queryStart), err)
	if err != nil {
		if db.dialect.isDuplicate(err) {
			return fmt.Errorf("%s: %w", station.SiteNo, ErrDuplicateStation)
		}
		return fmt.Errorf("failed to insert station: %w", err)
	}
	return nil
}

// GetAllStations retrieves all stations ordered by site number
func (db *DB) GetAllStations() ([]models.Station, error) {
	query := `SELECT site_no, station_nm, latitude, longitude FROM stations ORDER BY site_no`
	queryStart := time.Now()
	rows, err := db.conn.Query(query)
	metrics.RecordDBQuery("SELECT", "stations", time.Since(queryStart), err)
	if err != nil {
		return nil, fmt.Errorf("failed to query stations: %w", err)
	}
	defer rows.Close()

	var stations []models.Station
	for rows.Next() {
		var s models.Station
		if err := rows.Scan(&s.SiteNo, &s.Name, &s.Latitude, &s.Longitude); err != nil {
			return nil, fmt.Errorf("failed to scan station: %w", err)
		}
		stations = append(stations, s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating stations: %w", err)
	}

	return stations, nil
}

// GetStation retrieves a specific station by site number
func (db *DB) GetStation(siteNo string) (*models.Station, error) {
	query := `SELECT site_no, station_nm, latitude, longitude FROM stations WHERE site_no = ? LIMIT 1`
	row := db.conn.QueryRow(query, siteNo)

	var s models.Station
	if err := row.Scan(&s.SiteNo, &s.Name, &s.Latitude, &s.Longitude); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrStationNotFound, siteNo)
		}
		return nil, fmt.Errorf("failed to scan station: %w", err)
	}

	return &s, nil
}

// StartRun records the beginning of an analysis run
func (db *DB) StartRun(run *models.AnalysisRun) error {
	query := `INSERT INTO analysis_runs (id, started_at, stations, errors) VALUES (?, ?, ?, ?)`
	queryStart := time.Now()
	_, err := db.conn.Exec(query, run.ID, run.StartedAt.UTC(), run.Stations, run.Errors)
	metrics.RecordDBQuery("INSERT", "analysis_runs", time.Since(queryStart), err)
	if err != nil {
		return fmt.Errorf("failed to start run %s: %w", run.ID, err)
	}
	return nil
}

// CompleteRun stores the final counters of an analysis run
func (db *DB) CompleteRun(run *models.AnalysisRun) error {
	query := `UPDATE analysis_runs SET completed_at = ?, stations = ?, errors = ? WHERE id = ?`
	queryStart := time.Now()
	_, err := db.conn.Exec(query, run.CompletedAt.UTC(), run.Stations, run.Errors, run.ID)
	metrics.RecordDBQuery("UPDATE", "analysis_runs", time.Since(queryStart), err)
	if err != nil {
		return fmt.Errorf("failed to complete run %s: %w", run.ID, err)
	}
	return nil
}

// StoreStationResult upserts a station's frequencies and stores its gaps and
// exceedances in one transaction. Rows from earlier runs for the same station
// and kind are replaced.
func (db *DB) StoreStationResult(result models.StationResult) error {
	defer db.recordStats()
	queryStart := time.Now()

	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() // Will be ignored if committed

	now := time.Now().UTC()
	upsert, err := tx.Prepare(db.dialect.upsertFrequency)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer upsert.Close()

	for column, value := range result.Frequencies {
		if _, err := upsert.Exec(result.SiteNo, column, value, result.RunID, now); err != nil {
			return fmt.Errorf("failed to upsert frequency %s for %s: %w", column, result.SiteNo, err)
		}
	}

	for _, table := range []string{"exceedances", "gaps"} {
		query := fmt.Sprintf(`DELETE FROM %s WHERE site_no = ? AND kind = ?`, table)
		if _, err := tx.Exec(query, result.SiteNo, string(result.Kind)); err != nil {
			return fmt.Errorf("failed to clear %s for %s: %w", table, result.SiteNo, err)
		}
	}

	if len(result.Exceedances) > 0 {
		stmt, err := tx.Prepare(`INSERT INTO exceedances (run_id, site_no, kind, observed_at, flag, value, threshold) VALUES (?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("failed to prepare statement: %w", err)
		}
		defer stmt.Close()

		for _, e := range result.Exceedances {
			if _, err := stmt.Exec(result.RunID, result.SiteNo, string(result.Kind), e.Timestamp.UTC(), e.Flag, e.Value, e.Threshold); err != nil {
				return fmt.Errorf("failed to insert exceedance %s at %s: %w", e.Flag, e.Timestamp, err)
			}
		}
	}

	if len(result.Gaps) > 0 {
		stmt, err := tx.Prepare(`INSERT INTO gaps (run_id, site_no, kind, start_at, end_at, start_index) VALUES (?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("failed to prepare statement: %w", err)
		}
		defer stmt.Close()

		for _, g := range result.Gaps {
			if _, err := stmt.Exec(result.RunID, result.SiteNo, string(result.Kind), g.Start.UTC(), g.End.UTC(), g.StartIndex); err != nil {
				return fmt.Errorf("failed to insert gap ending %s: %w", g.End, err)
			}
		}
	}

	err = tx.Commit()
	metrics.RecordDBQuery("TX", "station_results", time.Since(queryStart), err)
	if err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	log.Debugf("✓ Stored %s (%s): %d frequencies, %d exceedances, %d gaps",
		result.SiteNo, result.Kind, len(result.Frequencies), len(result.Exceedances), len(result.Gaps))
	return nil
}

// GetFrequencies retrieves the frequency row for one station
func (db *DB) GetFrequencies(siteNo string) (models.FrequencyRow, error) {
	query := `SELECT flag_column, frequency FROM station_frequencies WHERE site_no = ? ORDER BY flag_column`
	rows, err := db.conn.Query(query, siteNo)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	row := make(models.FrequencyRow)
	for rows.Next() {
		var column string
		var value sql.NullFloat64
		if err := rows.Scan(&column, &value); err != nil {
			return nil, err
		}
		row[column] = value
	}

	return row, rows.Err()
}

// LoadSummary rebuilds the station frequency table: one row per known
// station, one column per stored frequency.
func (db *DB) LoadSummary() (*summary.Table, error) {
	stations, err := db.GetAllStations()
	if err != nil {
		return nil, err
	}
	ids := make([]string, len(stations))
	for i, s := range stations {
		ids[i] = s.SiteNo
	}
	table := summary.NewTable(ids)

	query := `SELECT site_no, flag_column, frequency FROM station_frequencies ORDER BY site_no, flag_column`
	queryStart := time.Now()
	rows, err := db.conn.Query(query)
	metrics.RecordDBQuery("SELECT", "station_frequencies", time.Since(queryStart), err)
	if err != nil {
		return nil, fmt.Errorf("failed to query frequencies: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var siteNo, column string
		var value sql.NullFloat64
		if err := rows.Scan(&siteNo, &column, &value); err != nil {
			return nil, fmt.Errorf("failed to scan frequency: %w", err)
		}
		table.Upsert(siteNo, models.FrequencyRow{column: value})
	}

	return table, rows.Err()
}

// GetExceedances retrieves the most recent exceedances for a station
func (db *DB) GetExceedances(siteNo string, limit int) ([]models.Exceedance, error) {
	query := `SELECT id, run_id, site_no, kind, observed_at, flag, value, threshold FROM exceedances WHERE site_no = ? ORDER BY observed_at DESC, id DESC LIMIT ?`
	rows, err := db.conn.Query(query, siteNo, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Exceedance
	for rows.Next() {
		var e models.Exceedance
		var kind string
		if err := rows.Scan(&e.ID, &e.RunID, &e.SiteNo, &kind, &e.Timestamp, &e.Flag, &e.Value, &e.Threshold); err != nil {
			return nil, err
		}
		e.Kind = models.DataKind(kind)
		out = append(out, e)
	}

	return out, rows.Err()
}

// GetGaps retrieves the stored gap intervals for a station and kind
func (db *DB) GetGaps(siteNo string, kind models.DataKind) ([]models.GapInterval, error) {
	query := `SELECT start_at, end_at, start_index FROM gaps WHERE site_no = ? AND kind = ? ORDER BY end_at`
	rows, err := db.conn.Query(query, siteNo, string(kind))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.GapInterval
	for rows.Next() {
		var g models.GapInterval
		if err := rows.Scan(&g.Start, &g.End, &g.StartIndex); err != nil {
			return nil, err
		}
		out = append(out, g)
	}

	return out, rows.Err()
}

// GetLatestRun returns the most recently started analysis run
func (db *DB) GetLatestRun() (*models.AnalysisRun, error) {
	query := `SELECT id, started_at, completed_at, stations, errors FROM analysis_runs ORDER BY started_at DESC LIMIT 1`
	var run models.AnalysisRun
	var completed sql.NullTime
	err := db.conn.QueryRow(query).Scan(&run.ID, &run.StartedAt, &completed, &run.Stations, &run.Errors)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to scan run: %w", err)
	}
	run.CompletedAt = completed.Time
	return &run, nil
}

// Ping checks the connection
func (db *DB) Ping() error {
	return db.conn.Ping()
}

// Close closes the database connection
func (db *DB) Close() error {
	if db.conn != nil {
		return db.conn.Close()
	}
	return nil
}

type dialect struct {
	schema          []string
	upsertFrequency string
	duplicateMarker string
}

func (d dialect) isDuplicate(err error) bool {
	return strings.Contains(err.Error(), d.duplicateMarker)
}

var dialects = map[string]dialect{
	"mysql": {
		// MySQL doesn't support multiple statements in one Exec
		schema: []string{
			`CREATE TABLE IF NOT EXISTS stations (
				site_no VARCHAR(32) PRIMARY KEY,
				station_nm VARCHAR(255) NOT NULL DEFAULT '',
				latitude DOUBLE NOT NULL,
				longitude DOUBLE NOT NULL
			) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

			`CREATE TABLE IF NOT EXISTS analysis_runs (
				id CHAR(36) PRIMARY KEY,
				started_at DATETIME(6) NOT NULL,
				completed_at DATETIME(6) NULL,
				stations INT NOT NULL,
				errors INT NOT NULL
			) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

			`CREATE TABLE IF NOT EXISTS station_frequencies (
				site_no VARCHAR(32) NOT NULL,
				flag_column VARCHAR(100) NOT NULL,
				frequency DOUBLE NULL,
				run_id CHAR(36) NOT NULL,
				updated_at DATETIME(6) NOT NULL,
				PRIMARY KEY (site_no, flag_column)
			) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

			`CREATE TABLE IF NOT EXISTS exceedances (
				id BIGINT AUTO_INCREMENT PRIMARY KEY,
				run_id CHAR(36) NOT NULL,
				site_no VARCHAR(32) NOT NULL,
				kind VARCHAR(32) NOT NULL,
				observed_at DATETIME(6) NOT NULL,
				flag VARCHAR(100) NOT NULL,
				value DOUBLE NOT NULL,
				threshold DOUBLE NULL,
				INDEX idx_exceedances_site (site_no, kind),
				INDEX idx_exceedances_observed (observed_at)
			) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

			`CREATE TABLE IF NOT EXISTS gaps (
				id BIGINT AUTO_INCREMENT PRIMARY KEY,
				run_id CHAR(36) NOT NULL,
				site_no VARCHAR(32) NOT NULL,
				kind VARCHAR(32) NOT NULL,
				start_at DATETIME(6) NOT NULL,
				end_at DATETIME(6) NOT NULL,
				start_index INT NOT NULL,
				INDEX idx_gaps_site (site_no, kind)
			) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
		},
		upsertFrequency: `INSERT INTO station_frequencies (site_no, flag_column, frequency, run_id, updated_at) VALUES (?, ?, ?, ?, ?)
			ON DUPLICATE KEY UPDATE frequency = VALUES(frequency), run_id = VALUES(run_id), updated_at = VALUES(updated_at)`,
		duplicateMarker: "Duplicate entry",
	},
	"sqlite": {
		schema: []string{
			`CREATE TABLE IF NOT EXISTS stations (
				site_no TEXT PRIMARY KEY,
				station_nm TEXT NOT NULL DEFAULT '',
				latitude REAL NOT NULL,
				longitude REAL NOT NULL
			)`,

			`CREATE TABLE IF NOT EXISTS analysis_runs (
				id TEXT PRIMARY KEY,
				started_at DATETIME NOT NULL,
				completed_at DATETIME NULL,
				stations INTEGER NOT NULL,
				errors INTEGER NOT NULL
			)`,

			`CREATE TABLE IF NOT EXISTS station_frequencies (
				site_no TEXT NOT NULL,
				flag_column TEXT NOT NULL,
				frequency REAL NULL,
				run_id TEXT NOT NULL,
				updated_at DATETIME NOT NULL,
				PRIMARY KEY (site_no, flag_column)
			)`,

			`CREATE TABLE IF NOT EXISTS exceedances (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				run_id TEXT NOT NULL,
				site_no TEXT NOT NULL,
				kind TEXT NOT NULL,
				observed_at DATETIME NOT NULL,
				flag TEXT NOT NULL,
				value REAL NOT NULL,
				threshold REAL NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_exceedances_site ON exceedances (site_no, kind)`,

			`CREATE TABLE IF NOT EXISTS gaps (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				run_id TEXT NOT NULL,
				site_no TEXT NOT NULL,
				kind TEXT NOT NULL,
				start_at DATETIME NOT NULL,
				end_at DATETIME NOT NULL,
				start_index INTEGER NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_gaps_site ON gaps (site_no, kind)`,
		},
		upsertFrequency: `INSERT INTO station_frequencies (site_no, flag_column, frequency, run_id, updated_at) VALUES (?, ?, ?, ?, ?)
			ON CONFLICT (site_no, flag_column) DO UPDATE SET frequency = excluded.frequency, run_id = excluded.run_id, updated_at = excluded.updated_at`,
		duplicateMarker: "UNIQUE constraint failed",
	},
}
