package config

import (
	"fmt"
	"os"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"streamevents/internal/detector"
	"streamevents/internal/models"
	"streamevents/internal/series"
)

var (
	instance *Config
	once     sync.Once
)

// Config is the analysis configuration read from config.yaml
type Config struct {
	Debug   bool `yaml:"debug"`
	Workers int  `yaml:"workers"`

	Data struct {
		GaugeHeightDir string   `yaml:"gauge_height_dir"`
		StreamflowDir  string   `yaml:"streamflow_dir"`
		StationsCSV    string   `yaml:"stations_csv"`
		Kinds          []string `yaml:"kinds"`
	} `yaml:"data"`

	// Stations restricts a run to these site numbers; empty means every
	// station in the database.
	Stations []string `yaml:"stations"`

	Normalize struct {
		DropColumns     []int  `yaml:"drop_columns"`
		Resample        string `yaml:"resample"`
		TimestampColumn string `yaml:"timestamp_column"`
		TimestampLayout string `yaml:"timestamp_layout"`
	} `yaml:"normalize"`

	Analysis struct {
		Window            string    `yaml:"window"`
		MinPeriods        int       `yaml:"min_periods"`
		Alpha             float64   `yaml:"alpha"`
		Percentiles       []float64 `yaml:"percentiles"`
		IQR               bool      `yaml:"iqr"`
		GapThreshold      string    `yaml:"gap_threshold"`
		ColdStartDays     int       `yaml:"cold_start_days"`
		FrequencyInterval string    `yaml:"frequency_interval"`
		MinMeasurements   int       `yaml:"min_measurements"`
	} `yaml:"analysis"`

	Output struct {
		SummaryPath string `yaml:"summary_path"`
		SeriesDir   string `yaml:"series_dir"`
	} `yaml:"output"`

	Redis struct {
		Enabled  bool   `yaml:"enabled"`
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		Stream   string `yaml:"stream"`
	} `yaml:"redis"`
}

func Load(configPath string) (*Config, error) {
	var err error
	once.Do(func() {
		instance = &Config{}

		data, readErr := os.ReadFile(configPath)
		if readErr != nil {
			err = fmt.Errorf("failed to read config file %s: %w", configPath, readErr)
			return
		}

		if parseErr := yaml.Unmarshal(data, instance); parseErr != nil {
			err = fmt.Errorf("failed to parse config: %w", parseErr)
			return
		}

		instance.setDefaults()

		if validateErr := instance.validate(); validateErr != nil {
			err = validateErr
			return
		}
	})

	return instance, err
}

func Get() *Config {
	if instance == nil {
		panic("config not loaded - call config.Load() first")
	}
	return instance
}

func (c *Config) setDefaults() {
	if c.Workers <= 0 {
		c.Workers = 8
	}
	if len(c.Data.Kinds) == 0 {
		c.Data.Kinds = []string{string(models.GaugeHeight), string(models.Streamflow)}
	}
	if c.Normalize.DropColumns == nil {
		c.Normalize.DropColumns = series.DefaultOptions().DropColumns
	}
	if c.Normalize.Resample == "" {
		c.Normalize.Resample = "1D"
	}
	if c.Analysis.FrequencyInterval == "" {
		c.Analysis.FrequencyInterval = "YE"
	}
	if c.Redis.Stream == "" {
		c.Redis.Stream = "station_results"
	}
}

func (c *Config) validate() error {
	if c.Analysis.Window == "" {
		return fmt.Errorf("analysis.window cannot be empty")
	}
	if c.Analysis.MinPeriods < 1 {
		return fmt.Errorf("analysis.min_periods must be at least 1")
	}
	if c.Analysis.Alpha <= 0 || c.Analysis.Alpha >= 1 {
		return fmt.Errorf("analysis.alpha must be in (0, 1), got %v", c.Analysis.Alpha)
	}
	for _, p := range c.Analysis.Percentiles {
		if p < 0 || p > 100 {
			return fmt.Errorf("analysis.percentiles must be in [0, 100], got %v", p)
		}
	}
	if c.Analysis.GapThreshold == "" {
		return fmt.Errorf("analysis.gap_threshold cannot be empty")
	}
	if _, err := c.Detector(); err != nil {
		return err
	}
	for _, k := range c.Data.Kinds {
		kind, err := models.ParseDataKind(k)
		if err != nil {
			return fmt.Errorf("data.kinds: %w", err)
		}
		if c.DataDir(kind) == "" {
			return fmt.Errorf("no data directory configured for %s", kind)
		}
	}
	return nil
}

// Detector builds the detector configuration from the analysis section
func (c *Config) Detector() (detector.Config, error) {
	window, err := series.ParseWindow(c.Analysis.Window, c.Analysis.MinPeriods)
	if err != nil {
		return detector.Config{}, fmt.Errorf("analysis.window: %w", err)
	}
	gap, err := parseDuration(c.Analysis.GapThreshold)
	if err != nil {
		return detector.Config{}, fmt.Errorf("analysis.gap_threshold: %w", err)
	}
	freq, err := series.ParseInterval(c.Analysis.FrequencyInterval)
	if err != nil {
		return detector.Config{}, fmt.Errorf("analysis.frequency_interval: %w", err)
	}

	return detector.Config{
		Window:            window,
		Alpha:             c.Analysis.Alpha,
		Percentiles:       c.Analysis.Percentiles,
		IQR:               c.Analysis.IQR,
		GapThreshold:      gap,
		ColdStartDays:     c.Analysis.ColdStartDays,
		FrequencyInterval: freq,
		MinMeasurements:   c.Analysis.MinMeasurements,
	}, nil
}

// NormalizeOptions builds the series normalizer options
func (c *Config) NormalizeOptions() *series.Options {
	return &series.Options{
		DropColumns:     c.Normalize.DropColumns,
		Resample:        c.Normalize.Resample,
		TimestampColumn: c.Normalize.TimestampColumn,
		TimestampLayout: c.Normalize.TimestampLayout,
	}
}

// DataDir returns the export directory for a data kind
func (c *Config) DataDir(kind models.DataKind) string {
	switch kind {
	case models.GaugeHeight:
		return c.Data.GaugeHeightDir
	case models.Streamflow:
		return c.Data.StreamflowDir
	}
	return ""
}

// DataKinds returns the parsed data kinds to analyze
func (c *Config) DataKinds() []models.DataKind {
	kinds := make([]models.DataKind, 0, len(c.Data.Kinds))
	for _, k := range c.Data.Kinds {
		if kind, err := models.ParseDataKind(k); err == nil {
			kinds = append(kinds, kind)
		}
	}
	return kinds
}

// parseDuration accepts Go durations ("120h") and fixed intervals ("5D").
func parseDuration(s string) (time.Duration, error) {
	if d, err := time.ParseDuration(s); err == nil {
		return d, nil
	}
	iv, err := series.ParseInterval(s)
	if err != nil {
		return 0, err
	}
	if iv.IsCalendar() {
		return 0, fmt.Errorf("%q is not a fixed duration", s)
	}
	return iv.Duration, nil
}
