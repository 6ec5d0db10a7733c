package config

import (
	"testing"
)

var redisEnv = []string{"REDIS_ADDR", "REDIS_PASSWORD", "REDIS_DB", "REDIS_STREAM"}

func TestGetRedisConfig(t *testing.T) {
	fileConfig := &Config{}
	fileConfig.Redis.Addr = "redis:6379"
	fileConfig.Redis.Stream = "gauge_results"
	fileConfig.Redis.DB = 2

	tests := []struct {
		name     string
		instance *Config
		env      map[string]string
		want     RedisConfig
	}{
		{
			name: "defaults",
			want: RedisConfig{Addr: "localhost:6379", Stream: "station_results"},
		},
		{
			name: "environment",
			env: map[string]string{
				"REDIS_ADDR":     "testhost:6380",
				"REDIS_PASSWORD": "testpassword",
				"REDIS_DB":       "5",
				"REDIS_STREAM":   "test_stream",
			},
			want: RedisConfig{Addr: "testhost:6380", Password: "testpassword", DB: 5, Stream: "test_stream"},
		},
		{
			name: "unparseable db keeps default",
			env:  map[string]string{"REDIS_DB": "invalid"},
			want: RedisConfig{Addr: "localhost:6379", Stream: "station_results"},
		},
		{
			name:     "config file",
			instance: fileConfig,
			want:     RedisConfig{Addr: "redis:6379", DB: 2, Stream: "gauge_results"},
		},
		{
			name:     "environment overrides config file",
			instance: fileConfig,
			env:      map[string]string{"REDIS_ADDR": "override:6379", "REDIS_DB": "7"},
			want:     RedisConfig{Addr: "override:6379", DB: 7, Stream: "gauge_results"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, key := range redisEnv {
				t.Setenv(key, tt.env[key])
			}
			instance = tt.instance
			defer func() { instance = nil }()

			if got := GetRedisConfig(); got != tt.want {
				t.Errorf("GetRedisConfig() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestGetEnv(t *testing.T) {
	t.Setenv("STREAMEVENTS_TEST_KEY", "custom")
	t.Setenv("STREAMEVENTS_TEST_EMPTY", "")

	if got := getEnv("STREAMEVENTS_TEST_KEY", "default"); got != "custom" {
		t.Errorf("getEnv(set) = %v, want custom", got)
	}
	if got := getEnv("STREAMEVENTS_TEST_EMPTY", "default"); got != "default" {
		t.Errorf("getEnv(empty) = %v, want default", got)
	}
}
