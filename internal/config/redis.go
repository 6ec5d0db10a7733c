package config

import (
	"os"
	"strconv"
)

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Stream   string
}

// GetRedisConfig reads the Redis connection from the environment, falling
// back to the loaded config file and then to local defaults
func GetRedisConfig() RedisConfig {
	cfg := RedisConfig{
		Addr:   "localhost:6379",
		Stream: "station_results",
	}
	if instance != nil {
		if instance.Redis.Addr != "" {
			cfg.Addr = instance.Redis.Addr
		}
		if instance.Redis.Stream != "" {
			cfg.Stream = instance.Redis.Stream
		}
		cfg.Password = instance.Redis.Password
		cfg.DB = instance.Redis.DB
	}

	if dbStr := os.Getenv("REDIS_DB"); dbStr != "" {
		if parsed, err := strconv.Atoi(dbStr); err == nil {
			cfg.DB = parsed
		}
	}
	if pw := os.Getenv("REDIS_PASSWORD"); pw != "" {
		cfg.Password = pw
	}
	cfg.Addr = getEnv("REDIS_ADDR", cfg.Addr)
	cfg.Stream = getEnv("REDIS_STREAM", cfg.Stream)
	return cfg
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
