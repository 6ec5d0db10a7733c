package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"

	"streamevents/internal/config"
	"streamevents/internal/database"
	"streamevents/internal/log"
	"streamevents/internal/stream"
)

func main() {
	configPath := flag.String("config", "./config.yaml", "path to the analysis config")
	consumerName := flag.String("consumer", "consumer-1", "consumer name within the group")
	retryAfter := flag.Duration("retry-after", time.Minute, "idle time before an unstored result is retried")
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

	redisCfg := config.GetRedisConfig()
	redisClient := redis.NewClient(&redis.Options{
		Addr:     redisCfg.Addr,
		Password: redisCfg.Password,
		DB:       redisCfg.DB,
	})
	defer redisClient.Close()

	db, err := database.NewDB(config.GetDatabaseDriver(), config.GetDatabaseDSN())
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer db.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	consumer, err := stream.NewConsumer(ctx, redisClient, redisCfg.Stream, stream.DefaultGroup, *consumerName)
	if err != nil {
		log.Fatalf("%v", err)
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	// Handle shutdown signal
	go func() {
		<-quit
		log.Infof("Shutting down store service...")
		cancel()
	}()

	log.Infof("Store into db started, reading from Redis stream %s. Press Ctrl+C to stop...", redisCfg.Stream)

	for {
		// results whose store failed earlier are picked up again once idle
		if reclaimed, err := consumer.Reclaim(ctx, 10, *retryAfter); err != nil {
			if ctx.Err() == nil {
				log.Warnf("%v", err)
			}
		} else if len(reclaimed) > 0 {
			log.Infof("Retrying %d pending results", len(reclaimed))
			handleMessages(db, consumer, reclaimed)
		}

		msgs, err := consumer.Read(ctx, 10, 5*time.Second)
		if ctx.Err() != nil {
			break
		}
		if err != nil {
			log.Errorf("Error reading from Redis: %v", err)
			time.Sleep(time.Second)
			continue
		}

		handleMessages(db, consumer, msgs)
	}

	log.Infof("Store service stopped")
}

// handleMessages stores each result and acknowledges it. Failed stores stay
// pending for a later reclaim.
func handleMessages(db *database.DB, consumer *stream.Consumer, msgs []redis.XMessage) {
	for _, m := range msgs {
		result, err := stream.Decode(m)
		if err != nil {
			// unreadable messages are acknowledged so they are not redelivered
			log.Errorf("%v", err)
			_ = consumer.Ack(context.Background(), m.ID)
			continue
		}

		if err := db.StoreStationResult(result); err != nil {
			log.Errorf("Failed to store result for %s: %v", result.SiteNo, err)
			continue
		}

		log.Infof("✓ Stored %s (%s) from run %s: %d exceedances",
			result.SiteNo, result.Kind, result.RunID, len(result.Exceedances))

		if err := consumer.Ack(context.Background(), m.ID); err != nil {
			log.Warnf("Failed to ack %s: %v", m.ID, err)
		}
	}
}
