// Command moderationd runs the content moderation HTTP service.
//
// Required environment: CUSTOM_MODEL_ENDPOINT, CUSTOM_MODEL_AUTH_TOKEN,
// OPENAI_API_KEY, SLACK_WEBHOOK_URL. Optional integrations (Redis rate
// limiting, NATS decision stream, PostgreSQL audit log) are enabled by
// setting REDIS_ADDR, NATS_URL and DATABASE_URL respectively.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sethvargo/go-retry"

	"github.com/whisper/moderation-api/internal/audit"
	"github.com/whisper/moderation-api/internal/classifier"
	"github.com/whisper/moderation-api/internal/config"
	"github.com/whisper/moderation-api/internal/messaging"
	"github.com/whisper/moderation-api/internal/moderation"
	"github.com/whisper/moderation-api/internal/notify"
	"github.com/whisper/moderation-api/internal/ratelimit"
	"github.com/whisper/moderation-api/internal/server"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("[main] %v", err)
	}

	notifier := notify.NewSlack(cfg.SlackWebhookURL)

	generalCfg := classifier.DefaultGeneralConfig()
	generalCfg.APIKey = cfg.OpenAIAPIKey
	generalCfg.Timeout = cfg.ClassifierTimeout
	general := classifier.NewGeneral(generalCfg, notifier)

	specializedCfg := classifier.DefaultSpecializedConfig()
	specializedCfg.Endpoint = cfg.CustomModelEndpoint
	specializedCfg.AuthToken = cfg.CustomModelAuthToken
	specializedCfg.Timeout = cfg.ClassifierTimeout
	specialized := classifier.NewSpecialized(specializedCfg, notifier)

	engine := moderation.NewEngine(general, specialized)

	serverCfg := server.DefaultConfig()
	serverCfg.ListenAddr = cfg.ListenAddr
	srv := server.New(serverCfg, engine, notifier)

	startupCtx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	if cfg.RedisAddr != "" {
		client, err := connectRedis(startupCtx, cfg.RedisAddr)
		if err != nil {
			log.Fatalf("[main] redis: %v", err)
		}
		defer client.Close()

		ratelimit.RuleModerate.Limit = cfg.RateLimitPerMinute
		srv.SetLimiter(ratelimit.NewLimiter(client))
		log.Printf("[main] rate limiting enabled: %d req/min per client", cfg.RateLimitPerMinute)
	}

	if cfg.NATSURL != "" {
		natsCfg := messaging.DefaultNATSConfig()
		natsCfg.URL = cfg.NATSURL
		nc, err := connectNATS(startupCtx, natsCfg)
		if err != nil {
			log.Fatalf("[main] nats: %v", err)
		}
		defer nc.Close()

		srv.AddSink(messaging.NewDecisionPublisher(nc))
		log.Printf("[main] decision stream enabled on %s", cfg.NATSURL)
	}

	if cfg.DatabaseURL != "" {
		if err := audit.Migrate(cfg.DatabaseURL, cfg.MigrationsPath); err != nil {
			log.Fatalf("[main] %v", err)
		}
		store, err := connectAudit(startupCtx, cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("[main] audit: %v", err)
		}
		defer store.Close()

		srv.AddSink(store)
		log.Printf("[main] audit log enabled")
	}

	// Serve until a shutdown signal arrives.
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil {
			log.Fatalf("[main] %v", err)
		}
	case sig := <-sigCh:
		log.Printf("[main] received %s, shutting down", sig)
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelShutdown()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("[main] shutdown: %v", err)
	}
	log.Printf("[main] stopped")
}

// connectRedis dials Redis with Fibonacci backoff. Rate limiting fails open
// at request time, but a dead Redis at startup is a config error worth
// failing fast on.
func connectRedis(ctx context.Context, addr string) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})

	b := retry.NewFibonacci(500 * time.Millisecond)
	err := retry.Do(ctx, retry.WithMaxRetries(5, b), func(ctx context.Context) error {
		if err := client.Ping(ctx).Err(); err != nil {
			log.Printf("[main] redis ping failed, retrying: %v", err)
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		client.Close()
		return nil, err
	}
	log.Printf("[main] connected to redis at %s", addr)
	return client, nil
}

// connectNATS dials the NATS server with Fibonacci backoff.
func connectNATS(ctx context.Context, cfg messaging.NATSConfig) (*messaging.NATSClient, error) {
	var client *messaging.NATSClient

	b := retry.NewFibonacci(500 * time.Millisecond)
	err := retry.Do(ctx, retry.WithMaxRetries(5, b), func(ctx context.Context) error {
		c, err := messaging.NewNATSClient(cfg)
		if err != nil {
			log.Printf("[main] nats connect failed, retrying: %v", err)
			return retry.RetryableError(err)
		}
		client = c
		return nil
	})
	if err != nil {
		return nil, err
	}
	return client, nil
}

// connectAudit opens the audit database with Fibonacci backoff.
func connectAudit(ctx context.Context, databaseURL string) (*audit.Store, error) {
	var store *audit.Store

	b := retry.NewFibonacci(500 * time.Millisecond)
	err := retry.Do(ctx, retry.WithMaxRetries(5, b), func(ctx context.Context) error {
		s, err := audit.Open(databaseURL)
		if err != nil {
			log.Printf("[main] database open failed, retrying: %v", err)
			return retry.RetryableError(err)
		}
		store = s
		return nil
	})
	if err != nil {
		return nil, err
	}
	return store, nil
}
