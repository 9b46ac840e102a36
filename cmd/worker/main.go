package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"clinic_intake_backend/internal/ai/language"
	"clinic_intake_backend/internal/intake/engine"
	"clinic_intake_backend/internal/intake/repository"
	"clinic_intake_backend/internal/knowledge"
	"clinic_intake_backend/internal/notification/inapp"
	"clinic_intake_backend/internal/queue"
	"clinic_intake_backend/internal/whatsapp"
	"clinic_intake_backend/migrations"
	"clinic_intake_backend/platform/ai/embeddings"
	"clinic_intake_backend/platform/config"
	"clinic_intake_backend/platform/db"
	"clinic_intake_backend/platform/logger"
	"clinic_intake_backend/platform/qdrant"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log := logger.New(cfg.Env)
	log.Info("starting intake worker", "env", cfg.Env)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := withRetry(ctx, log, "database migrations", 5, 2*time.Second, func() error {
		return db.RunMigrations(ctx, cfg, migrations.FS)
	}); err != nil {
		log.Error("failed to run database migrations", "error", err)
		panic("failed to run database migrations: " + err.Error())
	}
	log.Info("database migrations complete")

	var pool *pgxpool.Pool
	if err := withRetry(ctx, log, "database connection", 5, 2*time.Second, func() error {
		p, err := db.NewPool(ctx, cfg)
		if err != nil {
			return err
		}
		pool = p
		return nil
	}); err != nil {
		log.Error("failed to connect to database", "error", err)
		panic("failed to connect to database: " + err.Error())
	}
	defer pool.Close()
	log.Info("database connection established")

	redisOpt, err := redis.ParseURL(cfg.GetRedisURL())
	if err != nil {
		log.Error("invalid redis url", "error", err)
		panic("invalid redis url: " + err.Error())
	}
	rdb := redis.NewClient(redisOpt)
	defer func() { _ = rdb.Close() }()

	languageClient, err := language.NewClient(ctx, cfg, log)
	if err != nil {
		log.Error("failed to initialize language client", "error", err)
		panic("failed to initialize language client: " + err.Error())
	}

	embedClient := embeddings.NewClient(embeddings.Config{
		BaseURL:    cfg.GetEmbeddingAPIURL(),
		APIKey:     cfg.GetEmbeddingAPIKey(),
		Model:      cfg.GetEmbeddingModel(),
		Dimensions: cfg.GetEmbeddingDimensions(),
	})
	qdrantClient := qdrant.NewClient(qdrant.Config{
		BaseURL:    cfg.GetQdrantURL(),
		APIKey:     cfg.GetQdrantAPIKey(),
		Collection: cfg.GetQdrantCollection(),
	})
	knowledgeSvc := knowledge.NewService(embedClient, qdrantClient, log)

	notifier := inapp.NewService(
		inapp.NewRepository(pool),
		rdb,
		inapp.NewRoundRobinRouter(cfg.GetOperatorIDs()),
		nil,
		log,
	)

	whatsappClient, err := whatsapp.NewClient(cfg, log)
	if err != nil {
		log.Error("failed to initialize whatsapp client", "error", err)
		panic("failed to initialize whatsapp client: " + err.Error())
	}

	eng := engine.New(
		engine.Config{
			ContextWindow:   cfg.GetContextWindow(),
			CallTimeout:     cfg.GetCallTimeout(),
			PipelineTimeout: cfg.GetPipelineTimeout(),
			UrgentKeywords:  cfg.GetUrgentKeywords(),
			FallbackReply:   cfg.GetFallbackReply(),
			HandoffReply:    cfg.GetHandoffReply(),
		},
		engine.Deps{
			Store:      repository.New(pool),
			Classifier: languageClient,
			Urgency:    languageClient,
			Knowledge:  knowledgeSvc,
			Generator:  languageClient,
			Outbound:   whatsappClient,
			Notifier:   notifier,
			Dedup:      engine.NewRedisDedupStore(rdb),
			Lease:      engine.NewRedisThreadLease(rdb),
			Cache:      engine.NewRedisContextCache(rdb),
		},
		log,
	)

	worker, err := queue.NewWorker(cfg, eng, log)
	if err != nil {
		log.Error("failed to initialize queue worker", "error", err)
		panic("failed to initialize queue worker: " + err.Error())
	}
	defer func() { _ = worker.Close() }()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		worker.Run(ctx)
		return nil
	})

	if err := g.Wait(); err != nil {
		log.Error("intake worker exited", "error", err)
	}
	log.Info("intake worker stopped")
}

func withRetry(ctx context.Context, log *logger.Logger, name string, attempts int, baseDelay time.Duration, fn func() error) error {
	if attempts < 1 {
		return errors.New(name + ": invalid retry attempts")
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := fn(); err == nil {
			return nil
		} else {
			lastErr = err
			log.Warn("retryable operation failed", "operation", name, "attempt", attempt, "error", err)
		}

		if attempt < attempts {
			delay := time.Duration(attempt*attempt) * baseDelay
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
	}

	return errors.New(name + ": " + lastErr.Error())
}
