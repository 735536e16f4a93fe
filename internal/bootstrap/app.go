package bootstrap

import (
	"context"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"studynotes/internal/ai"
	"studynotes/internal/app"
	"studynotes/internal/cache"
	"studynotes/internal/chunker"
	"studynotes/internal/config"
	"studynotes/internal/model"
	postgresClient "studynotes/internal/platform/postgres"
	rabbitmqClient "studynotes/internal/platform/rabbitmq"
	redisClient "studynotes/internal/platform/redis"
	"studynotes/internal/repository"
	"studynotes/internal/worker"
)

type App struct {
	Config        *config.Config
	Postgres      *gorm.DB
	Redis         *redis.Client
	MQConn        *amqp.Connection
	AIClient      *ai.Client
	Embedder      *ai.EmbeddingClient
	ReindexWorker *worker.ReindexWorker

	StartedAt time.Time
}

func New(ctx context.Context) (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config failed: %w", err)
	}

	db, err := postgresClient.New(ctx, cfg.PostgresDSN())
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&model.User{}, &model.Note{}, &model.Chunk{}, &model.Embedding{}); err != nil {
		return nil, fmt.Errorf("auto migrate tables failed: %w", err)
	}

	redisCli, err := redisClient.New(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		return nil, err
	}

	mqConn, err := rabbitmqClient.New(ctx, cfg.RabbitMQ.URL)
	if err != nil {
		return nil, err
	}

	aiClient := ai.NewClient(cfg.LLM.BaseURL, cfg.LLM.APIKey)
	embedder := ai.NewEmbeddingClient(aiClient, cfg.LLM.EmbeddingModel)

	noteChunker := chunker.New(chunker.NewTokenCounter(), chunker.DefaultOptions())
	answerCache := cache.NewAnswerCache(redisCli, time.Duration(cfg.Redis.AnswerTTLSeconds)*time.Second)
	chunkRepo := repository.NewChunkRepository(db)
	indexService := app.NewIndexService(
		noteChunker,
		embedder,
		chunkRepo,
		answerCache,
		cfg.LLM.EmbeddingDim,
		cfg.LLM.EmbeddingBatchSize,
	)

	reindexWorker := worker.NewReindexWorker(
		mqConn,
		indexService,
		cfg.RabbitMQ.ReindexQueue,
		cfg.RAG.ReindexAttempts,
		time.Duration(cfg.RAG.RetryBaseMS)*time.Millisecond,
	)
	if err := reindexWorker.Start(ctx); err != nil {
		return nil, fmt.Errorf("start reindex worker failed: %w", err)
	}

	return &App{
		Config:        cfg,
		Postgres:      db,
		Redis:         redisCli,
		MQConn:        mqConn,
		AIClient:      aiClient,
		Embedder:      embedder,
		ReindexWorker: reindexWorker,
		StartedAt:     time.Now(),
	}, nil
}

func (a *App) Close() error {
	var closeErr error
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			closeErr = err
		}
	}
	if a.ReindexWorker != nil {
		a.ReindexWorker.Close()
	}
	if a.MQConn != nil {
		if err := a.MQConn.Close(); err != nil {
			closeErr = err
		}
	}
	if a.Postgres != nil {
		sqlDB, err := a.Postgres.DB()
		if err == nil {
			if err := sqlDB.Close(); err != nil {
				closeErr = err
			}
		}
	}
	return closeErr
}
