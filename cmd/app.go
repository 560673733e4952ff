package main

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/uptrace/bun"

	"question-rag/internal/cache"
	"question-rag/internal/chromemdb"
	"question-rag/internal/config"
	"question-rag/internal/db"
	"question-rag/internal/embedding"
	"question-rag/internal/llmservice"
	"question-rag/internal/lock"
	"question-rag/internal/parser"
	"question-rag/internal/rag"
)

// app holds the constructed pipeline and the connections it owns.
type app struct {
	bunDB *bun.DB
	redis *redis.Client
	store *db.Store
	rag   *rag.RAG
}

func newApp(ctx context.Context, cfg *config.Config) (_ *app, err error) {
	a := &app{}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	sqldb, err := db.ConnectDB(&cfg.Database)
	if err != nil {
		return nil, err
	}
	a.bunDB = db.NewDB(sqldb, cfg.Database.Debug)
	if err := db.InitDB(ctx, a.bunDB, cfg.RAG.VectorSize); err != nil {
		return nil, fmt.Errorf("init database: %w", err)
	}
	a.store = db.NewStore(a.bunDB)

	var chunks rag.ChunkIndex = a.store
	if cfg.VectorStore.Backend == config.BackendChromem {
		manager, err := chromemdb.NewVectorDBManager(&cfg.VectorStore.Chromem)
		if err != nil {
			return nil, err
		}
		chunks = manager
		log.Info().Str("collection", cfg.VectorStore.Chromem.Collection).Msg("Using chromem chunk index")
	}

	embedder, err := embedding.NewEmbedder(&cfg.EmbedLLM)
	if err != nil {
		return nil, err
	}
	llmClient, err := llmservice.NewClient(&cfg.LLM)
	if err != nil {
		return nil, err
	}

	deps := rag.Deps{
		Records:      a.store,
		Chunks:       chunks,
		Extractor:    parser.NewExtractor(&cfg.RAG),
		Embedder:     embedder,
		LLM:          llmClient,
		ContextModel: llmClient.Model(),
		Locker:       lock.NewMemoryLocker(),
	}
	if cfg.Redis.Addr != "" {
		a.redis, err = cache.NewRedisClient(ctx, &cfg.Redis)
		if err != nil {
			return nil, err
		}
		deps.Locker = lock.NewRedisLocker(a.redis, cfg.Redis.LockTTL)
		deps.Cache = cache.NewQuestionCache(a.redis, cfg.Redis.CacheTTL)
		log.Info().Str("addr", cfg.Redis.Addr).Msg("Using redis for locks and question cache")
	}

	a.rag = rag.NewRAG(deps, cfg)
	return a, nil
}

func (a *app) Close() {
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			log.Warn().Err(err).Msg("Error closing redis")
		}
	}
	if a.bunDB != nil {
		if err := a.bunDB.Close(); err != nil {
			log.Warn().Err(err).Msg("Error closing database")
		}
	}
}
