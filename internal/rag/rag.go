package rag

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms"
	"golang.org/x/sync/singleflight"

	"question-rag/internal/config"
	"question-rag/internal/db"
	"question-rag/internal/embedding"
	"question-rag/internal/fingerprint"
	"question-rag/internal/helper"
	"question-rag/internal/lock"
	"question-rag/internal/models"
)

// RecordStore holds the authoritative generation records.
type RecordStore interface {
	LookupByHash(ctx context.Context, hash string) (*db.Document, error)
	InsertResult(ctx context.Context, doc *db.Document) error
	ReplaceResult(ctx context.Context, doc *db.Document) error
	ListAuthoritative(ctx context.Context) ([]models.HistoryEntry, error)
}

// ChunkIndex stores embedded chunks and searches them per content hash.
type ChunkIndex interface {
	HasChunks(ctx context.Context, hash string) (bool, error)
	StoreChunks(ctx context.Context, hash, name string, chunks []models.ChunkEmbedding) error
	SearchChunks(ctx context.Context, hash string, vector []float32, limit int) ([]models.SearchResult, error)
	DeleteChunks(ctx context.Context, hash string) error
}

type Extractor interface {
	Extract(path string, chunked bool) ([]models.Chunk, string, error)
}

type LLM interface {
	Generate(ctx context.Context, messages []llms.MessageContent) (models.Reply, error)
}

// Cache is an optional fast path in front of RecordStore.
type Cache interface {
	Get(ctx context.Context, hash string) (*models.HistoryEntry, bool, error)
	Set(ctx context.Context, entry *models.HistoryEntry) error
}

type Deps struct {
	Records   RecordStore
	Chunks    ChunkIndex
	Extractor Extractor
	Embedder  embeddings.Embedder
	LLM       LLM
	// ContextModel writes per chunk context when rag.contextualize is on.
	ContextModel llms.Model
	// Locker defaults to an in-process keyed mutex.
	Locker lock.Locker
	Cache  Cache
}

type Input struct {
	Path string
	// Name is the display name, the file base name when empty.
	Name string
	// Regenerate asks for a new question set even when one is stored.
	Regenerate bool
}

type Result struct {
	ID          string `json:"id"`
	Name        string `json:"pdf_name"`
	ContentHash string `json:"content_hash"`
	Questions   string `json:"questions"`
	CacheHit    bool   `json:"cache_hit"`
	Regenerated bool   `json:"regenerated"`
	// PersistErr is set when the questions were generated but could not be
	// stored. The questions are still valid.
	PersistErr error `json:"-"`
}

type RAG struct {
	records      RecordStore
	chunks       ChunkIndex
	extractor    Extractor
	embedder     embeddings.Embedder
	llm          LLM
	contextModel llms.Model
	locker       lock.Locker
	cache        Cache
	cfg          *config.Config
	group        singleflight.Group
}

func NewRAG(deps Deps, cfg *config.Config) *RAG {
	locker := deps.Locker
	if locker == nil {
		locker = lock.NewMemoryLocker()
	}
	return &RAG{
		records:      deps.Records,
		chunks:       deps.Chunks,
		extractor:    deps.Extractor,
		embedder:     deps.Embedder,
		llm:          deps.LLM,
		contextModel: deps.ContextModel,
		locker:       locker,
		cache:        deps.Cache,
		cfg:          cfg,
	}
}

// Generate returns the question set for the document at in.Path. Content
// that already has a stored question set is answered from storage without
// calling the model, unless in.Regenerate is set.
func (r *RAG) Generate(ctx context.Context, in Input) (*Result, error) {
	data, err := os.ReadFile(in.Path)
	if err != nil {
		return nil, stageErr(StageFingerprint, err)
	}
	hash := fingerprint.Sum(data)
	name := in.Name
	if name == "" {
		name = filepath.Base(in.Path)
	}

	key := hash
	if in.Regenerate {
		key += ":regenerate"
	}
	// the shared run outlives any single caller; each caller still stops
	// waiting when its own context ends
	ch := r.group.DoChan(key, func() (any, error) {
		return r.run(context.WithoutCancel(ctx), in.Path, hash, name, in.Regenerate)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case out := <-ch:
		if out.Err != nil {
			return nil, out.Err
		}
		if out.Shared {
			log.Debug().Str("hash", hash).Msg("Joined in-flight generation")
		}
		res := *out.Val.(*Result)
		return &res, nil
	}
}

func (r *RAG) run(ctx context.Context, path, hash, name string, regenerate bool) (*Result, error) {
	logger := log.With().Str("hash", hash).Str("name", name).Logger()

	unlock, err := r.locker.Lock(ctx, hash)
	if err != nil {
		return nil, stageErr(StageCheckCache, err)
	}
	defer unlock()

	// CHECK_CACHE
	logger.Debug().Str("stage", string(StageCheckCache)).Msg("Looking up stored questions")
	if !regenerate {
		if entry := r.cached(ctx, hash); entry != nil {
			logger.Info().Str("stage", "cache_hit").Msg("Questions served from cache")
			return resultFromEntry(entry), nil
		}
	}
	existing, err := r.records.LookupByHash(ctx, hash)
	if err != nil {
		return nil, stageErr(StageCheckCache, err)
	}
	if existing != nil && existing.Questions() != "" && !regenerate {
		logger.Info().Str("stage", "cache_hit").Str("id", existing.ID).Msg("Questions served from storage")
		entry := entryFromDocument(existing)
		r.remember(ctx, entry)
		return resultFromEntry(entry), nil
	}
	if regenerate && existing == nil {
		logger.Info().Msg("Regeneration requested for unknown content, generating first set")
	}

	// EXTRACT
	logger.Debug().Str("stage", string(StageExtract)).Msg("Extracting text")
	chunks, _, err := r.extractor.Extract(path, true)
	if err != nil {
		return nil, stageErr(StageExtract, err)
	}
	_, fullText, err := r.extractor.Extract(path, false)
	if err != nil {
		return nil, stageErr(StageExtract, err)
	}
	if strings.TrimSpace(fullText) == "" || len(chunks) == 0 {
		return nil, stageErr(StageExtract, ErrNoText)
	}

	// EMBED_AND_STORE
	stored, err := r.embedAndStore(ctx, logger, hash, name, fullText, chunks)
	if err != nil {
		if stored {
			r.compensate(ctx, logger, hash)
		}
		return nil, stageErr(StageEmbedAndStore, err)
	}

	// INVOKE_MODEL
	var priors []string
	if existing != nil && existing.Usage != nil {
		priors = append(priors, existing.Usage.History...)
		priors = append(priors, existing.Usage.Questions)
	}
	questions, err := r.invokeModel(ctx, logger, hash, chunks, priors)
	if err != nil {
		if stored {
			r.compensate(ctx, logger, hash)
		}
		return nil, stageErr(StageInvokeModel, err)
	}

	// PERSIST
	return r.persist(ctx, logger, hash, name, fullText, len(chunks), questions, existing, priors)
}

// embedAndStore embeds every chunk before writing any of them. stored
// reports whether this call wrote chunks, so the caller knows whether to
// clean up on a later failure.
func (r *RAG) embedAndStore(ctx context.Context, logger zerolog.Logger, hash, name, fullText string, chunks []models.Chunk) (stored bool, err error) {
	has, err := r.chunks.HasChunks(ctx, hash)
	if err != nil {
		return false, err
	}
	if has {
		logger.Debug().Str("stage", string(StageEmbedAndStore)).Msg("Chunks already indexed")
		return false, nil
	}

	var contextualize embedding.Contextualizer
	if r.cfg.RAG.Contextualize && r.contextModel != nil {
		contextualize = func(ctx context.Context, chunk string) (string, error) {
			return embedding.GenerateContext(ctx, r.contextModel, fullText, chunk)
		}
	}
	embedded, err := embedding.EmbedChunks(ctx, r.embedder, chunks, r.cfg.RAG.VectorSize, contextualize)
	if err != nil {
		return false, err
	}
	if err := r.chunks.StoreChunks(ctx, hash, name, embedded); err != nil {
		// a failed batch may still have left rows behind
		return true, err
	}
	logger.Info().Str("stage", string(StageEmbedAndStore)).Int("chunks", len(embedded)).Msg("Stored chunks")
	return true, nil
}

func (r *RAG) invokeModel(ctx context.Context, logger zerolog.Logger, hash string, chunks []models.Chunk, priors []string) (string, error) {
	task := generationTask(r.cfg.RAG.QuestionCount)
	query, err := embedding.EmbedQuery(ctx, r.embedder, task, r.cfg.RAG.VectorSize)
	if err != nil {
		return "", err
	}
	excerpts, err := r.chunks.SearchChunks(ctx, hash, query, r.cfg.RAG.TopK)
	if err != nil {
		return "", err
	}
	if len(excerpts) == 0 {
		// the index came back empty, fall back to the leading chunks
		for i := 0; i < len(chunks) && i < r.cfg.RAG.TopK; i++ {
			excerpts = append(excerpts, models.SearchResult{Content: chunks[i].Content, Seq: chunks[i].Seq})
		}
	}

	messages := buildMessages(excerpts, priors, task)
	logger.Info().
		Str("stage", string(StageInvokeModel)).
		Int("excerpts", len(excerpts)).
		Int("prior_sets", len(priors)).
		Msg("Calling generation model")
	reply, err := r.llm.Generate(ctx, messages)
	if err != nil {
		return "", err
	}
	text := reply.AssistantText()
	if text == "" {
		return "", ErrEmptyReply
	}
	return text, nil
}

func (r *RAG) persist(ctx context.Context, logger zerolog.Logger, hash, name, fullText string, chunkCount int, questions string, existing *db.Document, priors []string) (*Result, error) {
	res := &Result{
		Name:        name,
		ContentHash: hash,
		Questions:   questions,
		Regenerated: existing != nil,
	}

	id, err := helper.GenerateUUID()
	if err != nil {
		res.PersistErr = stageErr(StagePersist, err)
		logger.Error().Err(err).Str("stage", string(StagePersist)).Msg("Failed to persist questions")
		return res, nil
	}
	doc := &db.Document{
		ID:          id,
		Name:        name,
		Metadata:    map[string]any{"chunks": chunkCount},
		Filters:     map[string]any{},
		Content:     fullText,
		Usage:       &db.Usage{Questions: questions, Model: r.cfg.LLM.Model},
		ContentHash: hash,
	}

	if existing != nil {
		doc.Usage.History = priors
		err = r.records.ReplaceResult(ctx, doc)
	} else {
		err = r.records.InsertResult(ctx, doc)
		if errors.Is(err, db.ErrDuplicate) {
			// another writer stored a set first, theirs is authoritative
			winner, lerr := r.records.LookupByHash(ctx, hash)
			if lerr == nil && winner != nil {
				logger.Info().Str("stage", string(StagePersist)).Str("id", winner.ID).Msg("Another writer stored questions first")
				entry := entryFromDocument(winner)
				r.remember(ctx, entry)
				return resultFromEntry(entry), nil
			}
			if lerr != nil {
				err = lerr
			}
		}
	}
	if err != nil {
		res.PersistErr = stageErr(StagePersist, err)
		logger.Error().Err(err).Str("stage", string(StagePersist)).Msg("Failed to persist questions")
		return res, nil
	}

	res.ID = doc.ID
	logger.Info().Str("stage", string(StagePersist)).Str("id", doc.ID).Bool("regenerated", res.Regenerated).Msg("Stored questions")
	r.remember(ctx, &models.HistoryEntry{
		ID:          doc.ID,
		Name:        name,
		Questions:   questions,
		ContentHash: hash,
		CreatedAt:   doc.CreatedAt,
	})
	return res, nil
}

// compensate removes chunks this run stored for a generation that failed.
func (r *RAG) compensate(ctx context.Context, logger zerolog.Logger, hash string) {
	if err := r.chunks.DeleteChunks(context.WithoutCancel(ctx), hash); err != nil {
		logger.Error().Err(err).Msg("Failed to remove chunks of failed generation")
		return
	}
	logger.Info().Msg("Removed chunks of failed generation")
}

func (r *RAG) cached(ctx context.Context, hash string) *models.HistoryEntry {
	if r.cache == nil {
		return nil
	}
	entry, ok, err := r.cache.Get(ctx, hash)
	if err != nil {
		log.Warn().Err(err).Str("hash", hash).Msg("Question cache lookup failed")
		return nil
	}
	if !ok {
		return nil
	}
	return entry
}

func (r *RAG) remember(ctx context.Context, entry *models.HistoryEntry) {
	if r.cache == nil {
		return
	}
	if err := r.cache.Set(ctx, entry); err != nil {
		log.Warn().Err(err).Str("hash", entry.ContentHash).Msg("Question cache update failed")
	}
}

// History lists every authoritative record, newest first.
func (r *RAG) History(ctx context.Context) ([]models.HistoryEntry, error) {
	return r.records.ListAuthoritative(ctx)
}

func entryFromDocument(doc *db.Document) *models.HistoryEntry {
	return &models.HistoryEntry{
		ID:          doc.ID,
		Name:        doc.Name,
		Questions:   doc.Questions(),
		ContentHash: doc.ContentHash,
		CreatedAt:   doc.CreatedAt,
	}
}

func resultFromEntry(entry *models.HistoryEntry) *Result {
	return &Result{
		ID:          entry.ID,
		Name:        entry.Name,
		ContentHash: entry.ContentHash,
		Questions:   entry.Questions,
		CacheHit:    true,
	}
}
