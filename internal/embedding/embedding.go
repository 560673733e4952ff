package embedding

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"

	"question-rag/internal/config"
	"question-rag/internal/models"
)

var (
	ErrCountMismatch     = errors.New("embedding count mismatch")
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
)

var thinkRe = regexp.MustCompile(models.ThinkTag)

// Contextualizer returns a short text situating chunk within its document.
type Contextualizer func(ctx context.Context, chunk string) (string, error)

// NewEmbedder creates a new embedder for the configured provider
func NewEmbedder(llmConfig *config.LLMConfig) (embeddings.Embedder, error) {
	log.Debug().Interface("config", map[string]string{
		"provider":        llmConfig.Provider,
		"base_url":        llmConfig.BaseURL,
		"embedding_model": llmConfig.Model,
	}).Msg("Creating embedder")

	var client embeddings.EmbedderClient
	switch llmConfig.Provider {
	case config.ProviderOllama:
		opts := []ollama.Option{ollama.WithModel(llmConfig.Model)}
		if llmConfig.BaseURL != "" {
			opts = append(opts, ollama.WithServerURL(llmConfig.BaseURL))
		}
		llm, err := ollama.New(opts...)
		if err != nil {
			return nil, fmt.Errorf("init ollama embedder: %w", err)
		}
		client = llm
	default:
		llm, err := openai.New(
			openai.WithBaseURL(llmConfig.BaseURL),
			openai.WithToken(strings.TrimPrefix(llmConfig.Key, "Bearer ")),
			openai.WithModel(llmConfig.Model),
			openai.WithEmbeddingModel(llmConfig.Model),
		)
		if err != nil {
			return nil, fmt.Errorf("init openai embedder: %w", err)
		}
		client = llm
	}

	embedder, err := embeddings.NewEmbedder(client, embeddings.WithBatchSize(llmConfig.BatchSize))
	if err != nil {
		return nil, fmt.Errorf("create embedder: %w", err)
	}
	return embedder, nil
}

// EmbedChunks embeds every chunk in order. Nothing is returned unless every
// chunk got a vector of the expected dimension. A nil contextualize embeds
// the chunk text alone.
func EmbedChunks(ctx context.Context, embedder embeddings.Embedder, chunks []models.Chunk, dim int, contextualize Contextualizer) ([]models.ChunkEmbedding, error) {
	if len(chunks) == 0 {
		log.Info().Msg("No chunks generated from content")
		return nil, nil
	}

	out := make([]models.ChunkEmbedding, len(chunks))
	texts := make([]string, len(chunks))
	for i, chunk := range chunks {
		out[i].Chunk = chunk
		text := strings.TrimSpace(chunk.Content)
		if contextualize != nil {
			situated, err := contextualize(ctx, text)
			if err != nil {
				return nil, fmt.Errorf("contextualize chunk %d: %w", chunk.Seq, err)
			}
			out[i].Context = situated
			if situated != "" {
				text = situated + "\n\n" + text
			}
		}
		texts[i] = text
	}

	vectors, err := embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, err
	}
	if len(vectors) != len(chunks) {
		return nil, fmt.Errorf("%w: %d chunks, %d vectors", ErrCountMismatch, len(chunks), len(vectors))
	}
	for i, vec := range vectors {
		if err := checkDimension(vec, dim); err != nil {
			return nil, fmt.Errorf("chunk %d: %w", chunks[i].Seq, err)
		}
		out[i].Embedding = vec
	}
	return out, nil
}

// EmbedQuery embeds a single search text.
func EmbedQuery(ctx context.Context, embedder embeddings.Embedder, text string, dim int) ([]float32, error) {
	vec, err := embedder.EmbedQuery(ctx, text)
	if err != nil {
		return nil, err
	}
	if err := checkDimension(vec, dim); err != nil {
		return nil, err
	}
	return vec, nil
}

func checkDimension(vec []float32, dim int) error {
	if dim > 0 && len(vec) != dim {
		return fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(vec), dim)
	}
	if len(vec) == 0 {
		return fmt.Errorf("%w: empty vector", ErrDimensionMismatch)
	}
	return nil
}

// GenerateContext asks the model for a short context situating chunk
// within document.
func GenerateContext(ctx context.Context, llm llms.Model, document, chunk string) (string, error) {
	log.Debug().Int("chunk_len", len(chunk)).Msg("Generating context for chunk")
	prompt := fmt.Sprintf(models.ContextPromptTemplate, document, chunk)

	res, err := llms.GenerateFromSinglePrompt(ctx, llm, prompt)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(thinkRe.ReplaceAllString(res, "")), nil
}
