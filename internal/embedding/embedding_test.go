package embedding

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/tmc/langchaingo/llms"

	"question-rag/internal/models"
)

type fakeEmbedder struct {
	dim   int
	drop  bool
	texts []string
}

func (f *fakeEmbedder) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	f.texts = append(f.texts, texts...)
	out := make([][]float32, 0, len(texts))
	for i := range texts {
		vec := make([]float32, f.dim)
		vec[0] = float32(i)
		out = append(out, vec)
	}
	if f.drop {
		out = out[:len(out)-1]
	}
	return out, nil
}

func (f *fakeEmbedder) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	f.texts = append(f.texts, text)
	return make([]float32, f.dim), nil
}

type fakeModel struct {
	reply string
}

func (m *fakeModel) GenerateContent(_ context.Context, _ []llms.MessageContent, _ ...llms.CallOption) (*llms.ContentResponse, error) {
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: m.reply}}}, nil
}

func (m *fakeModel) Call(_ context.Context, _ string, _ ...llms.CallOption) (string, error) {
	return m.reply, nil
}

func TestEmbedChunksKeepsOrder(t *testing.T) {
	chunks := []models.Chunk{
		{Content: " first ", Seq: 1},
		{Content: "second", Seq: 2},
		{Content: "third\n", Seq: 3},
	}
	embedder := &fakeEmbedder{dim: 4}
	out, err := EmbedChunks(context.Background(), embedder, chunks, 4, nil)
	if err != nil {
		t.Fatalf("embed chunks: %v", err)
	}
	if len(out) != 3 {
		t.Fatalf("expected 3 embeddings, got %d", len(out))
	}
	for i, ce := range out {
		if ce.Seq != i+1 || ce.Embedding[0] != float32(i) {
			t.Fatalf("embedding %d out of order: %+v", i, ce)
		}
	}
	if embedder.texts[0] != "first" || embedder.texts[2] != "third" {
		t.Fatalf("expected trimmed texts, got %q", embedder.texts)
	}
}

func TestEmbedChunksRejectsBadVectors(t *testing.T) {
	chunks := []models.Chunk{{Content: "a", Seq: 1}, {Content: "b", Seq: 2}}

	_, err := EmbedChunks(context.Background(), &fakeEmbedder{dim: 3}, chunks, 4, nil)
	if !errors.Is(err, ErrDimensionMismatch) {
		t.Fatalf("expected dimension mismatch, got %v", err)
	}

	_, err = EmbedChunks(context.Background(), &fakeEmbedder{dim: 4, drop: true}, chunks, 4, nil)
	if !errors.Is(err, ErrCountMismatch) {
		t.Fatalf("expected count mismatch, got %v", err)
	}
}

func TestEmbedChunksWithContext(t *testing.T) {
	embedder := &fakeEmbedder{dim: 2}
	contextualize := func(_ context.Context, chunk string) (string, error) {
		return "ctx for " + chunk, nil
	}
	out, err := EmbedChunks(context.Background(), embedder, []models.Chunk{{Content: "body", Seq: 1}}, 2, contextualize)
	if err != nil {
		t.Fatalf("embed chunks: %v", err)
	}
	if out[0].Context != "ctx for body" {
		t.Fatalf("unexpected context %q", out[0].Context)
	}
	if embedder.texts[0] != "ctx for body\n\nbody" {
		t.Fatalf("context not prepended: %q", embedder.texts[0])
	}
}

func TestEmbedQueryChecksDimension(t *testing.T) {
	if _, err := EmbedQuery(context.Background(), &fakeEmbedder{dim: 8}, "q", 8); err != nil {
		t.Fatalf("embed query: %v", err)
	}
	if _, err := EmbedQuery(context.Background(), &fakeEmbedder{dim: 8}, "q", 16); !errors.Is(err, ErrDimensionMismatch) {
		t.Fatalf("expected dimension mismatch, got %v", err)
	}
}

func TestGenerateContextStripsThinking(t *testing.T) {
	model := &fakeModel{reply: "<think>reasoning\nhere</think>\n Chapter 2 covers estimation. "}
	got, err := GenerateContext(context.Background(), model, "doc", "chunk")
	if err != nil {
		t.Fatalf("generate context: %v", err)
	}
	if got != "Chapter 2 covers estimation." || strings.Contains(got, "think") {
		t.Fatalf("unexpected context %q", got)
	}
}
