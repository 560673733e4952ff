package chromemdb

import (
	"context"
	"testing"

	"question-rag/internal/config"
	"question-rag/internal/models"
)

func newTestManager(t *testing.T, cfg *config.ChromemConfig) *VectorDBManager {
	t.Helper()
	m, err := NewVectorDBManager(cfg)
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	return m
}

func sampleChunks() []models.ChunkEmbedding {
	return []models.ChunkEmbedding{
		{Chunk: models.Chunk{Content: "alpha", PageNumber: 1, ChunkID: 1, Seq: 1}, Embedding: []float32{1, 0, 0}},
		{Chunk: models.Chunk{Content: "beta", PageNumber: 1, ChunkID: 2, Seq: 2}, Embedding: []float32{0, 1, 0}},
		{Chunk: models.Chunk{Content: "gamma", PageNumber: 2, ChunkID: 1, Seq: 3}, Embedding: []float32{0, 0, 1}},
	}
}

func TestStoreSearchDeleteScopedByHash(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t, &config.ChromemConfig{InMemory: true, Collection: "test"})

	if ok, err := m.HasChunks(ctx, "hash-a"); err != nil || ok {
		t.Fatalf("expected empty index, got %v %v", ok, err)
	}
	if err := m.StoreChunks(ctx, "hash-a", "a.pdf", sampleChunks()); err != nil {
		t.Fatalf("store: %v", err)
	}
	other := []models.ChunkEmbedding{
		{Chunk: models.Chunk{Content: "other", Seq: 1}, Embedding: []float32{1, 0, 0}},
	}
	if err := m.StoreChunks(ctx, "hash-b", "b.pdf", other); err != nil {
		t.Fatalf("store other: %v", err)
	}

	if ok, err := m.HasChunks(ctx, "hash-a"); err != nil || !ok {
		t.Fatalf("expected chunks for hash-a, got %v %v", ok, err)
	}

	results, err := m.SearchChunks(ctx, "hash-a", []float32{1, 0, 0}, 10)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	if results[0].Content != "alpha" || results[0].Seq != 1 {
		t.Fatalf("unexpected top result %+v", results[0])
	}
	for _, r := range results {
		if r.Content == "other" {
			t.Fatalf("search leaked a chunk from another document")
		}
	}

	if err := m.DeleteChunks(ctx, "hash-a"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if ok, _ := m.HasChunks(ctx, "hash-a"); ok {
		t.Fatalf("chunks for hash-a should be gone")
	}
	if ok, _ := m.HasChunks(ctx, "hash-b"); !ok {
		t.Fatalf("chunks for hash-b should remain")
	}
}

func TestSearchEmptyCollection(t *testing.T) {
	m := newTestManager(t, &config.ChromemConfig{InMemory: true, Collection: "empty"})
	results, err := m.SearchChunks(context.Background(), "hash", []float32{1, 0}, 5)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(results) != 0 {
		t.Fatalf("expected no results, got %d", len(results))
	}
	if _, err := m.SearchChunks(context.Background(), "hash", nil, 5); err == nil {
		t.Fatalf("expected error for missing query embedding")
	}
}

func TestEncryptedExportSurvivesRestart(t *testing.T) {
	ctx := context.Background()
	cfg := &config.ChromemConfig{
		Path:          t.TempDir(),
		Collection:    "chunks",
		InMemory:      true,
		EncryptionKey: "0123456789abcdef0123456789abcdef",
	}
	m := newTestManager(t, cfg)
	if err := m.StoreChunks(ctx, "hash-a", "a.pdf", sampleChunks()); err != nil {
		t.Fatalf("store: %v", err)
	}

	restored := newTestManager(t, cfg)
	if ok, err := restored.HasChunks(ctx, "hash-a"); err != nil || !ok {
		t.Fatalf("expected chunks after import, got %v %v", ok, err)
	}
}

func TestResetDropsAllChunks(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t, &config.ChromemConfig{InMemory: true, Collection: "reset"})
	if err := m.StoreChunks(ctx, "hash-a", "a.pdf", sampleChunks()); err != nil {
		t.Fatalf("store: %v", err)
	}

	if err := m.Reset(); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if ok, _ := m.HasChunks(ctx, "hash-a"); ok {
		t.Fatalf("chunks should be gone after reset")
	}
	if err := m.StoreChunks(ctx, "hash-a", "a.pdf", sampleChunks()); err != nil {
		t.Fatalf("store after reset: %v", err)
	}
	if ok, _ := m.HasChunks(ctx, "hash-a"); !ok {
		t.Fatalf("collection should accept chunks again")
	}
}
