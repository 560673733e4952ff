package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/pgvector/pgvector-go"
	"github.com/uptrace/bun"

	"question-rag/internal/helper"
	"question-rag/internal/models"
)

const insertBatchSize = 500

// Store is the Postgres side of the vector store: chunk rows for similarity
// search and authoritative generation records keyed by content hash.
type Store struct {
	db *bun.DB
}

func NewStore(db *bun.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// LookupByHash returns the authoritative record for hash, or nil when there
// is none. Should duplicates exist the oldest one wins.
func (s *Store) LookupByHash(ctx context.Context, hash string) (*Document, error) {
	doc := new(Document)
	err := s.db.NewSelect().
		Model(doc).
		ExcludeColumn("embedding").
		Where("d.content_hash = ?", hash).
		Where("d.usage->'questions' IS NOT NULL").
		OrderExpr("d.created_at ASC").
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lookup by hash: %w", err)
	}
	return doc, nil
}

func (s *Store) HasChunks(ctx context.Context, hash string) (bool, error) {
	exists, err := s.db.NewSelect().
		Model((*Document)(nil)).
		Where("d.content_hash = ?", hash).
		Where("d.usage IS NULL").
		Where("d.embedding IS NOT NULL").
		Exists(ctx)
	if err != nil {
		return false, fmt.Errorf("check chunks: %w", err)
	}
	return exists, nil
}

// StoreChunks writes one row per chunk in a single transaction. It does not
// check for existing rows; calling it twice duplicates the chunks.
func (s *Store) StoreChunks(ctx context.Context, hash, name string, chunks []models.ChunkEmbedding) error {
	if len(chunks) == 0 {
		return nil
	}
	docs := make([]Document, len(chunks))
	for i, ce := range chunks {
		id, err := helper.GenerateUUID()
		if err != nil {
			return err
		}
		vec := pgvector.NewVector(ce.Embedding)
		metadata := map[string]any{
			"page":     ce.PageNumber,
			"chunk_id": ce.ChunkID,
			"seq":      ce.Seq,
			"offset":   ce.Offset,
		}
		if ce.Context != "" {
			metadata["context"] = ce.Context
		}
		docs[i] = Document{
			ID:          id,
			Name:        name,
			Metadata:    metadata,
			Filters:     map[string]any{},
			Content:     ce.Content,
			Embedding:   &vec,
			ContentHash: hash,
		}
	}

	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		for start := 0; start < len(docs); start += insertBatchSize {
			end := min(start+insertBatchSize, len(docs))
			batch := docs[start:end]
			if _, err := tx.NewInsert().Model(&batch).Exec(ctx); err != nil {
				return fmt.Errorf("store chunks: %w", err)
			}
		}
		return nil
	})
}

// SearchChunks returns the chunks of hash closest to vector.
func (s *Store) SearchChunks(ctx context.Context, hash string, vector []float32, limit int) ([]models.SearchResult, error) {
	query := pgvector.NewVector(vector)
	var results []models.SearchResult
	err := s.db.NewSelect().
		Model((*Document)(nil)).
		Column("content").
		ColumnExpr("COALESCE((d.metadata->>'seq')::int, 0) AS seq").
		ColumnExpr("d.embedding <-> ?::vector AS distance", query).
		Where("d.content_hash = ?", hash).
		Where("d.usage IS NULL").
		Where("d.embedding IS NOT NULL").
		OrderExpr("d.embedding <-> ?::vector", query).
		Limit(limit).
		Scan(ctx, &results)
	if err != nil {
		return nil, fmt.Errorf("search chunks: %w", err)
	}
	return results, nil
}

// DeleteChunks removes the chunk rows of hash. Authoritative records are
// left alone.
func (s *Store) DeleteChunks(ctx context.Context, hash string) error {
	_, err := s.db.NewDelete().
		Model((*Document)(nil)).
		Where("content_hash = ?", hash).
		Where("usage IS NULL").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("delete chunks: %w", err)
	}
	return nil
}

// InsertResult stores a new authoritative record. ErrDuplicate means another
// writer stored one for the same hash first.
func (s *Store) InsertResult(ctx context.Context, doc *Document) error {
	_, err := s.db.NewInsert().Model(doc).Returning("created_at").Exec(ctx)
	if IsUniqueViolation(err) {
		return ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("insert result: %w", err)
	}
	return nil
}

// ReplaceResult upserts the authoritative record for doc.ContentHash. On
// conflict the existing row keeps its id and creation time, which are
// written back into doc.
func (s *Store) ReplaceResult(ctx context.Context, doc *Document) error {
	_, err := s.db.NewInsert().
		Model(doc).
		On("CONFLICT (content_hash) WHERE usage->'questions' IS NOT NULL DO UPDATE").
		Set("name = EXCLUDED.name").
		Set("content = EXCLUDED.content").
		Set("usage = EXCLUDED.usage").
		Set("updated_at = now()").
		Returning("id, created_at").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("replace result: %w", err)
	}
	return nil
}

// ListAuthoritative returns every authoritative record, most recently
// generated or regenerated first.
func (s *Store) ListAuthoritative(ctx context.Context) ([]models.HistoryEntry, error) {
	var docs []Document
	err := s.db.NewSelect().
		Model(&docs).
		Column("id", "name", "usage", "content_hash", "created_at").
		Where("d.usage->'questions' IS NOT NULL").
		OrderExpr("COALESCE(d.updated_at, d.created_at) DESC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list authoritative: %w", err)
	}
	entries := make([]models.HistoryEntry, 0, len(docs))
	for i := range docs {
		entries = append(entries, models.HistoryEntry{
			ID:          docs[i].ID,
			Name:        docs[i].Name,
			Questions:   docs[i].Questions(),
			ContentHash: docs[i].ContentHash,
			CreatedAt:   docs[i].CreatedAt,
		})
	}
	return entries, nil
}
