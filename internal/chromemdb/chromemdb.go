package chromemdb

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"

	"github.com/philippgille/chromem-go"
	"github.com/rs/zerolog/log"

	"question-rag/internal/config"
	"question-rag/internal/models"
)

const (
	compress = false

	metaHash    = "content_hash"
	metaName    = "name"
	metaPage    = "page"
	metaSeq     = "seq"
	metaContext = "context"
)

// VectorDBManager keeps document chunks in a chromem-go collection. Every
// chunk carries its content hash in metadata so that lookups stay scoped to
// one document.
type VectorDBManager struct {
	db            *chromem.DB
	collection    *chromem.Collection
	dbPath        string
	inMemory      bool
	encryptionKey string
	filePath      string
}

// NewVectorDBManager opens the database and its collection. An in-memory
// database with an encryption key is restored from its export file when
// one exists.
func NewVectorDBManager(cfg *config.ChromemConfig) (*VectorDBManager, error) {
	var db *chromem.DB
	if cfg.InMemory {
		db = chromem.NewDB()
	} else {
		var err error
		db, err = chromem.NewPersistentDB(cfg.Path, compress)
		if err != nil {
			return nil, fmt.Errorf("failed to create database: %w", err)
		}
	}

	m := &VectorDBManager{
		db:            db,
		dbPath:        cfg.Path,
		inMemory:      cfg.InMemory,
		encryptionKey: cfg.EncryptionKey,
		filePath:      filepath.Join(cfg.Path, cfg.Collection+".chromem"),
	}
	if m.exportEnabled() {
		if err := m.Import(); err != nil {
			return nil, err
		}
	}
	if _, err := m.GetOrCreateCollection(cfg.Collection); err != nil {
		return nil, err
	}
	return m, nil
}

// create or read collection
func (m *VectorDBManager) GetOrCreateCollection(collectionName string) (*chromem.Collection, error) {
	// embeddings are always supplied by the caller, the func is never used
	c, err := m.db.GetOrCreateCollection(collectionName, nil, noEmbedding)
	if err != nil {
		return nil, fmt.Errorf("failed to create/get collection: %w", err)
	}
	m.collection = c
	return c, nil
}

func noEmbedding(context.Context, string) ([]float32, error) {
	return nil, errors.New("chromemdb: documents must be stored with embeddings")
}

func chunkID(hash string, i int) string {
	return hash + "-" + strconv.Itoa(i)
}

// HasChunks reports whether chunks for hash are present. StoreChunks always
// writes the id hash-0 for a non-empty batch.
func (m *VectorDBManager) HasChunks(ctx context.Context, hash string) (bool, error) {
	if _, err := m.collection.GetByID(ctx, chunkID(hash, 0)); err != nil {
		return false, nil
	}
	return true, nil
}

// StoreChunks adds all chunks of one document.
func (m *VectorDBManager) StoreChunks(ctx context.Context, hash, name string, chunks []models.ChunkEmbedding) error {
	if len(chunks) == 0 {
		return nil
	}
	docs := make([]chromem.Document, len(chunks))
	for i, ce := range chunks {
		metadata := map[string]string{
			metaHash: hash,
			metaName: name,
			metaPage: strconv.Itoa(ce.PageNumber),
			metaSeq:  strconv.Itoa(ce.Seq),
		}
		if ce.Context != "" {
			metadata[metaContext] = ce.Context
		}
		docs[i] = chromem.Document{
			ID:        chunkID(hash, i),
			Content:   ce.Content,
			Metadata:  metadata,
			Embedding: ce.Embedding,
		}
	}

	if err := m.collection.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
		return fmt.Errorf("failed to add documents: %w", err)
	}
	return m.persist()
}

// SearchChunks returns the chunks of hash most similar to vector. Distance
// is reported as one minus the cosine similarity.
func (m *VectorDBManager) SearchChunks(ctx context.Context, hash string, vector []float32, limit int) ([]models.SearchResult, error) {
	if len(vector) == 0 {
		return nil, fmt.Errorf("query embedding must be provided")
	}
	// chromem rejects a result count above the collection size
	if n := m.collection.Count(); limit > n {
		limit = n
	}
	if limit <= 0 {
		return nil, nil
	}

	results, err := m.collection.QueryWithOptions(ctx, chromem.QueryOptions{
		QueryEmbedding: vector,
		NResults:       limit,
		Where:          map[string]string{metaHash: hash},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query by similarity: %w", err)
	}

	out := make([]models.SearchResult, 0, len(results))
	for _, r := range results {
		seq, _ := strconv.Atoi(r.Metadata[metaSeq])
		out = append(out, models.SearchResult{
			Content:  r.Content,
			Seq:      seq,
			Distance: 1 - r.Similarity,
		})
	}
	return out, nil
}

// DeleteChunks removes every chunk of hash.
func (m *VectorDBManager) DeleteChunks(ctx context.Context, hash string) error {
	if err := m.collection.Delete(ctx, map[string]string{metaHash: hash}, nil); err != nil {
		return fmt.Errorf("failed to delete chunks: %w", err)
	}
	return m.persist()
}

// delete collection
func (m *VectorDBManager) DeleteCollection() error {
	if err := m.db.DeleteCollection(m.collection.Name); err != nil {
		return fmt.Errorf("failed to drop collection: %w", err)
	}
	return nil
}

// Reset drops every stored chunk by recreating the collection empty.
func (m *VectorDBManager) Reset() error {
	name := m.collection.Name
	if err := m.DeleteCollection(); err != nil {
		return err
	}
	if _, err := m.GetOrCreateCollection(name); err != nil {
		return err
	}
	return m.persist()
}

func (m *VectorDBManager) exportEnabled() bool {
	return m.inMemory && m.encryptionKey != "" && m.dbPath != ""
}

// persist writes the encrypted export after a change when the database
// only lives in memory.
func (m *VectorDBManager) persist() error {
	if !m.exportEnabled() {
		return nil
	}
	return m.Export()
}

// export to file
func (m *VectorDBManager) Export() error {
	if m.encryptionKey == "" {
		return fmt.Errorf("encryption key is required")
	}
	if m.collection == nil {
		return fmt.Errorf("collection is required")
	}
	if err := os.MkdirAll(m.dbPath, 0o755); err != nil {
		return fmt.Errorf("failed to create export dir: %w", err)
	}

	log.Debug().
		Str("collection", m.collection.Name).
		Str("file", m.filePath).
		Bool("compress", compress).
		Msg("Exporting chromem collection")
	if err := m.db.ExportToFile(m.filePath, compress, m.encryptionKey, m.collection.Name); err != nil {
		return fmt.Errorf("failed to export database: %w", err)
	}
	return nil
}

// import from file, a missing export file is not an error
func (m *VectorDBManager) Import() error {
	if _, err := os.Stat(m.filePath); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err := m.db.ImportFromFile(m.filePath, m.encryptionKey); err != nil {
		return fmt.Errorf("failed to import database: %w", err)
	}
	log.Debug().Str("file", m.filePath).Msg("Imported chromem collection")
	return nil
}
