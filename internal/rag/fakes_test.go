package rag

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/schema"

	"question-rag/internal/db"
	"question-rag/internal/models"
)

type fakeRecords struct {
	mu         sync.Mutex
	docs       map[string]*db.Document
	insertErr  error
	replaceErr error
	// beforeInsert runs inside InsertResult, before the uniqueness check.
	beforeInsert func(s *fakeRecords)
	inserts      int
}

func newFakeRecords() *fakeRecords {
	return &fakeRecords{docs: make(map[string]*db.Document)}
}

func (s *fakeRecords) seed(doc *db.Document) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs[doc.ContentHash] = doc
}

func (s *fakeRecords) get(hash string) *db.Document {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.docs[hash]
}

func (s *fakeRecords) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.docs)
}

func (s *fakeRecords) LookupByHash(_ context.Context, hash string) (*db.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.docs[hash]
	if !ok {
		return nil, nil
	}
	cp := *doc
	return &cp, nil
}

func (s *fakeRecords) InsertResult(_ context.Context, doc *db.Document) error {
	if s.beforeInsert != nil {
		s.beforeInsert(s)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inserts++
	if s.insertErr != nil {
		return s.insertErr
	}
	if _, ok := s.docs[doc.ContentHash]; ok {
		return db.ErrDuplicate
	}
	cp := *doc
	cp.CreatedAt = time.Now()
	s.docs[doc.ContentHash] = &cp
	return nil
}

func (s *fakeRecords) ReplaceResult(_ context.Context, doc *db.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.replaceErr != nil {
		return s.replaceErr
	}
	if prev, ok := s.docs[doc.ContentHash]; ok {
		doc.ID = prev.ID
		doc.CreatedAt = prev.CreatedAt
	}
	cp := *doc
	s.docs[doc.ContentHash] = &cp
	return nil
}

func (s *fakeRecords) ListAuthoritative(_ context.Context) ([]models.HistoryEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.HistoryEntry
	for _, doc := range s.docs {
		out = append(out, *entryFromDocument(doc))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

type fakeIndex struct {
	mu       sync.Mutex
	chunks   map[string][]models.ChunkEmbedding
	storeErr error
	deletes  int
}

func newFakeIndex() *fakeIndex {
	return &fakeIndex{chunks: make(map[string][]models.ChunkEmbedding)}
}

func (f *fakeIndex) count(hash string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.chunks[hash])
}

func (f *fakeIndex) HasChunks(_ context.Context, hash string) (bool, error) {
	return f.count(hash) > 0, nil
}

func (f *fakeIndex) StoreChunks(_ context.Context, hash, _ string, chunks []models.ChunkEmbedding) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.storeErr != nil {
		return f.storeErr
	}
	f.chunks[hash] = append(f.chunks[hash], chunks...)
	return nil
}

// SearchChunks returns the chunks of hash in reverse order so callers must
// restore document order themselves.
func (f *fakeIndex) SearchChunks(_ context.Context, hash string, _ []float32, limit int) ([]models.SearchResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	stored := f.chunks[hash]
	var out []models.SearchResult
	for i := len(stored) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, models.SearchResult{Content: stored[i].Content, Seq: stored[i].Seq})
	}
	return out, nil
}

func (f *fakeIndex) DeleteChunks(_ context.Context, hash string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletes++
	delete(f.chunks, hash)
	return nil
}

type fakeEmbedder struct {
	dim int
	err error
}

func (f *fakeEmbedder) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i, text := range texts {
		out[i] = f.vector(text)
	}
	return out, nil
}

func (f *fakeEmbedder) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.vector(text), nil
}

func (f *fakeEmbedder) vector(text string) []float32 {
	vec := make([]float32, f.dim)
	vec[0] = float32(len(text))
	return vec
}

type fakeLLM struct {
	mu       sync.Mutex
	calls    int
	messages [][]llms.MessageContent
	reply    *models.Reply
	err      error
	delay    time.Duration
}

func (f *fakeLLM) Generate(_ context.Context, messages []llms.MessageContent) (models.Reply, error) {
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.messages = append(f.messages, messages)
	if f.err != nil {
		return models.Reply{}, f.err
	}
	if f.reply != nil {
		return *f.reply, nil
	}
	return models.PlainText(fmt.Sprintf("generated set %d", f.calls)), nil
}

func (f *fakeLLM) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// lastHumanText returns the text of the human message of the last call.
func (f *fakeLLM) lastHumanText() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.messages) == 0 {
		return ""
	}
	for _, msg := range f.messages[len(f.messages)-1] {
		if msg.Role != schema.ChatMessageTypeHuman {
			continue
		}
		for _, part := range msg.Parts {
			if text, ok := part.(llms.TextContent); ok {
				return text.Text
			}
		}
	}
	return ""
}

type fakeCache struct {
	mu      sync.Mutex
	entries map[string]models.HistoryEntry
	getErr  error
}

func newFakeCache() *fakeCache {
	return &fakeCache{entries: make(map[string]models.HistoryEntry)}
}

func (c *fakeCache) Get(_ context.Context, hash string) (*models.HistoryEntry, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.getErr != nil {
		return nil, false, c.getErr
	}
	entry, ok := c.entries[hash]
	if !ok {
		return nil, false, nil
	}
	return &entry, true, nil
}

func (c *fakeCache) Set(_ context.Context, entry *models.HistoryEntry) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[entry.ContentHash] = *entry
	return nil
}

var errUnavailable = errors.New("service unavailable")
