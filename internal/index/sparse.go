package index

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"
)

// sparseDocument is the document shape stored in the bleve index; only the
// chunk text is indexed, content-addressed by chunk ID.
type sparseDocument struct {
	Content string `json:"content"`
}

// SparseResult is one BM25 keyword match.
type SparseResult struct {
	ID    string
	Score float32
}

// SparseIndex wraps a bleve index for BM25 keyword search over chunk text.
type SparseIndex struct {
	mu     sync.RWMutex
	index  bleve.Index
	path   string
	closed bool
}

// NewSparseIndex opens (or creates) a bleve index at path. An empty path
// creates an in-memory index, used by tests and ephemeral pipelines.
func NewSparseIndex(path string) (*SparseIndex, error) {
	mapping := bleve.NewIndexMapping()

	var idx bleve.Index
	var err error
	if path == "" {
		idx, err = bleve.NewMemOnly(mapping)
	} else {
		if mkErr := os.MkdirAll(filepath.Dir(path), 0o755); mkErr != nil {
			return nil, fmt.Errorf("creating sparse index directory: %w", mkErr)
		}
		idx, err = bleve.Open(path)
		if err == bleve.ErrorIndexPathDoesNotExist {
			idx, err = bleve.New(path, mapping)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("opening sparse index: %w", err)
	}

	return &SparseIndex{index: idx, path: path}, nil
}

// Upsert indexes or reindexes the given chunk id/text pairs in one batch.
func (s *SparseIndex) Upsert(ctx context.Context, ids []string, texts []string) error {
	if len(ids) != len(texts) {
		return fmt.Errorf("sparse upsert: ids/texts length mismatch: %d vs %d", len(ids), len(texts))
	}
	if len(ids) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("sparse index is closed")
	}

	batch := s.index.NewBatch()
	for i, id := range ids {
		if err := batch.Index(id, sparseDocument{Content: texts[i]}); err != nil {
			return fmt.Errorf("batching sparse document %s: %w", id, err)
		}
	}
	if err := s.index.Batch(batch); err != nil {
		return fmt.Errorf("executing sparse batch: %w", err)
	}
	return nil
}

// Delete removes the given ids from the index.
func (s *SparseIndex) Delete(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("sparse index is closed")
	}
	batch := s.index.NewBatch()
	for _, id := range ids {
		batch.Delete(id)
	}
	return s.index.Batch(batch)
}

// Search returns the top-k BM25 matches for query.
func (s *SparseIndex) Search(ctx context.Context, query string, k int) ([]SparseResult, error) {
	if strings.TrimSpace(query) == "" {
		return nil, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, fmt.Errorf("sparse index is closed")
	}

	matchQuery := bleve.NewMatchQuery(query)
	matchQuery.SetField("content")

	req := bleve.NewSearchRequest(matchQuery)
	req.Size = k

	result, err := s.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("sparse search: %w", err)
	}

	out := make([]SparseResult, 0, len(result.Hits))
	for _, hit := range result.Hits {
		out = append(out, SparseResult{ID: hit.ID, Score: hit.Score})
	}
	return out, nil
}

// Close releases the underlying bleve index.
func (s *SparseIndex) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.index.Close()
}
