package index

import (
	"context"
	"encoding/gob"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/knoguchi/omnirag/internal/core"
)

// Config configures a Store.
type Config struct {
	Dir    string
	Dense  DenseConfig
	RRFK   int // Reciprocal Rank Fusion constant, spec default 60
}

// Store is the hybrid dense+sparse index: C2. It fuses HNSW dense search and
// bleve BM25 search with Reciprocal Rank Fusion, and serves as the System of
// record for chunk content (dense/sparse indexes only ever resolve to IDs).
type Store struct {
	mu     sync.RWMutex
	dense  *DenseIndex
	sparse *SparseIndex
	lock   *WriteLock
	dir    string
	rrfK   int
	chunks map[string]core.Chunk
}

// Open creates or loads a hybrid store rooted at cfg.Dir.
func Open(cfg Config) (*Store, error) {
	if cfg.RRFK <= 0 {
		cfg.RRFK = 60
	}

	sparsePath := ""
	if cfg.Dir != "" {
		sparsePath = filepath.Join(cfg.Dir, "sparse.bleve")
	}
	sparse, err := NewSparseIndex(sparsePath)
	if err != nil {
		return nil, fmt.Errorf("opening sparse index: %w", err)
	}

	s := &Store{
		dense:  NewDenseIndex(cfg.Dense),
		sparse: sparse,
		dir:    cfg.Dir,
		rrfK:   cfg.RRFK,
		chunks: make(map[string]core.Chunk),
	}

	if cfg.Dir != "" {
		s.lock = NewWriteLock(cfg.Dir)
		if _, err := os.Stat(filepath.Join(cfg.Dir, "dense.meta")); err == nil {
			if err := s.load(); err != nil {
				return nil, fmt.Errorf("loading hybrid index: %w", err)
			}
		}
	}

	return s, nil
}

// Upsert indexes chunks into both the dense and sparse sides and records
// their content for later retrieval. Acquires the write lock for the
// duration of the call, enforcing single-writer/many-reader access across
// processes sharing cfg.Dir.
func (s *Store) Upsert(ctx context.Context, chunks []core.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	if s.lock != nil {
		if err := s.lock.Lock(); err != nil {
			return fmt.Errorf("acquiring index write lock: %w", err)
		}
		defer s.lock.Unlock()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]string, len(chunks))
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		if err := s.dense.Upsert(c.ID, c.Vector); err != nil {
			return fmt.Errorf("dense upsert of chunk %s: %w", c.ID, err)
		}
		ids[i] = c.ID
		texts[i] = c.Text
		s.chunks[c.ID] = c
	}

	if err := s.sparse.Upsert(ctx, ids, texts); err != nil {
		return fmt.Errorf("sparse upsert: %w", err)
	}
	return nil
}

// Delete removes chunks by ID from both sides of the index.
func (s *Store) Delete(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	if s.lock != nil {
		if err := s.lock.Lock(); err != nil {
			return fmt.Errorf("acquiring index write lock: %w", err)
		}
		defer s.lock.Unlock()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.dense.Delete(ids...)
	if err := s.sparse.Delete(ctx, ids...); err != nil {
		return fmt.Errorf("sparse delete: %w", err)
	}
	for _, id := range ids {
		delete(s.chunks, id)
	}
	return nil
}

// HybridSearch runs dense and sparse search concurrently-equivalent
// sequential calls and fuses them with weighted Reciprocal Rank Fusion:
//
//	fused(d) = alpha / (k + rank_dense(d)) + (1-alpha) / (k + rank_sparse(d))
//
// alpha controls the dense/sparse balance (spec §4.2, DESIGN.md Open
// Question #1). Results absent from one ranking simply don't contribute
// that term. Every caller that serves a request on behalf of a specific
// owner must pass ownerID: candidates owned by anyone else are dropped
// from the fused set before the top-k cut, not after, so other owners'
// chunks never starve a request's own results out of the final page. An
// empty ownerID disables the check, for callers that deliberately search
// across all owners. sessionID and docType are optional narrowing filters
// on top of that — empty strings disable them. A chunk with no SessionID
// is visible to every session for its owner.
func (s *Store) HybridSearch(ctx context.Context, queryText string, queryVector []float32, ownerID, sessionID, docType string, alpha float64, topK int) ([]core.SearchResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	depth := 10 * topK
	if total := len(s.chunks); depth > total {
		depth = total
	}
	if depth <= 0 {
		depth = topK
	}

	denseHits, err := s.dense.Search(queryVector, depth)
	if err != nil {
		return nil, fmt.Errorf("dense search: %w", err)
	}
	sparseHits, err := s.sparse.Search(ctx, queryText, depth)
	if err != nil {
		return nil, fmt.Errorf("sparse search: %w", err)
	}

	fused := make(map[string]float64)
	for rank, hit := range denseHits {
		fused[hit.ID] += alpha / float64(s.rrfK+rank+1)
	}
	for rank, hit := range sparseHits {
		fused[hit.ID] += (1 - alpha) / float64(s.rrfK+rank+1)
	}

	ids := make([]string, 0, len(fused))
	for id := range fused {
		chunk, ok := s.chunks[id]
		if !ok {
			continue
		}
		if ownerID != "" && chunk.OwnerID != ownerID {
			continue
		}
		if sessionID != "" && chunk.SessionID != "" && chunk.SessionID != sessionID {
			continue
		}
		if docType != "" && chunk.Metadata["type"] != docType {
			continue
		}
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return fused[ids[i]] > fused[ids[j]] })

	if len(ids) > topK {
		ids = ids[:topK]
	}

	results := make([]core.SearchResult, 0, len(ids))
	for _, id := range ids {
		results = append(results, core.SearchResult{
			Chunk:  s.chunks[id],
			Score:  float32(fused[id]),
			Source: "fused",
		})
	}
	return results, nil
}

// DiversitySelect applies an MMR-style (Maximal Marginal Relevance) pass
// over ranked results, trading off relevance against similarity to
// already-selected results so the final top-n isn't dominated by
// near-duplicate chunks. lambda in [0,1]: 1 favors pure relevance, 0 favors
// pure diversity.
func DiversitySelect(results []core.SearchResult, lambda float64, n int) []core.SearchResult {
	if n <= 0 || n >= len(results) {
		return results
	}

	selected := make([]core.SearchResult, 0, n)
	remaining := append([]core.SearchResult(nil), results...)

	for len(selected) < n && len(remaining) > 0 {
		bestIdx := 0
		bestScore := math.Inf(-1)
		for i, cand := range remaining {
			maxSim := 0.0
			for _, sel := range selected {
				if sim := cosineSim(cand.Vector, sel.Vector); sim > maxSim {
					maxSim = sim
				}
			}
			mmr := lambda*float64(cand.Score) - (1-lambda)*maxSim
			if mmr > bestScore {
				bestScore = mmr
				bestIdx = i
			}
		}
		selected = append(selected, remaining[bestIdx])
		remaining = append(remaining[:bestIdx], remaining[bestIdx+1:]...)
	}
	return selected
}

func cosineSim(a, b []float32) float64 {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// Save persists the dense graph, its metadata, and the chunk-content table
// under the store's directory. The sparse (bleve) side persists itself.
func (s *Store) Save() error {
	if s.dir == "" {
		return nil
	}
	if s.lock != nil {
		if err := s.lock.Lock(); err != nil {
			return fmt.Errorf("acquiring index write lock: %w", err)
		}
		defer s.lock.Unlock()
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.dense.Save(s.dir); err != nil {
		return fmt.Errorf("saving dense index: %w", err)
	}
	return s.saveChunks()
}

func (s *Store) saveChunks() error {
	path := filepath.Join(s.dir, "chunks.gob")
	tmpPath := path + ".tmp"
	f, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("creating chunk table temp file: %w", err)
	}
	if err := gob.NewEncoder(f).Encode(s.chunks); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("encoding chunk table: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("closing chunk table temp file: %w", err)
	}
	return os.Rename(tmpPath, path)
}

func (s *Store) load() error {
	if err := s.dense.Load(s.dir); err != nil {
		return fmt.Errorf("loading dense index: %w", err)
	}

	path := filepath.Join(s.dir, "chunks.gob")
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("opening chunk table: %w", err)
	}
	defer f.Close()
	return gob.NewDecoder(f).Decode(&s.chunks)
}

// Close releases the sparse index's resources.
func (s *Store) Close() error {
	return s.sparse.Close()
}

// ChunksByOwner returns every indexed chunk owned by ownerID, for coarse
// per-owner statistics.
func (s *Store) ChunksByOwner(ownerID string) []core.Chunk {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []core.Chunk
	for _, c := range s.chunks {
		if c.OwnerID == ownerID {
			out = append(out, c)
		}
	}
	return out
}
