package index

import (
	"bufio"
	"encoding/gob"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"

	"github.com/coder/hnsw"
)

// DenseConfig configures the HNSW dense-vector graph. Defaults follow the
// spec's recommended parameters for corpora in the low-millions-of-chunks
// range.
type DenseConfig struct {
	Dimension      int
	GraphDegree    int // M
	EfConstruction int
	EfSearch       int
}

func (c DenseConfig) withDefaults() DenseConfig {
	if c.GraphDegree <= 0 {
		c.GraphDegree = 32
	}
	if c.EfConstruction <= 0 {
		c.EfConstruction = 200
	}
	if c.EfSearch <= 0 {
		c.EfSearch = 100
	}
	return c
}

// DenseResult is one nearest-neighbor match.
type DenseResult struct {
	ID    string
	Score float32 // cosine similarity, higher is better
}

// DenseIndex is an in-process approximate nearest-neighbor index over
// cosine-normalized embeddings, backed by coder/hnsw.
type DenseIndex struct {
	mu     sync.RWMutex
	graph  *hnsw.Graph[uint64]
	cfg    DenseConfig
	idMap  map[string]uint64
	keyMap map[uint64]string
	nextID uint64
}

type denseMetadata struct {
	IDMap  map[string]uint64
	NextID uint64
	Config DenseConfig
}

// NewDenseIndex builds a fresh in-memory HNSW graph.
func NewDenseIndex(cfg DenseConfig) *DenseIndex {
	cfg = cfg.withDefaults()

	graph := hnsw.NewGraph[uint64]()
	graph.Distance = hnsw.CosineDistance
	graph.M = cfg.GraphDegree
	graph.EfSearch = cfg.EfSearch
	graph.Ml = 1 / math.Log(float64(cfg.GraphDegree))

	return &DenseIndex{
		graph:  graph,
		cfg:    cfg,
		idMap:  make(map[string]uint64),
		keyMap: make(map[uint64]string),
	}
}

// Upsert inserts or replaces the vector for id. Replacement uses lazy
// deletion (orphaning the old graph node) since coder/hnsw's own Delete can
// corrupt the graph when the removed node was the last one added.
func (d *DenseIndex) Upsert(id string, vector []float32) error {
	if len(vector) != d.cfg.Dimension {
		return fmt.Errorf("dense upsert: expected dimension %d, got %d", d.cfg.Dimension, len(vector))
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if existing, ok := d.idMap[id]; ok {
		delete(d.keyMap, existing)
		delete(d.idMap, id)
	}

	vec := make([]float32, len(vector))
	copy(vec, vector)
	normalize(vec)

	key := d.nextID
	d.nextID++

	d.graph.Add(hnsw.MakeNode(key, vec))
	d.idMap[id] = key
	d.keyMap[key] = id
	return nil
}

// Delete removes ids via lazy deletion.
func (d *DenseIndex) Delete(ids ...string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, id := range ids {
		if key, ok := d.idMap[id]; ok {
			delete(d.keyMap, key)
			delete(d.idMap, id)
		}
	}
}

// Search returns the k nearest neighbors of query by cosine similarity.
func (d *DenseIndex) Search(query []float32, k int) ([]DenseResult, error) {
	if len(query) != d.cfg.Dimension {
		return nil, fmt.Errorf("dense search: expected dimension %d, got %d", d.cfg.Dimension, len(query))
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.graph.Len() == 0 {
		return nil, nil
	}

	q := make([]float32, len(query))
	copy(q, query)
	normalize(q)

	nodes := d.graph.Search(q, k)
	results := make([]DenseResult, 0, len(nodes))
	for _, n := range nodes {
		id, ok := d.keyMap[n.Key]
		if !ok {
			continue // orphaned by lazy deletion
		}
		dist := d.graph.Distance(q, n.Value)
		results = append(results, DenseResult{ID: id, Score: 1.0 - dist/2.0})
	}
	return results, nil
}

// Len returns the number of live (non-orphaned) vectors.
func (d *DenseIndex) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.idMap)
}

// Save atomically persists the graph and its ID mapping under dir.
func (d *DenseIndex) Save(dir string) error {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating dense index directory: %w", err)
	}

	graphPath := filepath.Join(dir, "dense.hnsw")
	tmpPath := graphPath + ".tmp"
	f, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("creating dense index temp file: %w", err)
	}
	if err := d.graph.Export(f); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("exporting dense graph: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("closing dense index temp file: %w", err)
	}
	if err := os.Rename(tmpPath, graphPath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("renaming dense index file: %w", err)
	}

	return d.saveMetadata(filepath.Join(dir, "dense.meta"))
}

func (d *DenseIndex) saveMetadata(path string) error {
	tmpPath := path + ".tmp"
	f, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("creating dense metadata temp file: %w", err)
	}
	meta := denseMetadata{IDMap: d.idMap, NextID: d.nextID, Config: d.cfg}
	if err := gob.NewEncoder(f).Encode(meta); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("encoding dense metadata: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("closing dense metadata temp file: %w", err)
	}
	return os.Rename(tmpPath, path)
}

// Load reads back a graph previously written by Save.
func (d *DenseIndex) Load(dir string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	metaFile, err := os.Open(filepath.Join(dir, "dense.meta"))
	if err != nil {
		return fmt.Errorf("opening dense metadata: %w", err)
	}
	defer metaFile.Close()

	var meta denseMetadata
	if err := gob.NewDecoder(metaFile).Decode(&meta); err != nil {
		return fmt.Errorf("decoding dense metadata: %w", err)
	}
	d.idMap = meta.IDMap
	d.nextID = meta.NextID
	d.cfg = meta.Config
	d.keyMap = make(map[uint64]string, len(d.idMap))
	for id, key := range d.idMap {
		d.keyMap[key] = id
	}

	graphFile, err := os.Open(filepath.Join(dir, "dense.hnsw"))
	if err != nil {
		return fmt.Errorf("opening dense graph file: %w", err)
	}
	defer graphFile.Close()

	graph := hnsw.NewGraph[uint64]()
	graph.Distance = hnsw.CosineDistance
	graph.M = d.cfg.GraphDegree
	graph.EfSearch = d.cfg.EfSearch
	graph.Ml = 1 / math.Log(float64(d.cfg.GraphDegree))

	if err := graph.Import(bufio.NewReader(graphFile)); err != nil {
		return fmt.Errorf("importing dense graph: %w", err)
	}
	d.graph = graph
	return nil
}

func normalize(v []float32) {
	var sumSq float64
	for _, x := range v {
		sumSq += float64(x) * float64(x)
	}
	if sumSq == 0 {
		return
	}
	inv := float32(1.0 / math.Sqrt(sumSq))
	for i := range v {
		v[i] *= inv
	}
}
