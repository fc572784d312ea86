package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/knoguchi/omnirag/internal/chunker"
	"github.com/knoguchi/omnirag/internal/core"
	"github.com/knoguchi/omnirag/internal/extract"
	"github.com/knoguchi/omnirag/internal/graph"
)

// IngestRequest describes a document to chunk, embed, and index. Blob
// storage and metadata persistence are external collaborators; Pipeline
// only ever sees the raw bytes already resolved to text.
type IngestRequest struct {
	DocumentID string
	OwnerID    string
	SessionID  string // optional; scopes the resulting chunks to one session
	Filename   string
	Text       string
	Metadata   map[string]string
}

// IngestResult reports what IngestDocument actually indexed.
type IngestResult struct {
	ChunksIndexed int
}

// IngestDocument chunks req.Text, embeds every chunk, and upserts them into
// the hybrid index. It does not touch the knowledge graph; callers that
// want graph-backed multi-hop answers call BuildGraphForDocument
// separately, since extraction is a materially more expensive pass.
func (p *Pipeline) IngestDocument(ctx context.Context, req IngestRequest) (IngestResult, error) {
	if p.Index == nil {
		return IngestResult{}, fmt.Errorf("%w: no index configured", core.ErrConfig)
	}

	pieces := chunker.NewChunker(chunker.Config{}).Chunk(req.Text)
	if len(pieces) == 0 {
		return IngestResult{}, nil
	}

	texts := make([]string, len(pieces))
	for i, piece := range pieces {
		texts[i] = piece.Content
	}

	var vectors [][]float32
	if p.Embedder != nil {
		v, err := p.Embedder.EmbedBatch(ctx, texts)
		if err != nil {
			return IngestResult{}, fmt.Errorf("%w: %v", core.ErrEmbed, err)
		}
		vectors = v
	}

	chunks := make([]core.Chunk, len(pieces))
	for i, piece := range pieces {
		meta := map[string]string{"filename": req.Filename}
		for k, v := range req.Metadata {
			meta[k] = v
		}
		for k, v := range piece.Metadata {
			meta[k] = v
		}
		var vec []float32
		if i < len(vectors) {
			vec = vectors[i]
		}
		chunks[i] = core.Chunk{
			ID:         uuid.NewString(),
			DocumentID: req.DocumentID,
			OwnerID:    req.OwnerID,
			SessionID:  req.SessionID,
			Text:       piece.Content,
			Vector:     vec,
			Metadata:   meta,
		}
	}

	if err := p.Index.Upsert(ctx, chunks); err != nil {
		return IngestResult{}, fmt.Errorf("%w: %v", core.ErrRetrievalSoft, err)
	}
	return IngestResult{ChunksIndexed: len(chunks)}, nil
}

// BuildGraphForDocument runs entity/relationship extraction over req.Text,
// persists the result, then re-detects and re-summarizes communities so the
// graph stays queryable for multi-hop answers.
func (p *Pipeline) BuildGraphForDocument(ctx context.Context, req IngestRequest) error {
	if p.Graph == nil || p.Extractor == nil {
		return nil
	}
	if err := extract.ExtractAndApply(ctx, p.Extractor, p.Graph, req.DocumentID, req.OwnerID, req.Text); err != nil {
		return fmt.Errorf("%w: %v", core.ErrRetrievalSoft, err)
	}
	return p.RebuildGraph(ctx)
}

// RebuildGraph re-detects communities over the current entity/relationship
// graph and regenerates their summaries. Safe to call repeatedly: a
// community whose Community.MembershipHash is unchanged keeps its summary,
// and only changed communities are summarized again.
func (p *Pipeline) RebuildGraph(ctx context.Context) error {
	if p.Graph == nil {
		return nil
	}
	if _, err := p.Graph.DetectCommunities(ctx); err != nil {
		return fmt.Errorf("%w: %v", core.ErrRetrievalSoft, err)
	}
	if p.LLM == nil || p.Embedder == nil {
		return nil
	}
	if err := p.Graph.GenerateCommunitySummaries(ctx, p.LLM, p.Embedder); err != nil {
		return fmt.Errorf("%w: %v", core.ErrRetrievalSoft, err)
	}
	return nil
}

// GraphCommunities returns every community with at least one entity owned
// by ownerID.
func (p *Pipeline) GraphCommunities(ownerID string) ([]graph.Community, error) {
	if p.Graph == nil {
		return nil, nil
	}
	all, err := p.Graph.AllCommunities()
	if err != nil {
		return nil, err
	}
	entities, err := p.Graph.EntitiesByOwner(ownerID)
	if err != nil {
		return nil, err
	}
	owned := make(map[string]bool, len(entities))
	for _, e := range entities {
		owned[e.ID] = true
	}

	out := all[:0]
	for _, c := range all {
		for _, m := range c.Members {
			if owned[m] {
				out = append(out, c)
				break
			}
		}
	}
	return out, nil
}

// Stats reports indexed documents and chunks owned by ownerID.
type Stats struct {
	Documents int
	Chunks    int
}

// Stats returns indexed chunk and document counts for ownerID.
func (p *Pipeline) Stats(ownerID string) (Stats, error) {
	var out Stats
	if p.Index != nil {
		chunks := p.Index.ChunksByOwner(ownerID)
		out.Chunks = len(chunks)
		docs := make(map[string]bool, len(chunks))
		for _, c := range chunks {
			docs[c.DocumentID] = true
		}
		out.Documents = len(docs)
	}
	return out, nil
}
