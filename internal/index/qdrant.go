package index

import (
	"context"
	"fmt"
	"net"
	"strconv"

	"github.com/knoguchi/omnirag/internal/core"
	"github.com/qdrant/go-client/qdrant"
)

const (
	denseVectorName  = "dense"
	sparseVectorName = "sparse"
)

// RemoteIndex is an optional Qdrant-backed alternative to Store, for
// deployments that want the index to live outside the serving process.
// It implements the same hybrid dense+sparse, RRF-fused search contract by
// delegating fusion to Qdrant's native query API instead of computing it
// locally.
type RemoteIndex struct {
	client     *qdrant.Client
	collection string
}

// NewRemoteIndex dials a Qdrant instance at url ("host:port") and targets
// the given collection name.
func NewRemoteIndex(ctx context.Context, url, collection string) (*RemoteIndex, error) {
	host, portStr, err := net.SplitHostPort(url)
	if err != nil {
		host = url
		portStr = "6334"
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return nil, fmt.Errorf("invalid qdrant port: %w", err)
	}

	client, err := qdrant.NewClient(&qdrant.Config{Host: host, Port: port})
	if err != nil {
		return nil, fmt.Errorf("creating qdrant client: %w", err)
	}

	return &RemoteIndex{client: client, collection: collection}, nil
}

// Close releases the client connection.
func (r *RemoteIndex) Close() error {
	return r.client.Close()
}

// EnsureCollection creates the hybrid (dense + sparse) collection if it
// doesn't already exist.
func (r *RemoteIndex) EnsureCollection(ctx context.Context, dimension int) error {
	exists, err := r.client.CollectionExists(ctx, r.collection)
	if err != nil {
		return fmt.Errorf("checking collection existence: %w", err)
	}
	if exists {
		return nil
	}

	err = r.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: r.collection,
		VectorsConfig: qdrant.NewVectorsConfigMap(map[string]*qdrant.VectorParams{
			denseVectorName: {Size: uint64(dimension), Distance: qdrant.Distance_Cosine},
		}),
		SparseVectorsConfig: qdrant.NewSparseVectorsConfig(map[string]*qdrant.SparseVectorParams{
			sparseVectorName: {},
		}),
	})
	if err != nil {
		return fmt.Errorf("creating hybrid collection: %w", err)
	}
	return nil
}

// Upsert writes chunks (with their dense vectors) to Qdrant.
func (r *RemoteIndex) Upsert(ctx context.Context, chunks []core.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	points := make([]*qdrant.PointStruct, len(chunks))
	for i, c := range chunks {
		payload := map[string]*qdrant.Value{
			"document_id": qdrant.NewValueString(c.DocumentID),
			"owner_id":    qdrant.NewValueString(c.OwnerID),
			"content":     qdrant.NewValueString(c.Text),
		}
		for k, v := range c.Metadata {
			payload[k] = qdrant.NewValueString(v)
		}
		points[i] = &qdrant.PointStruct{
			Id:      qdrant.NewIDUUID(c.ID),
			Payload: payload,
			Vectors: qdrant.NewVectorsMap(map[string]*qdrant.Vector{
				denseVectorName: {Data: c.Vector},
			}),
		}
	}

	_, err := r.client.Upsert(ctx, &qdrant.UpsertPoints{CollectionName: r.collection, Points: points})
	if err != nil {
		return fmt.Errorf("qdrant upsert: %w", err)
	}
	return nil
}

// Search performs dense-only similarity search.
func (r *RemoteIndex) Search(ctx context.Context, vector []float32, topK int, minScore float32) ([]core.SearchResult, error) {
	resp, err := r.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: r.collection,
		Query:          qdrant.NewQuery(vector...),
		Using:          qdrant.PtrOf(denseVectorName),
		Limit:          qdrant.PtrOf(uint64(topK)),
		WithPayload:    qdrant.NewWithPayload(true),
		ScoreThreshold: qdrant.PtrOf(minScore),
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant search: %w", err)
	}
	return toSearchResults(resp), nil
}

// HybridSearch delegates RRF fusion of dense and sparse candidates to
// Qdrant's native Fusion_RRF query mode.
func (r *RemoteIndex) HybridSearch(ctx context.Context, denseVector []float32, sparseIndices []uint32, sparseValues []float32, topK int) ([]core.SearchResult, error) {
	prefetchLimit := uint64(topK * 2)
	prefetch := []*qdrant.PrefetchQuery{
		{Query: qdrant.NewQueryDense(denseVector), Using: qdrant.PtrOf(denseVectorName), Limit: qdrant.PtrOf(prefetchLimit)},
	}
	if len(sparseIndices) > 0 {
		prefetch = append(prefetch, &qdrant.PrefetchQuery{
			Query: qdrant.NewQuerySparse(sparseIndices, sparseValues),
			Using: qdrant.PtrOf(sparseVectorName),
			Limit: qdrant.PtrOf(prefetchLimit),
		})
	}

	resp, err := r.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: r.collection,
		Prefetch:       prefetch,
		Query:          qdrant.NewQueryFusion(qdrant.Fusion_RRF),
		Limit:          qdrant.PtrOf(uint64(topK)),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant hybrid search: %w", err)
	}
	return toSearchResults(resp), nil
}

// Delete removes all chunks belonging to documentID.
func (r *RemoteIndex) Delete(ctx context.Context, documentID string) error {
	_, err := r.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: r.collection,
		Points: &qdrant.PointsSelector{
			PointsSelectorOneOf: &qdrant.PointsSelector_Filter{
				Filter: &qdrant.Filter{Must: []*qdrant.Condition{qdrant.NewMatch("document_id", documentID)}},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("qdrant delete by document: %w", err)
	}
	return nil
}

func toSearchResults(points []*qdrant.ScoredPoint) []core.SearchResult {
	out := make([]core.SearchResult, 0, len(points))
	for _, p := range points {
		c := core.Chunk{ID: p.Id.GetUuid(), Metadata: make(map[string]string)}
		if payload := p.Payload; payload != nil {
			if v, ok := payload["document_id"]; ok {
				c.DocumentID = v.GetStringValue()
			}
			if v, ok := payload["owner_id"]; ok {
				c.OwnerID = v.GetStringValue()
			}
			if v, ok := payload["content"]; ok {
				c.Text = v.GetStringValue()
			}
			for k, v := range payload {
				if k != "document_id" && k != "owner_id" && k != "content" {
					c.Metadata[k] = v.GetStringValue()
				}
			}
		}
		out = append(out, core.SearchResult{Chunk: c, Score: p.Score, Source: "fused"})
	}
	return out
}
