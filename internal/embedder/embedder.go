// Package embedder provides interfaces and implementations for text embedding.
package embedder

import "context"

// Embedder defines the interface for text embedding services.
type Embedder interface {
	// Embed generates an embedding vector for a single text input.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates embedding vectors for multiple text inputs.
	// Returns a slice of embeddings in the same order as the input texts.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// EmbedQuery embeds a search query, applying the model's instruction
	// prefix if it is instruction-tuned (e.g. "search_query: ").
	EmbedQuery(ctx context.Context, text string) ([]float32, error)

	// Dimension returns the dimensionality of the embedding vectors.
	Dimension() int

	// ModelName returns the name of the embedding model being used.
	ModelName() string
}

// ModelConfig holds configuration for a specific embedding model.
type ModelConfig struct {
	Dimension        int // Embedding dimension
	ContextLength    int // Max tokens the model can process
	MaxChunkWords    int // Recommended max chunk size in words (safe limit)
	TargetChunkWords int // Recommended target chunk size in words

	// QueryPrefix and DocumentPrefix are prepended to text before embedding,
	// for instruction-tuned models that distinguish query vs. document
	// embeddings (e.g. nomic-embed-text's "search_query: "/"search_document: ").
	// Both are empty for models with no instruction convention.
	QueryPrefix    string
	DocumentPrefix string
}

// KnownModels maps embedding model names to their configurations.
// These limits are conservative to avoid "context length exceeded" errors.
var KnownModels = map[string]ModelConfig{
	"nomic-embed-text": {
		Dimension:        768,
		ContextLength:    8192,
		MaxChunkWords:    512,
		TargetChunkWords: 256,
		QueryPrefix:      "search_query: ",
		DocumentPrefix:   "search_document: ",
	},
	"mxbai-embed-large": {
		Dimension:        1024,
		ContextLength:    512,
		MaxChunkWords:    300,
		TargetChunkWords: 150,
		QueryPrefix:      "Represent this sentence for searching relevant passages: ",
	},
	"all-minilm": {
		Dimension:        384,
		ContextLength:    256,
		MaxChunkWords:    150,
		TargetChunkWords: 100,
	},
	"snowflake-arctic-embed": {
		Dimension:        1024,
		ContextLength:    8192,
		MaxChunkWords:    512,
		TargetChunkWords: 256,
		QueryPrefix:      "Represent this sentence for searching relevant passages: ",
	},
	"text-embedding-3-small": {
		Dimension:        1536,
		ContextLength:    8191,
		MaxChunkWords:    1000,
		TargetChunkWords: 400,
	},
	"text-embedding-3-large": {
		Dimension:        3072,
		ContextLength:    8191,
		MaxChunkWords:    1000,
		TargetChunkWords: 400,
	},
}

// GetModelConfig returns the configuration for a model, or conservative
// defaults if the model isn't in KnownModels.
func GetModelConfig(modelName string) ModelConfig {
	if cfg, ok := KnownModels[modelName]; ok {
		return cfg
	}
	return ModelConfig{
		Dimension:        768,
		ContextLength:    2048,
		MaxChunkWords:    256,
		TargetChunkWords: 128,
	}
}
