// Package config loads configuration from environment variables and .env files.
package config

import (
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

// Config holds all configuration for the omnirag pipeline.
type Config struct {
	// Server
	HTTPPort    int    `env:"HTTP_PORT" envDefault:"8080"`
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	// Qdrant (optional remote index backend)
	QdrantURL     string `env:"QDRANT_URL" envDefault:"http://localhost:6333"`
	QdrantGRPCURL string `env:"QDRANT_GRPC_URL" envDefault:"localhost:6334"`

	// Ollama
	OllamaURL            string `env:"OLLAMA_URL" envDefault:"http://localhost:11434"`
	OllamaEmbeddingModel string `env:"OLLAMA_EMBEDDING_MODEL" envDefault:"nomic-embed-text"`
	OllamaLLMModel       string `env:"OLLAMA_LLM_MODEL" envDefault:"llama3.2"`

	// Anthropic / OpenAI (optional alternate LLM/embedder backends)
	AnthropicAPIKey   string `env:"ANTHROPIC_API_KEY" envDefault:""`
	AnthropicModel    string `env:"ANTHROPIC_MODEL" envDefault:"claude-sonnet-4-5"`
	OpenAIAPIKey      string `env:"OPENAI_API_KEY" envDefault:""`
	OpenAIModel       string `env:"OPENAI_MODEL" envDefault:"gpt-4o-mini"`
	OpenAIEmbedModel  string `env:"OPENAI_EMBED_MODEL" envDefault:"text-embedding-3-small"`

	// Auth
	JWTSecret string        `env:"JWT_SECRET" envDefault:"change-this-in-production"`
	JWTExpiry time.Duration `env:"JWT_EXPIRY" envDefault:"24h"`

	// Ingestion / chunking defaults
	DefaultChunkMethod     string  `env:"DEFAULT_CHUNK_METHOD" envDefault:"semantic"`
	DefaultChunkTargetSize int     `env:"DEFAULT_CHUNK_TARGET_SIZE" envDefault:"512"`
	DefaultChunkMaxSize    int     `env:"DEFAULT_CHUNK_MAX_SIZE" envDefault:"1024"`
	DefaultChunkOverlap    int     `env:"DEFAULT_CHUNK_OVERLAP" envDefault:"50"`
	DefaultTopK            int     `env:"DEFAULT_TOP_K" envDefault:"4"`
	DefaultMinScore        float32 `env:"DEFAULT_MIN_SCORE" envDefault:"0.35"`

	// Data directories: HNSW + bleve live under IndexDataDir, the badger
	// knowledge-graph store under GraphDataDir
	IndexDataDir string `env:"INDEX_DATA_DIR" envDefault:"./data/index"`
	GraphDataDir string `env:"GRAPH_DATA_DIR" envDefault:"./data/graph"`

	// HNSW hyperparameters (spec §4.2)
	HNSWGraphDegree     int `env:"HNSW_M" envDefault:"32"`
	HNSWEfConstruction  int `env:"HNSW_EF_CONSTRUCTION" envDefault:"200"`
	HNSWEfSearch        int `env:"HNSW_EF_SEARCH" envDefault:"100"`

	// Hybrid retrieval fusion
	RRFK                 int     `env:"RRF_K" envDefault:"60"`
	RRFAlpha             float64 `env:"RRF_ALPHA" envDefault:"0.5"`
	RRFAlphaHyDE         float64 `env:"RRF_ALPHA_HYDE" envDefault:"0.6"`
	DiversityLambda      float64 `env:"DIVERSITY_LAMBDA" envDefault:"0.3"`
	RerankTopN           int     `env:"RERANK_TOP_N" envDefault:"20"`

	// Query complexity / classification
	ClassifierModel      string        `env:"CLASSIFIER_MODEL" envDefault:"llama3.2:1b"`
	ClassifierTimeout    time.Duration `env:"CLASSIFIER_TIMEOUT" envDefault:"2s"`
	ClassifierCacheSize  int           `env:"CLASSIFIER_CACHE_SIZE" envDefault:"10000"`

	// HyDE
	HyDECacheSize int `env:"HYDE_CACHE_SIZE" envDefault:"2000"`

	// CRAG (corrective RAG) thresholds, see DESIGN.md Open Question #2
	CRAGFastPathScore float64 `env:"CRAG_FAST_PATH_SCORE" envDefault:"0.0055"`
	CRAGAmbiguousLow  float64 `env:"CRAG_AMBIGUOUS_LOW" envDefault:"0.0025"`

	// Memory
	MemoryMaxMessages  int           `env:"MEMORY_MAX_MESSAGES" envDefault:"50"`
	MemoryTTL          time.Duration `env:"MEMORY_TTL" envDefault:"720h"`
	MemoryCleanupEvery time.Duration `env:"MEMORY_CLEANUP_EVERY" envDefault:"1h"`

	// Pipeline-wide timeouts (spec §5)
	RetrievalTimeout time.Duration `env:"RETRIEVAL_TIMEOUT" envDefault:"10s"`
	GenerationTimeout time.Duration `env:"GENERATION_TIMEOUT" envDefault:"45s"`
	WebSearchTimeout  time.Duration `env:"WEB_SEARCH_TIMEOUT" envDefault:"8s"`

	// Self-critique / quality
	SelfCritiquePassScore float64 `env:"SELF_CRITIQUE_PASS_SCORE" envDefault:"0.6"`
	QualityLogPath        string  `env:"QUALITY_LOG_PATH" envDefault:"./data/quality.jsonl"`
}

// Load loads configuration from a .env file (if present) and environment variables.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
