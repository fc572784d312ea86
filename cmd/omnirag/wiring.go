package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/knoguchi/omnirag/internal/answer"
	"github.com/knoguchi/omnirag/internal/classify"
	"github.com/knoguchi/omnirag/internal/compress"
	"github.com/knoguchi/omnirag/internal/config"
	"github.com/knoguchi/omnirag/internal/crag"
	"github.com/knoguchi/omnirag/internal/embedder"
	"github.com/knoguchi/omnirag/internal/extract"
	"github.com/knoguchi/omnirag/internal/graph"
	"github.com/knoguchi/omnirag/internal/hyde"
	"github.com/knoguchi/omnirag/internal/index"
	"github.com/knoguchi/omnirag/internal/llm"
	"github.com/knoguchi/omnirag/internal/memory"
	"github.com/knoguchi/omnirag/internal/reranker"
	"github.com/knoguchi/omnirag/internal/rewrite"
	"github.com/knoguchi/omnirag/internal/service"
	"github.com/knoguchi/omnirag/internal/websearch"
)

// buildPipeline wires every pipeline stage from cfg. Backends are chosen the
// way internal/config documents them: Anthropic/OpenAI creds, if present,
// take priority over the local Ollama default.
func buildPipeline(cfg *config.Config, logger *slog.Logger) (*service.Pipeline, func(), error) {
	llmClient := buildLLM(cfg)
	embed, err := buildEmbedder(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("building embedder: %w", err)
	}

	idx, err := index.Open(index.Config{
		Dir:  cfg.IndexDataDir,
		RRFK: cfg.RRFK,
		Dense: index.DenseConfig{
			Dimension:      embed.Dimension(),
			GraphDegree:    cfg.HNSWGraphDegree,
			EfConstruction: cfg.HNSWEfConstruction,
			EfSearch:       cfg.HNSWEfSearch,
		},
	})
	if err != nil {
		return nil, nil, fmt.Errorf("opening index: %w", err)
	}

	graphStore, err := graph.Open(cfg.GraphDataDir)
	if err != nil {
		return nil, nil, fmt.Errorf("opening graph store: %w", err)
	}

	qualityLogger, err := answer.NewLogger(cfg.QualityLogPath)
	if err != nil {
		return nil, nil, fmt.Errorf("opening quality log: %w", err)
	}

	pipeline := service.New(service.Pipeline{
		LLM:        llmClient,
		Embedder:   embed,
		Index:      idx,
		Graph:      graphStore,
		Memory:     memory.NewStore(cfg.MemoryMaxMessages, cfg.MemoryTTL),
		Classifier: classify.New(llmClient, classify.WithModel(cfg.ClassifierModel)),
		Rewriter:   rewrite.New(llmClient),
		HyDE:       hyde.New(llmClient, embed),
		Reranker:   reranker.New(llmClient),
		CRAG:       crag.New(llmClient, websearch.StubProvider{}, crag.WithThresholds(float32(cfg.CRAGFastPathScore), float32(cfg.CRAGAmbiguousLow))),
		Compressor: compress.New(llmClient),
		Extractor:  extract.New(llmClient),
		Refiner:    answer.NewRefiner(llmClient),
		Critic:     answer.NewCritic(llmClient),
		Logger:     qualityLogger,
		Tuning: service.Tuning{
			RRFAlpha:            cfg.RRFAlpha,
			RRFAlphaHyDE:        cfg.RRFAlphaHyDE,
			DiversityLambda:     cfg.DiversityLambda,
			RerankTopN:          cfg.RerankTopN,
			RetrieveTopK:        service.DefaultTuning().RetrieveTopK,
			CompressTopN:        service.DefaultTuning().CompressTopN,
			MultiHopTopChunks:   service.DefaultTuning().MultiHopTopChunks,
			MultiHopCommunities: service.DefaultTuning().MultiHopCommunities,
		},
	})

	cleanup := func() {
		if err := idx.Save(); err != nil {
			logger.Warn("saving index", "error", err)
		}
		if err := idx.Close(); err != nil {
			logger.Warn("closing index", "error", err)
		}
		if err := graphStore.Close(); err != nil {
			logger.Warn("closing graph store", "error", err)
		}
	}
	return pipeline, cleanup, nil
}

func buildLLM(cfg *config.Config) llm.Client {
	switch {
	case cfg.AnthropicAPIKey != "":
		return llm.NewAnthropicClient(cfg.AnthropicAPIKey, cfg.AnthropicModel)
	case cfg.OpenAIAPIKey != "":
		return llm.NewOpenAIClient(cfg.OpenAIAPIKey, cfg.OpenAIModel)
	default:
		return llm.NewOllamaClient(
			llm.WithBaseURL(cfg.OllamaURL),
			llm.WithModel(cfg.OllamaLLMModel),
		)
	}
}

func buildEmbedder(cfg *config.Config) (embedder.Embedder, error) {
	var base embedder.Embedder
	switch {
	case cfg.OpenAIAPIKey != "":
		base = embedder.NewOpenAIEmbedder(cfg.OpenAIAPIKey, cfg.OpenAIEmbedModel)
	default:
		base = embedder.NewOllamaEmbedder(embedder.OllamaConfig{
			BaseURL: cfg.OllamaURL,
			Model:   cfg.OllamaEmbeddingModel,
		})
	}
	return embedder.NewCachedEmbedder(base, 4096)
}

func loadConfigOrExit(logger *slog.Logger) *config.Config {
	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	return cfg
}
