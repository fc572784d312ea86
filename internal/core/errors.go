package core

import "errors"

// Sentinel errors identifying the taxonomy of failures a pipeline stage can
// raise. Each is wrapped with context via fmt.Errorf("...: %w", ErrX) at the
// call site and tested with errors.Is/errors.As, mirroring the style of
// internal/auth's JWT error handling.
var (
	// ErrConfig marks a misconfiguration (missing API key, bad URL, invalid
	// tunable) discovered at startup or first use. Always a hard failure.
	ErrConfig = errors.New("configuration error")

	// ErrEmbed marks an embedding-backend failure. Hard failure: retrieval
	// cannot proceed without vectors.
	ErrEmbed = errors.New("embedding error")

	// ErrLLM marks a generation-backend failure. Hard failure for the
	// primary answer call; soft (logged, degraded) for auxiliary calls like
	// query rewriting or classification.
	ErrLLM = errors.New("llm error")

	// ErrRetrievalSoft marks a failure of the index or knowledge-graph
	// stages (index upsert, entity extraction, community detection or
	// summarization). The answer path does not return it: a query variant
	// whose retrieval fails contributes no results instead.
	ErrRetrievalSoft = errors.New("retrieval degraded")

	// ErrMemorySoft marks a memory-store failure. The pipeline proceeds
	// without conversational context rather than failing the request.
	ErrMemorySoft = errors.New("memory unavailable")

	// ErrWebSearch marks a web-search-provider failure during CRAG
	// fallback. Soft: the pipeline answers from whatever it already
	// retrieved.
	ErrWebSearch = errors.New("web search error")

	// ErrValidationReject marks an answer that failed structural validation
	// (C14) and could not be repaired by refinement (C15). No pipeline stage
	// returns it: an answer that fails validation is still returned, with
	// the failure reflected in its quality score. internal/server maps it
	// to HTTP 422.
	ErrValidationReject = errors.New("answer rejected by validation")

	// ErrCancelled marks a pipeline stage that stopped because its context
	// was cancelled or timed out.
	ErrCancelled = errors.New("operation cancelled")
)

// IsSoft reports whether err represents a degraded-but-recoverable failure,
// i.e. one that should be logged and absorbed rather than propagated to the
// caller as a request failure.
func IsSoft(err error) bool {
	return errors.Is(err, ErrRetrievalSoft) ||
		errors.Is(err, ErrMemorySoft) ||
		errors.Is(err, ErrWebSearch)
}
