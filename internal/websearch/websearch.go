// Package websearch defines the external web-search collaborator that the
// retrieval evaluator (C9) falls back to when the index's own evidence is
// ambiguous or insufficient. The provider is intentionally just an
// interface: omnirag does not own a crawler or a search index, only the
// contract CRAG needs.
package websearch

import "context"

// Result is one web-search hit.
type Result struct {
	Title   string
	URL     string
	Snippet string
}

// Provider performs a web search and returns up to k results.
type Provider interface {
	Search(ctx context.Context, query string, k int) ([]Result, error)
}

// StubProvider is a fixed-response Provider for tests and for deployments
// with no configured search backend.
type StubProvider struct {
	Results []Result
	Err     error
}

// Search returns the stub's configured results or error, ignoring query
// and k.
func (s StubProvider) Search(ctx context.Context, query string, k int) ([]Result, error) {
	if s.Err != nil {
		return nil, s.Err
	}
	if len(s.Results) > k {
		return s.Results[:k], nil
	}
	return s.Results, nil
}

var _ Provider = StubProvider{}
