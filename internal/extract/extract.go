// Package extract is the entity extractor (C12): it asks the LLM to name
// the entities and relationships mentioned in a document and feeds them
// into the knowledge graph store.
package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/knoguchi/omnirag/internal/core"
	"github.com/knoguchi/omnirag/internal/graph"
	"github.com/knoguchi/omnirag/internal/llm"
)

const maxExtractionChars = 4000

// Entity is one entity mention as returned by the LLM, before it is
// resolved into a graph.Entity with a stable ID.
type Entity struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	Description string `json:"description"`
}

// Relationship is one relationship mention, referencing entities by name
// rather than ID — the LLM never sees graph.EntityID's derived slugs.
type Relationship struct {
	Source      string `json:"source"`
	Target      string `json:"target"`
	Relation    string `json:"relation"`
	Description string `json:"description"`
}

// Result is the parsed extraction for one document.
type Result struct {
	Entities      []Entity       `json:"entities"`
	Relationships []Relationship `json:"relationships"`
}

type extractionResponse struct {
	Entities      []Entity       `json:"entities"`
	Relationships []Relationship `json:"relationships"`
}

// Extractor pulls entities and relationships out of document text.
type Extractor struct {
	llm   llm.Client
	model string
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithModel overrides the extraction model.
func WithModel(model string) Option {
	return func(e *Extractor) { e.model = model }
}

// New creates an Extractor.
func New(llmClient llm.Client, opts ...Option) *Extractor {
	e := &Extractor{llm: llmClient, model: "llama3.2"}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Extract asks the LLM to name the entities and relationships in text and
// returns them unresolved (referencing each other by name, not graph ID).
func (e *Extractor) Extract(ctx context.Context, text string) (Result, error) {
	if strings.TrimSpace(text) == "" {
		return Result{}, nil
	}

	prompt := buildExtractionPrompt(text)
	response, err := e.llm.Complete(ctx, []llm.Message{llm.User(prompt)}, llm.GenerateOptions{Model: e.model, Temperature: 0})
	if err != nil {
		return Result{}, fmt.Errorf("%w: entity extraction: %v", core.ErrLLM, err)
	}

	parsed, perr := parseExtraction(response)
	if perr != nil {
		return Result{}, nil
	}
	return parsed, nil
}

// Apply resolves a Result's name-referenced entities and relationships into
// graph IDs and persists them. Entities are added first so relationships
// referencing them satisfy invariant I2; a relationship naming an entity
// that is not among this Result's entities is skipped (entities already in
// the store are not looked up) rather than failing the whole document.
func Apply(store *graph.Store, documentID, ownerID string, result Result) error {
	resolved := make(map[string]string, len(result.Entities))
	for _, e := range result.Entities {
		if strings.TrimSpace(e.Name) == "" {
			continue
		}
		entityType := e.Type
		if entityType == "" {
			entityType = "unknown"
		}
		ge := graph.Entity{
			Name:        e.Name,
			Type:        entityType,
			Description: e.Description,
			OwnerID:     ownerID,
			DocumentID:  documentID,
		}
		if err := store.AddEntity(ge); err != nil {
			return fmt.Errorf("adding extracted entity %q: %w", e.Name, err)
		}
		resolved[normalizeName(e.Name)] = graph.EntityID(e.Name, entityType)
	}

	for _, r := range result.Relationships {
		srcID, srcOK := resolved[normalizeName(r.Source)]
		dstID, dstOK := resolved[normalizeName(r.Target)]
		if !srcOK || !dstOK {
			continue
		}
		rel := graph.Relationship{
			SourceEntityID: srcID,
			TargetEntityID: dstID,
			Relation:       r.Relation,
			Description:    r.Description,
		}
		if err := store.AddRelationship(rel); err != nil {
			continue
		}
	}
	return nil
}

// ExtractAndApply runs Extract and Apply in sequence, the common path for
// document ingestion.
func ExtractAndApply(ctx context.Context, e *Extractor, store *graph.Store, documentID, ownerID, text string) error {
	result, err := e.Extract(ctx, text)
	if err != nil {
		return err
	}
	return Apply(store, documentID, ownerID, result)
}

func normalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

func buildExtractionPrompt(text string) string {
	if len(text) > maxExtractionChars {
		text = text[:maxExtractionChars]
	}
	var sb strings.Builder
	sb.WriteString("Extract the entities and relationships mentioned in the following text.\n\n")
	sb.WriteString("Text:\n")
	sb.WriteString(text)
	sb.WriteString(`

Respond with ONLY a JSON object, no other text, in this exact shape:
{
  "entities": [{"name": "...", "type": "...", "description": "..."}],
  "relationships": [{"source": "...", "target": "...", "relation": "...", "description": "..."}]
}

"type" should be a short category like person, organization, location, concept, or event.
"source" and "target" must exactly match an entity "name" above. Omit entities or
relationships you are not confident about. If none are found, respond with
{"entities": [], "relationships": []}.`)
	return sb.String()
}

func parseExtraction(response string) (Result, error) {
	cleaned := stripCodeFence(response)
	start := strings.Index(cleaned, "{")
	end := strings.LastIndex(cleaned, "}")
	if start == -1 || end == -1 || end < start {
		return Result{}, fmt.Errorf("no JSON object found in extraction response")
	}
	cleaned = cleaned[start : end+1]

	var parsed extractionResponse
	if err := json.Unmarshal([]byte(cleaned), &parsed); err != nil {
		return Result{}, fmt.Errorf("decoding extraction response: %w", err)
	}
	return Result{Entities: parsed.Entities, Relationships: parsed.Relationships}, nil
}

func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}
