// Package narrative implements the grounded-answer and narrative
// generator (C8): it serializes a subgraph to compact text, prompts the
// LLM for an answer and a narrative, and resolves source_document_id to
// document names via a cached upstream lookup.
package narrative

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/smallnest/graphrag/llm"
	"github.com/smallnest/graphrag/model"
)

const answerSystemPrompt = `You answer a user's question using only the provided graph context.
Do not invent facts not present in the context. Never echo opaque
identifiers (ids beginning with "ent_" or "rel_") in your answer — refer
to entities and relationships by name only.`

const narrativeSystemPrompt = `You write a short narrative (2-4 sentences) describing how the entities
in the provided graph context relate to each other. Never echo opaque
identifiers in the narrative — refer to entities and relationships by
name only.`

// Source is one resolved citation in the Response.
type Source struct {
	DocumentID   string
	DocumentName string
	Page         int
}

// Response is the output contract of Generate (spec §4.6).
type Response struct {
	Answer         string
	Narrative      string
	Sources        []Source
	GeneratedQuery string
	Timing         time.Duration
}

// NameResolver resolves a document id to a human-readable name, typically
// backed by the upstream DB adapter (spec §4.6, "cached").
type NameResolver interface {
	DocumentName(ctx context.Context, documentID string) (string, error)
}

// Generator produces grounded answers from a subgraph.
type Generator struct {
	client   *llm.Client
	resolver NameResolver

	mu    sync.RWMutex
	names map[string]string // process-wide, eventually-consistent cache (spec §5)
}

// New constructs a Generator.
func New(client *llm.Client, resolver NameResolver) *Generator {
	return &Generator{client: client, resolver: resolver, names: make(map[string]string)}
}

// Generate implements the (question, subgraph, optional_generated_query)
// → {answer, narrative, sources, cypher_query?, timing} contract.
func (g *Generator) Generate(ctx context.Context, question string, sub model.Subgraph, generatedQuery string) (Response, error) {
	start := time.Now()
	context := serializeSubgraph(sub)

	answer, err := g.client.CompleteBounded(ctx, g.client.AnswerTimeout(), answerSystemPrompt,
		fmt.Sprintf("Question: %s\n\nGraph context:\n%s", question, context), 0.2, 600)
	if err != nil {
		return Response{}, fmt.Errorf("narrative: generate answer: %w", err)
	}

	narrativeText, err := g.client.CompleteBounded(ctx, g.client.AnswerTimeout(), narrativeSystemPrompt,
		fmt.Sprintf("Graph context:\n%s", context), 0.4, 400)
	if err != nil {
		narrativeText = ""
	}

	sources, err := g.resolveSources(ctx, sub.Entities)
	if err != nil {
		return Response{}, err
	}

	return Response{
		Answer:         strings.TrimSpace(answer),
		Narrative:      strings.TrimSpace(narrativeText),
		Sources:        sources,
		GeneratedQuery: generatedQuery,
		Timing:         time.Since(start),
	}, nil
}

// serializeSubgraph renders a compact textual form: entities with types
// and descriptions, edges as "A --[type]--> B: description" (spec §4.6).
func serializeSubgraph(sub model.Subgraph) string {
	var b strings.Builder
	b.WriteString("Entities:\n")
	for _, e := range sub.Entities {
		b.WriteString(fmt.Sprintf("- %s (%s): %s\n", e.Name, e.Type, e.Description))
	}
	if len(sub.Relationships) > 0 {
		byID := make(map[string]model.Entity, len(sub.Entities))
		for _, e := range sub.Entities {
			byID[e.ID] = e
		}
		b.WriteString("\nRelationships:\n")
		for _, r := range sub.Relationships {
			src := nameOrID(byID, r.SourceEntityID)
			dst := nameOrID(byID, r.TargetEntityID)
			b.WriteString(fmt.Sprintf("- %s --[%s]--> %s: %s\n", src, r.Type, dst, r.Description))
		}
	}
	return b.String()
}

func nameOrID(byID map[string]model.Entity, id string) string {
	if e, ok := byID[id]; ok {
		return e.Name
	}
	return id
}

// resolveSources maps each entity's source_document_id to a document name
// through the process-wide, eventually-consistent cache described in
// spec §5: populated on demand, never invalidated.
func (g *Generator) resolveSources(ctx context.Context, entities []model.Entity) ([]Source, error) {
	seen := map[string]bool{}
	var out []Source
	for _, e := range entities {
		if e.SourceDocumentID == "" || seen[e.SourceDocumentID] {
			continue
		}
		seen[e.SourceDocumentID] = true

		name, err := g.documentName(ctx, e.SourceDocumentID)
		if err != nil {
			// A stale/unresolved name is acceptable; fall back to the raw id
			// rather than failing the whole answer (spec §5).
			name = e.SourceDocumentID
		}
		out = append(out, Source{DocumentID: e.SourceDocumentID, DocumentName: name, Page: e.SourcePage})
	}
	return out, nil
}

func (g *Generator) documentName(ctx context.Context, documentID string) (string, error) {
	g.mu.RLock()
	name, ok := g.names[documentID]
	g.mu.RUnlock()
	if ok {
		return name, nil
	}

	name, err := g.resolver.DocumentName(ctx, documentID)
	if err != nil {
		return "", err
	}
	g.mu.Lock()
	g.names[documentID] = name
	g.mu.Unlock()
	return name, nil
}
