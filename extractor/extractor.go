// Package extractor implements the LLM-driven entity/relationship
// extraction of C4: two JSON-only prompts, tolerant parsing, and
// case-insensitive name-based relationship endpoint resolution.
package extractor

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/smallnest/graphrag/llm"
	"github.com/smallnest/graphrag/model"
)

// DefaultEntityTypes lists the entity types the extraction prompt asks
// for (spec §3's closed EntityType set).
var DefaultEntityTypes = []model.EntityType{
	model.EntityPerson, model.EntityOrganization, model.EntityLocation,
	model.EntityDate, model.EntityConcept, model.EntityProduct,
	model.EntityEvent, model.EntityTechnology, model.EntityDocument, model.EntityTopic,
}

const entityExtractionSystemPrompt = `You are an information extraction engine. Given a text chunk, extract all
named entities mentioned in it. Respond with a JSON array only, no prose,
no markdown fences. Each element: {"name": string, "type": string, "description": string}.
Valid types: person, organization, location, date, concept, product, event, technology, document, topic, other.`

const relationshipExtractionSystemPrompt = `You are an information extraction engine. Given a text chunk and the list of
entity names already extracted from it, extract directed relationships
between those entities. Respond with a JSON array only, no prose, no
markdown fences. Each element: {"source": string, "target": string, "type": string, "description": string, "confidence": number}.
Valid types: RELATED_TO, MENTIONS, WORKS_FOR, LOCATED_IN, PART_OF, CREATED_BY,
BELONGS_TO, DEPENDS_ON, SIMILAR_TO, CAUSED_BY, LEADS_TO, CONTAINS, USES, IS_A, HAS, ABOUT, OTHER.`

// ExtractedEntity is the open-shape JSON the LLM emits before type
// coercion and id derivation (spec §9 "dynamic typing in extraction").
type ExtractedEntity struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	Description string `json:"description"`
}

// ExtractedRelationship is the open-shape JSON the LLM emits for an edge.
type ExtractedRelationship struct {
	Source      string  `json:"source"`
	Target      string  `json:"target"`
	Type        string  `json:"type"`
	Description string  `json:"description"`
	Confidence  float64 `json:"confidence"`
}

// Result is the typed extraction output: every relationship's endpoints
// are guaranteed present among Entities (spec §4.4).
type Result struct {
	Entities      []model.Entity
	Relationships []model.Relationship
}

// Extractor converts a text chunk into entities and relationships.
type Extractor struct {
	client *llm.Client
}

// New constructs an Extractor over an llm.Client.
func New(client *llm.Client) *Extractor {
	return &Extractor{client: client}
}

// Extract runs both the entity and relationship prompts over chunk text,
// stamping dataset/provenance fields onto every entity and relationship.
func (x *Extractor) Extract(ctx context.Context, datasetID, text string, stamp func(*model.Entity), relStamp func(*model.Relationship)) (Result, error) {
	entities, err := x.extractEntities(ctx, text)
	if err != nil {
		return Result{}, fmt.Errorf("extractor: extract entities: %w", err)
	}
	for i := range entities {
		if entities[i].Confidence == 0 {
			entities[i].Confidence = 1.0
		}
		entities[i].DatasetID = datasetID
		if stamp != nil {
			stamp(&entities[i])
		}
	}

	byName := make(map[string]int, len(entities))
	for i, e := range entities {
		byName[strings.ToLower(e.Name)] = i
	}

	rawRels, err := x.extractRelationships(ctx, text, entities)
	if err != nil {
		return Result{}, fmt.Errorf("extractor: extract relationships: %w", err)
	}

	var relationships []model.Relationship
	for _, rr := range rawRels {
		srcIdx, ok := resolveEntityIndex(byName, rr.Source)
		if !ok {
			continue
		}
		dstIdx, ok := resolveEntityIndex(byName, rr.Target)
		if !ok {
			continue
		}
		rel := model.Relationship{
			SourceEntityID: entities[srcIdx].Name,
			TargetEntityID: entities[dstIdx].Name,
			Type:           model.NormalizeRelationshipType(rr.Type),
			Description:    rr.Description,
			Weight:         1,
			Confidence:     rr.Confidence,
			DatasetID:      datasetID,
		}
		if rel.Confidence == 0 {
			rel.Confidence = 0.8
		}
		if relStamp != nil {
			relStamp(&rel)
		}
		relationships = append(relationships, rel)
	}

	return Result{Entities: entities, Relationships: relationships}, nil
}

// resolveEntityIndex maps an LLM-produced endpoint name to an extracted
// entity by case-insensitive exact match first, then case-insensitive
// substring containment in either direction (spec §4.4).
func resolveEntityIndex(byName map[string]int, name string) (int, bool) {
	key := strings.ToLower(strings.TrimSpace(name))
	if idx, ok := byName[key]; ok {
		return idx, true
	}
	for candidate, idx := range byName {
		if strings.Contains(candidate, key) || strings.Contains(key, candidate) {
			return idx, true
		}
	}
	return 0, false
}

func (x *Extractor) extractEntities(ctx context.Context, text string) ([]model.Entity, error) {
	raw, err := x.client.Complete(ctx, entityExtractionSystemPrompt, text, 0.1, 1500)
	if err != nil {
		return manualEntityExtraction(text), nil
	}

	var parsed []ExtractedEntity
	if jsonArr := extractJSONArray(raw); jsonArr != "" {
		if err := json.Unmarshal([]byte(jsonArr), &parsed); err == nil {
			entities := make([]model.Entity, 0, len(parsed))
			seen := map[string]bool{}
			for _, p := range parsed {
				name := strings.TrimSpace(p.Name)
				if name == "" || seen[strings.ToLower(name)] {
					continue
				}
				seen[strings.ToLower(name)] = true
				entities = append(entities, model.Entity{
					Name:        name,
					Type:        model.NormalizeEntityType(p.Type),
					Description: p.Description,
				})
			}
			return entities, nil
		}
	}
	// Parse failure after retries: fall back to a crude heuristic rather
	// than failing the whole chunk (spec §7 UpstreamPermanent handling).
	return manualEntityExtraction(text), nil
}

func (x *Extractor) extractRelationships(ctx context.Context, text string, entities []model.Entity) ([]ExtractedRelationship, error) {
	if len(entities) < 2 {
		return nil, nil
	}
	names := make([]string, len(entities))
	for i, e := range entities {
		names[i] = e.Name
	}
	user := fmt.Sprintf("Entities: %s\n\nText: %s", strings.Join(names, ", "), text)

	raw, err := x.client.Complete(ctx, relationshipExtractionSystemPrompt, user, 0.1, 1500)
	if err != nil {
		return nil, nil
	}

	var parsed []ExtractedRelationship
	if jsonArr := extractJSONArray(raw); jsonArr != "" {
		if err := json.Unmarshal([]byte(jsonArr), &parsed); err == nil {
			return parsed, nil
		}
	}
	return nil, nil
}

// extractJSONArray locates the first balanced JSON array in s, tolerating
// fenced code blocks and trailing prose (spec §4.4).
func extractJSONArray(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")

	start := strings.Index(s, "[")
	if start < 0 {
		return ""
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			if escaped {
				escaped = false
			} else if c == '\\' {
				escaped = true
			} else if c == '"' {
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '[':
			depth++
		case ']':
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}
	return ""
}

// manualEntityExtraction is a heuristic fallback used when the LLM call
// fails or its output cannot be parsed: capitalized-word runs become
// EntityOther candidates so the chunk is not silently dropped entirely.
func manualEntityExtraction(text string) []model.Entity {
	var entities []model.Entity
	seen := map[string]bool{}
	words := strings.Fields(text)
	var run []string
	flush := func() {
		if len(run) == 0 {
			return
		}
		name := strings.Join(run, " ")
		key := strings.ToLower(name)
		if !seen[key] {
			seen[key] = true
			entities = append(entities, model.Entity{Name: name, Type: model.EntityOther})
		}
		run = nil
	}
	for _, w := range words {
		trimmed := strings.Trim(w, ".,;:!?\"'()")
		if trimmed != "" && trimmed[0] >= 'A' && trimmed[0] <= 'Z' {
			run = append(run, trimmed)
		} else {
			flush()
		}
	}
	flush()
	return entities
}
