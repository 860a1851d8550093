// Package model holds the data types shared across the GraphRAG service:
// entities, relationships, flow-graph nodes, and conversation sessions.
package model

import "time"

// EntityType enumerates the closed set of entity kinds the extractor may
// produce. Unrecognized values from the LLM coerce to EntityOther.
type EntityType string

const (
	EntityPerson       EntityType = "person"
	EntityOrganization EntityType = "organization"
	EntityLocation     EntityType = "location"
	EntityDate         EntityType = "date"
	EntityConcept      EntityType = "concept"
	EntityProduct      EntityType = "product"
	EntityEvent        EntityType = "event"
	EntityTechnology   EntityType = "technology"
	EntityDocument     EntityType = "document"
	EntityTopic        EntityType = "topic"
	EntityOther        EntityType = "other"
)

var knownEntityTypes = map[EntityType]bool{
	EntityPerson: true, EntityOrganization: true, EntityLocation: true,
	EntityDate: true, EntityConcept: true, EntityProduct: true,
	EntityEvent: true, EntityTechnology: true, EntityDocument: true,
	EntityTopic: true, EntityOther: true,
}

// NormalizeEntityType coerces an arbitrary string into the closed EntityType
// set, falling back to EntityOther per the "dynamic typing in extraction"
// design note.
func NormalizeEntityType(s string) EntityType {
	t := EntityType(s)
	if knownEntityTypes[t] {
		return t
	}
	return EntityOther
}

// RelationshipType enumerates the closed set of relationship kinds.
type RelationshipType string

const (
	RelRelatedTo RelationshipType = "RELATED_TO"
	RelMentions  RelationshipType = "MENTIONS"
	RelWorksFor  RelationshipType = "WORKS_FOR"
	RelLocatedIn RelationshipType = "LOCATED_IN"
	RelPartOf    RelationshipType = "PART_OF"
	RelCreatedBy RelationshipType = "CREATED_BY"
	RelBelongsTo RelationshipType = "BELONGS_TO"
	RelDependsOn RelationshipType = "DEPENDS_ON"
	RelSimilarTo RelationshipType = "SIMILAR_TO"
	RelCausedBy  RelationshipType = "CAUSED_BY"
	RelLeadsTo   RelationshipType = "LEADS_TO"
	RelContains  RelationshipType = "CONTAINS"
	RelUses      RelationshipType = "USES"
	RelIsA       RelationshipType = "IS_A"
	RelHas       RelationshipType = "HAS"
	RelAbout     RelationshipType = "ABOUT"
	RelOther     RelationshipType = "OTHER"
)

var knownRelTypes = map[RelationshipType]bool{
	RelRelatedTo: true, RelMentions: true, RelWorksFor: true, RelLocatedIn: true,
	RelPartOf: true, RelCreatedBy: true, RelBelongsTo: true, RelDependsOn: true,
	RelSimilarTo: true, RelCausedBy: true, RelLeadsTo: true, RelContains: true,
	RelUses: true, RelIsA: true, RelHas: true, RelAbout: true, RelOther: true,
}

// NormalizeRelationshipType coerces an arbitrary string into the closed
// RelationshipType set, falling back to RelOther.
func NormalizeRelationshipType(s string) RelationshipType {
	t := RelationshipType(s)
	if knownRelTypes[t] {
		return t
	}
	return RelOther
}

// Entity is the primary unit of extracted knowledge (spec §3).
type Entity struct {
	ID               string     `json:"id"`
	Name             string     `json:"name"`
	Type             EntityType `json:"type"`
	Description      string     `json:"description,omitempty"`
	Aliases          []string   `json:"aliases,omitempty"`
	DatasetID        string     `json:"dataset_id"`
	SourceDocumentID string     `json:"source_document_id,omitempty"`
	SourceChunkID    string     `json:"source_chunk_id,omitempty"`
	SourcePage       int        `json:"source_page,omitempty"`
	Confidence       float64    `json:"confidence"`
	// Embedding lives only in the vector store (C2); it is never persisted
	// alongside the entity in the graph store (I2).
	Embedding []float32 `json:"-"`
}

// Relationship is a typed directed edge between two entities (spec §3).
type Relationship struct {
	ID               string            `json:"id"`
	SourceEntityID   string            `json:"source_entity_id"`
	TargetEntityID   string            `json:"target_entity_id"`
	Type             RelationshipType  `json:"type"`
	Description      string            `json:"description,omitempty"`
	Weight           float64           `json:"weight"`
	Confidence       float64           `json:"confidence"`
	SourceDocumentID string            `json:"source_document_id,omitempty"`
	DatasetID        string            `json:"dataset_id"`
	Properties       map[string]any    `json:"properties,omitempty"`
}

// ConditionType enumerates the closed set of flow-condition input kinds.
type ConditionType string

const (
	ConditionSelectOne    ConditionType = "select_one"
	ConditionSelectMulti  ConditionType = "select_multi"
	ConditionTextInput    ConditionType = "text_input"
	ConditionDateInput    ConditionType = "date_input"
	ConditionNumberInput  ConditionType = "number_input"
	ConditionYesNo        ConditionType = "yes_no"
	ConditionAutoExtract  ConditionType = "auto_extract"
)

// ActionType enumerates the closed set of terminal flow-action kinds.
type ActionType string

const (
	ActionGraphSearch  ActionType = "graph_search"
	ActionVectorSearch ActionType = "vector_search"
	ActionHybridSearch ActionType = "hybrid_search"
	ActionLLMGenerate  ActionType = "llm_generate"
	ActionAPICall      ActionType = "api_call"
	ActionClarify      ActionType = "clarify"
)

// EdgeType enumerates the closed set of flow-edge kinds.
type EdgeType string

const (
	EdgeRequires  EdgeType = "REQUIRES"
	EdgeNext      EdgeType = "NEXT"
	EdgeBranch    EdgeType = "BRANCH"
	EdgeSatisfied EdgeType = "SATISFIED"
	EdgeLeadsTo   EdgeType = "LEADS_TO"
)

// Intent is an authored conversational intent (spec §3).
type Intent struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	DisplayName string   `json:"display_name"`
	Description string   `json:"description,omitempty"`
	Keywords    []string `json:"keywords,omitempty"`
	Examples    []string `json:"examples,omitempty"`
	Priority    int      `json:"priority"`
	IsActive    bool     `json:"is_active"`
}

// Condition is an authored flow-graph slot definition (spec §3).
type Condition struct {
	ID               string        `json:"id"`
	Name             string        `json:"name"`
	DisplayName      string        `json:"display_name,omitempty"`
	ConditionType    ConditionType `json:"condition_type"`
	QuestionTemplate string        `json:"question_template"`
	Options          []string      `json:"options,omitempty"`
	OptionsSource    string        `json:"options_source,omitempty"`
	IsRequired       bool          `json:"is_required"`
	Order            int           `json:"order"`
}

// Action is an authored terminal flow-graph step (spec §3).
type Action struct {
	ID         string         `json:"id"`
	Name       string         `json:"name"`
	ActionType ActionType     `json:"action_type"`
	Config     map[string]any `json:"config,omitempty"`
}

// FlowEdge is a directed edge of the flow graph (spec §3).
type FlowEdge struct {
	ID             string   `json:"id"`
	SourceNodeID   string   `json:"source_node_id"`
	TargetNodeID   string   `json:"target_node_id"`
	EdgeType       EdgeType `json:"edge_type"`
	ConditionExpr  string   `json:"condition_expr,omitempty"`
	Order          int      `json:"order"`
}

// Session is ephemeral per-user conversation state (spec §3).
type Session struct {
	SessionID           string            `json:"session_id"`
	CurrentIntent        string            `json:"current_intent,omitempty"`
	CurrentNodeID        string            `json:"current_node_id,omitempty"`
	CollectedValues       map[string]any    `json:"collected_values"`
	ConversationHistory  []Message         `json:"conversation_history"`
	DocumentContext      string            `json:"document_context,omitempty"`
	CreatedAt            time.Time         `json:"created_at"`
	UpdatedAt            time.Time         `json:"updated_at"`
	ExpiresAt             time.Time         `json:"expires_at"`
}

// Subgraph is a deduped set of entities and relationships, the shared
// shape search/narrative/conversation pass around a visualization or
// narrative-grounding neighborhood (spec §4.5/§4.6).
type Subgraph struct {
	Entities      []Entity       `json:"entities"`
	Relationships []Relationship `json:"relationships"`
}

// MaxHistoryMessages bounds Session.ConversationHistory (spec §3).
const MaxHistoryMessages = 50

// Message is a single turn stored in Session.ConversationHistory.
type Message struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// AddMessage appends a message and trims history to MaxHistoryMessages,
// matching the original add_message contract (spec §4.7).
func (s *Session) AddMessage(role, content string) {
	s.ConversationHistory = append(s.ConversationHistory, Message{
		Role: role, Content: content, Timestamp: time.Now(),
	})
	if n := len(s.ConversationHistory); n > MaxHistoryMessages {
		s.ConversationHistory = s.ConversationHistory[n-MaxHistoryMessages:]
	}
}

// Reset zeros intent/current_node/collected_values while preserving history,
// matching the Session Store's reset operation (spec §4.7).
func (s *Session) Reset() {
	s.CurrentIntent = ""
	s.CurrentNodeID = ""
	s.CollectedValues = make(map[string]any)
}
