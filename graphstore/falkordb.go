package graphstore

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/redis/go-redis/v9"
	"github.com/smallnest/graphrag/model"
)

// FalkorDBStore is a Cypher-over-Redis Store, the idiomatic Go substitute
// for the original Neo4j-backed graph store: FalkorDB speaks the same
// GRAPH.QUERY wire protocol reachable through the go-redis client the rest
// of this service already depends on for session storage.
type FalkorDBStore struct {
	client    redis.UniversalClient
	graphName string
}

// NewFalkorDBStore parses a "falkordb://host:port/graphname" URI and opens
// a go-redis client against it.
func NewFalkorDBStore(connectionString string) (*FalkorDBStore, error) {
	u, err := url.Parse(connectionString)
	if err != nil {
		return nil, fmt.Errorf("graphstore: invalid falkordb URI: %w", err)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("graphstore: falkordb URI missing host")
	}
	graphName := strings.TrimPrefix(u.Path, "/")
	if graphName == "" {
		graphName = "graphrag"
	}

	client := redis.NewClient(&redis.Options{Addr: u.Host})
	return &FalkorDBStore{client: client, graphName: graphName}, nil
}

var labelRegexp = regexp.MustCompile(`[^a-zA-Z0-9_]`)

func cypherLabel(s string) string {
	clean := labelRegexp.ReplaceAllString(string(s), "_")
	if clean == "" {
		return "Entity"
	}
	return clean
}

func cypherString(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `"`, `\"`)
	return `"` + s + `"`
}

// rawQuery issues a GRAPH.QUERY and decodes FalkorDB's compact reply shape:
// an optional header row, a result-row array, and a trailing stats array.
// The exact element types returned by go-redis vary with RESP protocol
// version (strings vs []byte vs nested arrays); callers defensively type-
// switch rather than assuming one shape.
func (f *FalkorDBStore) rawQuery(ctx context.Context, cypher string) ([][]any, error) {
	res, err := f.client.Do(ctx, "GRAPH.QUERY", f.graphName, cypher, "--compact").Result()
	if err != nil {
		return nil, err
	}
	top, ok := res.([]any)
	if !ok || len(top) < 2 {
		return nil, fmt.Errorf("graphstore: unexpected GRAPH.QUERY reply shape %T", res)
	}
	rowsIdx := 0
	if len(top) == 3 {
		rowsIdx = 1
	}
	rows, ok := top[rowsIdx].([]any)
	if !ok {
		return nil, nil
	}
	out := make([][]any, 0, len(rows))
	for _, row := range rows {
		if r, ok := row.([]any); ok {
			out = append(out, r)
		}
	}
	return out, nil
}

func asString(v any) string {
	switch x := v.(type) {
	case []byte:
		return string(x)
	case string:
		return x
	default:
		return fmt.Sprint(x)
	}
}

func asFloat(v any) float64 {
	switch x := v.(type) {
	case float64:
		return x
	case int64:
		return float64(x)
	case []byte:
		f, _ := strconv.ParseFloat(string(x), 64)
		return f
	case string:
		f, _ := strconv.ParseFloat(x, 64)
		return f
	default:
		return 0
	}
}

// nodeFromProps decodes a node's property list (flattened key,value pairs
// as returned under --compact) into an Entity.
func nodeFromProps(props []any) model.Entity {
	e := model.Entity{}
	for i := 0; i+1 < len(props); i += 2 {
		key := asString(props[i])
		val := props[i+1]
		switch key {
		case "id":
			e.ID = asString(val)
		case "name":
			e.Name = asString(val)
		case "type":
			e.Type = model.NormalizeEntityType(asString(val))
		case "description":
			e.Description = asString(val)
		case "dataset_id":
			e.DatasetID = asString(val)
		case "source_document_id":
			e.SourceDocumentID = asString(val)
		case "source_chunk_id":
			e.SourceChunkID = asString(val)
		case "source_page":
			e.SourcePage = int(asFloat(val))
		case "confidence":
			e.Confidence = asFloat(val)
		}
	}
	return e
}

func entityProps(e model.Entity) string {
	parts := []string{
		fmt.Sprintf("id: %s", cypherString(e.ID)),
		fmt.Sprintf("name: %s", cypherString(e.Name)),
		fmt.Sprintf("type: %s", cypherString(string(e.Type))),
		fmt.Sprintf("description: %s", cypherString(e.Description)),
		fmt.Sprintf("dataset_id: %s", cypherString(e.DatasetID)),
		fmt.Sprintf("source_document_id: %s", cypherString(e.SourceDocumentID)),
		fmt.Sprintf("source_chunk_id: %s", cypherString(e.SourceChunkID)),
		fmt.Sprintf("source_page: %d", e.SourcePage),
		fmt.Sprintf("confidence: %f", e.Confidence),
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

func relProps(r model.Relationship) string {
	parts := []string{
		fmt.Sprintf("id: %s", cypherString(r.ID)),
		fmt.Sprintf("description: %s", cypherString(r.Description)),
		fmt.Sprintf("weight: %f", r.Weight),
		fmt.Sprintf("confidence: %f", r.Confidence),
		fmt.Sprintf("dataset_id: %s", cypherString(r.DatasetID)),
		fmt.Sprintf("source_document_id: %s", cypherString(r.SourceDocumentID)),
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

// UpsertEntities MERGEs one node per entity, matching by id (idempotent).
func (f *FalkorDBStore) UpsertEntities(ctx context.Context, batch []model.Entity) error {
	for _, e := range batch {
		if e.ID == "" {
			e.ID = DeriveEntityID(e.DatasetID, e.Name)
		}
		if e.Confidence == 0 {
			e.Confidence = 1.0
		}
		label := cypherLabel(string(e.Type))
		q := fmt.Sprintf("MERGE (n:%s {id: %s}) SET n += %s", label, cypherString(e.ID), entityProps(e))
		if _, err := f.rawQuery(ctx, q); err != nil {
			return fmt.Errorf("graphstore: upsert entity %s: %w", e.ID, err)
		}
	}
	return nil
}

// UpsertRelationships MATCHes endpoints by case-insensitive name within the
// dataset (mirroring the original Neo4j store's toLower() matching, spec
// §4.2/§9 open question) and MERGEs the edge; unmatched endpoints are
// dropped and counted rather than erroring the batch.
func (f *FalkorDBStore) UpsertRelationships(ctx context.Context, batch []model.Relationship) (int, error) {
	dropped := 0
	for _, r := range batch {
		relType := cypherLabel(string(r.Type))
		q := fmt.Sprintf(
			`MATCH (a {dataset_id: %s}), (b {dataset_id: %s}) `+
				`WHERE (a.id = %s OR toLower(a.name) = toLower(%s)) AND (b.id = %s OR toLower(b.name) = toLower(%s)) `+
				`MERGE (a)-[r:%s]->(b) SET r += %s RETURN a.id, b.id`,
			cypherString(r.DatasetID), cypherString(r.DatasetID),
			cypherString(r.SourceEntityID), cypherString(r.SourceEntityID),
			cypherString(r.TargetEntityID), cypherString(r.TargetEntityID),
			relType, relProps(r),
		)
		rows, err := f.rawQuery(ctx, q)
		if err != nil {
			return dropped, fmt.Errorf("graphstore: upsert relationship: %w", err)
		}
		if len(rows) == 0 {
			dropped++
		}
	}
	return dropped, nil
}

// SearchEntities performs a CONTAINS match on name/description, ordered by
// confidence descending (spec §4.2).
func (f *FalkorDBStore) SearchEntities(ctx context.Context, q string, filter Query) ([]model.Entity, error) {
	where := []string{}
	if q != "" {
		where = append(where, fmt.Sprintf("(toLower(n.name) CONTAINS toLower(%s) OR toLower(n.description) CONTAINS toLower(%s))", cypherString(q), cypherString(q)))
	}
	if filter.DatasetID != "" {
		where = append(where, fmt.Sprintf("n.dataset_id = %s", cypherString(filter.DatasetID)))
	}
	if filter.SourceDocumentID != "" {
		where = append(where, fmt.Sprintf("n.source_document_id = %s", cypherString(filter.SourceDocumentID)))
	}
	cypher := "MATCH (n)"
	if len(where) > 0 {
		cypher += " WHERE " + strings.Join(where, " AND ")
	}
	cypher += " RETURN n ORDER BY n.confidence DESC"
	if filter.Limit > 0 {
		cypher += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	rows, err := f.rawQuery(ctx, cypher)
	if err != nil {
		return nil, err
	}
	entities := make([]model.Entity, 0, len(rows))
	for _, row := range rows {
		if len(row) == 0 {
			continue
		}
		if props, ok := row[0].([]any); ok {
			entities = append(entities, nodeFromProps(flattenNodeProps(props)))
		}
	}
	return entities, nil
}

// flattenNodeProps extracts the property list from FalkorDB's compact node
// representation: [internal_id, labels, properties]. Properties arrive as
// a list of [key, value] pairs rather than a flat list; this adapts that
// shape to the flat key,value,key,value form nodeFromProps expects.
func flattenNodeProps(node []any) []any {
	if len(node) < 3 {
		return nil
	}
	pairs, ok := node[2].([]any)
	if !ok {
		return nil
	}
	flat := make([]any, 0, len(pairs)*2)
	for _, p := range pairs {
		pair, ok := p.([]any)
		if !ok || len(pair) != 2 {
			continue
		}
		flat = append(flat, pair[0], pair[1])
	}
	return flat
}

// SearchWithContext performs SearchEntities and attaches incident-edge
// descriptions per hit (spec §4.2).
func (f *FalkorDBStore) SearchWithContext(ctx context.Context, q string, filter Query) ([]SearchResult, error) {
	entities, err := f.SearchEntities(ctx, q, filter)
	if err != nil {
		return nil, err
	}
	results := make([]SearchResult, 0, len(entities))
	for _, e := range entities {
		cypher := fmt.Sprintf("MATCH (n {id: %s})-[r]-(m) RETURN type(r), m.name LIMIT 10", cypherString(e.ID))
		rows, err := f.rawQuery(ctx, cypher)
		var parts []string
		if err == nil {
			for _, row := range rows {
				if len(row) == 2 {
					parts = append(parts, fmt.Sprintf("%s %s %s", e.Name, asString(row[0]), asString(row[1])))
				}
			}
		}
		results = append(results, SearchResult{Entity: e, Context: strings.Join(parts, "; ")})
	}
	return results, nil
}

// Neighbors runs a variable-length path query bounded by maxDepth,
// building a deduped subgraph keyed by the entity's own id field, not
// FalkorDB's internal node id (spec §4.2).
func (f *FalkorDBStore) Neighbors(ctx context.Context, entityID string, maxDepth int, limit int) (Subgraph, error) {
	if maxDepth < 1 {
		maxDepth = 1
	}
	if maxDepth > 5 {
		maxDepth = 5
	}
	cypher := fmt.Sprintf("MATCH (n {id: %s})-[r*1..%d]-(m) RETURN DISTINCT m LIMIT %d", cypherString(entityID), maxDepth, limitOrDefault(limit, 200))
	rows, err := f.rawQuery(ctx, cypher)
	if err != nil {
		return Subgraph{}, err
	}
	var sub Subgraph
	for _, row := range rows {
		if len(row) == 0 {
			continue
		}
		if props, ok := row[0].([]any); ok {
			sub.Entities = append(sub.Entities, nodeFromProps(flattenNodeProps(props)))
		}
	}
	return sub, nil
}

func limitOrDefault(limit, def int) int {
	if limit > 0 {
		return limit
	}
	return def
}

// DatasetGraph returns a sample subgraph for visualization (spec §4.2).
func (f *FalkorDBStore) DatasetGraph(ctx context.Context, datasetID string, limit int) (Subgraph, error) {
	cypher := fmt.Sprintf("MATCH (n {dataset_id: %s}) OPTIONAL MATCH (n)-[r]-(m {dataset_id: %s}) RETURN n, r, m LIMIT %d", cypherString(datasetID), cypherString(datasetID), limitOrDefault(limit, 200))
	rows, err := f.rawQuery(ctx, cypher)
	if err != nil {
		return Subgraph{}, err
	}
	var sub Subgraph
	seen := map[string]bool{}
	for _, row := range rows {
		if len(row) < 1 {
			continue
		}
		if props, ok := row[0].([]any); ok {
			e := nodeFromProps(flattenNodeProps(props))
			if e.ID != "" && !seen[e.ID] {
				seen[e.ID] = true
				sub.Entities = append(sub.Entities, e)
			}
		}
		if len(row) == 3 {
			if props, ok := row[2].([]any); ok {
				e := nodeFromProps(flattenNodeProps(props))
				if e.ID != "" && !seen[e.ID] {
					seen[e.ID] = true
					sub.Entities = append(sub.Entities, e)
				}
			}
		}
	}
	return sub, nil
}

// Stats aggregates entity and relationship counts via count queries.
func (f *FalkorDBStore) Stats(ctx context.Context, datasetID string) (Stats, error) {
	st := Stats{EntityTypeCounts: make(map[model.EntityType]int), RelTypeCounts: make(map[model.RelationshipType]int)}

	where := ""
	if datasetID != "" {
		where = fmt.Sprintf(" {dataset_id: %s}", cypherString(datasetID))
	}
	rows, err := f.rawQuery(ctx, fmt.Sprintf("MATCH (n%s) RETURN n.type, count(n)", where))
	if err != nil {
		return st, err
	}
	for _, row := range rows {
		if len(row) == 2 {
			st.EntityTypeCounts[model.NormalizeEntityType(asString(row[0]))] += int(asFloat(row[1]))
			st.EntityCount += int(asFloat(row[1]))
		}
	}

	relWhere := ""
	if datasetID != "" {
		relWhere = fmt.Sprintf(" {dataset_id: %s}", cypherString(datasetID))
	}
	relRows, err := f.rawQuery(ctx, fmt.Sprintf("MATCH ()-[r%s]->() RETURN type(r), count(r)", relWhere))
	if err != nil {
		return st, err
	}
	for _, row := range relRows {
		if len(row) == 2 {
			st.RelTypeCounts[model.NormalizeRelationshipType(asString(row[0]))] += int(asFloat(row[1]))
			st.RelationshipCount += int(asFloat(row[1]))
		}
	}
	return st, nil
}

// ProcessedChunkIDs returns the distinct source_chunk_id values already
// present for a dataset, the basis of C6's resume (spec §4.1, I4).
func (f *FalkorDBStore) ProcessedChunkIDs(ctx context.Context, datasetID string) (map[string]bool, error) {
	cypher := fmt.Sprintf("MATCH (n {dataset_id: %s}) WHERE n.source_chunk_id <> '' RETURN DISTINCT n.source_chunk_id", cypherString(datasetID))
	rows, err := f.rawQuery(ctx, cypher)
	if err != nil {
		return nil, err
	}
	out := make(map[string]bool)
	for _, row := range rows {
		if len(row) == 1 {
			out[asString(row[0])] = true
		}
	}
	return out, nil
}

// DeleteDataset cascades via DETACH DELETE (spec §4.2).
func (f *FalkorDBStore) DeleteDataset(ctx context.Context, datasetID string) error {
	_, err := f.rawQuery(ctx, fmt.Sprintf("MATCH (n {dataset_id: %s}) DETACH DELETE n", cypherString(datasetID)))
	return err
}

// ExecuteQuery rejects any mutating verb before passing the query through
// to GRAPH.QUERY, the safety gate demanded by spec §4.2/§7/P6 — a check the
// original Python service's execute_cypher does not itself perform.
func (f *FalkorDBStore) ExecuteQuery(ctx context.Context, query string, params map[string]any) (Subgraph, error) {
	if ContainsMutatingVerb(query) {
		return Subgraph{}, fmt.Errorf("graphstore: rejected mutating query")
	}
	rows, err := f.rawQuery(ctx, query)
	if err != nil {
		return Subgraph{}, err
	}
	var sub Subgraph
	for _, row := range rows {
		for _, cell := range row {
			if props, ok := cell.([]any); ok && len(props) == 3 {
				e := nodeFromProps(flattenNodeProps(props))
				if e.ID != "" {
					sub.Entities = append(sub.Entities, e)
				}
			}
		}
	}
	return sub, nil
}

// Close closes the underlying Redis client.
func (f *FalkorDBStore) Close() error {
	return f.client.Close()
}
