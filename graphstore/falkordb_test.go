package graphstore

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/smallnest/graphrag/model"
)

// FalkorDBStore talks GRAPH.QUERY over a live Redis/FalkorDB connection, so
// its network path isn't exercised here; these tests cover the pure
// query-building and reply-decoding helpers that do the actual Cypher
// translation work, independent of any connection.

func TestContainsMutatingVerb(t *testing.T) {
	cases := []struct {
		query string
		want  bool
	}{
		{"MATCH (n) RETURN n", false},
		{"MATCH (n) DELETE n", true},
		{"MATCH (n) DETACH DELETE n", true},
		{"MATCH (n {name: 'deleted'}) RETURN n", false}, // "deleted" contains DELETE but not as a whole word
		{"match (n) set n.x = 1", true},
		{"MATCH (n)-[r]->(m) MERGE (n)-[:FOO]->(m)", true},
		{"CREATE (n:Entity) RETURN n", true},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, ContainsMutatingVerb(c.query), c.query)
	}
}

func TestCypherLabel(t *testing.T) {
	assert.Equal(t, "person", cypherLabel("person"))
	assert.Equal(t, "my_type_v2", cypherLabel("my-type v2"))
	assert.Equal(t, "Entity", cypherLabel(""))
}

func TestCypherString_EscapesQuotesAndBackslashes(t *testing.T) {
	assert.Equal(t, `"hello"`, cypherString("hello"))
	assert.Equal(t, `"say \"hi\""`, cypherString(`say "hi"`))
	assert.Equal(t, `"back\\slash"`, cypherString(`back\slash`))
}

func TestAsString(t *testing.T) {
	assert.Equal(t, "abc", asString([]byte("abc")))
	assert.Equal(t, "abc", asString("abc"))
	assert.Equal(t, "42", asString(42))
}

func TestAsFloat(t *testing.T) {
	assert.Equal(t, 1.5, asFloat(1.5))
	assert.Equal(t, 3.0, asFloat(int64(3)))
	assert.Equal(t, 2.5, asFloat([]byte("2.5")))
	assert.Equal(t, 2.5, asFloat("2.5"))
	assert.Equal(t, 0.0, asFloat(true))
}

func TestNodeFromProps(t *testing.T) {
	props := []any{
		"id", "e1",
		"name", "Ada Lovelace",
		"type", "person",
		"description", "mathematician",
		"dataset_id", "ds-1",
		"source_page", float64(3),
		"confidence", 0.9,
	}
	e := nodeFromProps(props)
	assert.Equal(t, "e1", e.ID)
	assert.Equal(t, "Ada Lovelace", e.Name)
	assert.Equal(t, model.EntityPerson, e.Type)
	assert.Equal(t, 3, e.SourcePage)
	assert.Equal(t, 0.9, e.Confidence)
}

func TestFlattenNodeProps(t *testing.T) {
	node := []any{
		int64(7),         // internal node id
		[]any{"Person"},  // labels
		[]any{ // property pairs
			[]any{"id", "e1"},
			[]any{"name", "Ada Lovelace"},
		},
	}
	flat := flattenNodeProps(node)
	assert.Equal(t, []any{"id", "e1", "name", "Ada Lovelace"}, flat)
}

func TestFlattenNodeProps_ShortNode(t *testing.T) {
	assert.Nil(t, flattenNodeProps([]any{1, 2}))
}

func TestEntityProps_IncludesAllFields(t *testing.T) {
	e := model.Entity{ID: "e1", Name: "Ada", Type: model.EntityPerson, DatasetID: "ds-1", Confidence: 0.8}
	props := entityProps(e)
	assert.Contains(t, props, `id: "e1"`)
	assert.Contains(t, props, `name: "Ada"`)
	assert.Contains(t, props, `type: "person"`)
	assert.Contains(t, props, `description: ""`)
	assert.Contains(t, props, `dataset_id: "ds-1"`)
	assert.Contains(t, props, `source_document_id: ""`)
	assert.Contains(t, props, `source_chunk_id: ""`)
	assert.Contains(t, props, "source_page: 0")
	assert.Contains(t, props, "confidence: 0.800000")
}

func TestRelProps_IncludesAllFields(t *testing.T) {
	r := model.Relationship{ID: "r1", Weight: 1, Confidence: 0.7, DatasetID: "ds-1"}
	props := relProps(r)
	assert.Contains(t, props, `id: "r1"`)
	assert.Contains(t, props, "weight: 1.000000")
	assert.Contains(t, props, `description: ""`)
	assert.Contains(t, props, "confidence: 0.700000")
	assert.Contains(t, props, `dataset_id: "ds-1"`)
	assert.Contains(t, props, `source_document_id: ""`)
}

func TestLimitOrDefault(t *testing.T) {
	assert.Equal(t, 5, limitOrDefault(5, 200))
	assert.Equal(t, 200, limitOrDefault(0, 200))
	assert.Equal(t, 200, limitOrDefault(-1, 200))
}

func TestNewFalkorDBStore_MissingHost(t *testing.T) {
	_, err := NewFalkorDBStore("falkordb:///graphname")
	assert.Error(t, err)
}

func TestNewFalkorDBStore_DefaultGraphName(t *testing.T) {
	store, err := NewFalkorDBStore("falkordb://localhost:6379")
	assert.NoError(t, err)
	assert.Equal(t, "graphrag", store.graphName)
}

func TestNewFalkorDBStore_CustomGraphName(t *testing.T) {
	store, err := NewFalkorDBStore("falkordb://localhost:6379/mydataset")
	assert.NoError(t, err)
	assert.Equal(t, "mydataset", store.graphName)
}
