// Command graphragd and its supporting packages implement a knowledge-graph
// retrieval service: documents are chunked, entities and relationships are
// extracted by an LLM into a labeled property graph and a dense vector
// index, and a hybrid search engine fuses graph traversal with vector
// similarity (reciprocal rank fusion) to answer queries with cited,
// LLM-generated narrative.
//
// # Package layout
//
//   - model: shared domain types (Entity, Relationship, Subgraph, Intent,
//     Condition, Action, FlowEdge) and the Kind-tagged error taxonomy.
//   - config: environment-variable configuration.
//   - graphstore: the labeled property graph (in-memory and FalkorDB
//     backends).
//   - vectorstore: the dense vector index (in-memory and pgvector/Postgres
//     backends).
//   - llm: chat-completion and embedding client.
//   - extractor: LLM-driven entity/relationship extraction from chunk text.
//   - chunksource: pluggable document chunk sources (PDF, upstream
//     relational segments).
//   - ingest: the document -> chunks -> extraction -> graph/vector upsert
//     pipeline.
//   - search: hybrid vector+graph retrieval.
//   - narrative: cited natural-language answer generation.
//   - flow: the conversation-authoring flow graph (intents, conditions,
//     actions, edges), persisted in SQLite.
//   - conversation: the turn-based conversation engine, a small fixed
//     state machine over the flow graph.
//   - session: TTL-bounded per-session conversation state in Redis.
//   - httpapi: the net/http.ServeMux HTTP surface.
//   - objectstore: S3-compatible object storage for PDF blobs.
//   - cmd/graphragd: the service entrypoint.
package graphrag
