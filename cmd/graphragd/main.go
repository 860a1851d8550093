// Command graphragd runs the GraphRAG HTTP service: it wires the graph
// store, vector store, LLM client, extractor, document source, ingest
// pipeline, search engine, narrative generator, flow store, session
// store, and conversation engine behind the httpapi surface.
package main

import (
	"context"
	"log"
	"os"

	"github.com/smallnest/graphrag/chunksource"
	"github.com/smallnest/graphrag/config"
	"github.com/smallnest/graphrag/conversation"
	golog "github.com/smallnest/graphrag/log"

	"github.com/smallnest/graphrag/extractor"
	"github.com/smallnest/graphrag/flow"
	"github.com/smallnest/graphrag/graphstore"
	"github.com/smallnest/graphrag/httpapi"
	"github.com/smallnest/graphrag/ingest"
	"github.com/smallnest/graphrag/llm"
	"github.com/smallnest/graphrag/narrative"
	"github.com/smallnest/graphrag/objectstore"
	"github.com/smallnest/graphrag/search"
	"github.com/smallnest/graphrag/session"
	"github.com/smallnest/graphrag/vectorstore"
)

// productLexicon maps product keywords to document ids for the
// conversation engine's document-context detection. It is empty, so no
// document context is derived from message text.
var productLexicon = map[string]string{}

func main() {
	cfg := config.Load()
	logger := golog.NewServiceLogger("graphragd")
	ctx := context.Background()

	graphStore, err := graphstore.New(cfg.GraphStoreURI)
	if err != nil {
		log.Fatalf("graphragd: open graph store: %v", err)
	}
	defer graphStore.Close()

	vectorStore, err := vectorstore.New(ctx, cfg.VectorStoreURI, cfg.VectorDimension)
	if err != nil {
		log.Fatalf("graphragd: open vector store: %v", err)
	}
	defer vectorStore.Close()

	llmClient := llm.New(llm.Options{
		ChatBaseURL: cfg.LLMBaseURL, ChatAPIKey: cfg.LLMAPIKey, ChatModel: cfg.LLMModel,
		EmbedBaseURL: cfg.EmbeddingBaseURL, EmbedAPIKey: cfg.EmbeddingAPIKey, EmbedModel: cfg.EmbeddingModel,
		Logger: logger,
	})

	ex := extractor.New(llmClient)

	var docs *chunksource.SegmentStore
	if cfg.UpstreamDSN != "" {
		docs, err = chunksource.NewSegmentStore(ctx, cfg.UpstreamDSN)
		if err != nil {
			log.Fatalf("graphragd: open upstream document db: %v", err)
		}
		defer docs.Close()
	}

	var pdfSource *chunksource.PDFSource
	if cfg.ObjectStoreEndpoint != "" {
		objClient, err := objectstore.New(objectstore.Options{
			Endpoint: cfg.ObjectStoreEndpoint, AccessKey: cfg.ObjectStoreKey,
			SecretKey: cfg.ObjectStoreSecret, Bucket: cfg.ObjectStoreBucket,
		})
		if err != nil {
			log.Fatalf("graphragd: construct object store client: %v", err)
		}
		pdfSource = chunksource.NewPDFSource(objClient.Download)
	}

	pipeline := ingest.New(graphStore, vectorStore, ex, llmClient, docs, pdfSource, logger)
	searchEngine := search.New(graphStore, vectorStore, llmClient, cfg.RRFConstant)

	var resolver narrative.NameResolver
	if docs != nil {
		resolver = docs
	}
	generator := narrative.New(llmClient, resolver)

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		log.Fatalf("graphragd: create data directory: %v", err)
	}
	flowStore, err := flow.New(flow.Options{Path: cfg.DataDir + "/flow.db"})
	if err != nil {
		log.Fatalf("graphragd: open flow store: %v", err)
	}
	defer flowStore.Close()

	sessionStore := session.New(session.Options{TTL: cfg.SessionTTL})
	defer sessionStore.Close()

	chatEngine, err := conversation.New(sessionStore, flowStore, searchEngine, generator, llmClient, productLexicon)
	if err != nil {
		log.Fatalf("graphragd: compile conversation engine: %v", err)
	}

	server := httpapi.NewServer(httpapi.Deps{
		Graph: graphStore, Vector: vectorStore, LLM: llmClient, Extractor: ex,
		Pipeline: pipeline, Search: searchEngine, Narrative: generator,
		Flow: flowStore, Sessions: sessionStore, Chat: chatEngine, Logger: logger,
	})

	if err := server.ListenAndServe(cfg.ListenAddr); err != nil {
		log.Fatalf("graphragd: server exited: %v", err)
	}
}
