// Package config loads GraphRAG service settings from the environment,
// the same flat-env-var style the teacher's showcases use.
package config

import (
	"os"
	"strconv"
	"time"
)

// Settings holds every external coordinate the service needs (spec §6
// "Environment inputs").
type Settings struct {
	// Graph store.
	GraphStoreURI string // "memory://" or "falkordb://host:port/graphname"

	// Vector store.
	VectorStoreURI    string // "memory://" or "postgres://..."
	VectorDimension   int
	VectorCollection  string

	// LLM / embedding endpoints (OpenAI-compatible).
	LLMBaseURL        string
	LLMAPIKey         string
	LLMModel          string
	EmbeddingBaseURL  string
	EmbeddingAPIKey   string
	EmbeddingModel    string

	// Upstream document platform.
	UpstreamDSN string

	// Object storage for PDF blobs.
	ObjectStoreEndpoint string
	ObjectStoreKey      string
	ObjectStoreSecret   string
	ObjectStoreBucket   string

	DataDir string

	SessionTTL time.Duration
	RRFConstant int

	ListenAddr string
}

func getenv(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	if v, ok := os.LookupEnv(key); ok {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

// Load reads Settings from the environment, falling back to defaults that
// mirror the original config.py's "GRAPHRAG_" prefixed BaseSettings.
func Load() *Settings {
	return &Settings{
		GraphStoreURI:    getenv("GRAPHRAG_GRAPH_STORE_URI", "memory://"),
		VectorStoreURI:   getenv("GRAPHRAG_VECTOR_STORE_URI", "memory://"),
		VectorDimension:  getenvInt("GRAPHRAG_VECTOR_DIMENSION", 1024),
		VectorCollection: getenv("GRAPHRAG_VECTOR_COLLECTION", "graphrag_entities"),

		LLMBaseURL:       getenv("GRAPHRAG_LLM_API_BASE", "http://localhost:8000/v1"),
		LLMAPIKey:        getenv("GRAPHRAG_LLM_API_KEY", ""),
		LLMModel:         getenv("GRAPHRAG_LLM_MODEL", "llama-4-mini"),
		EmbeddingBaseURL: getenv("GRAPHRAG_EMBEDDING_API_BASE", "http://localhost:8080"),
		EmbeddingAPIKey:  getenv("GRAPHRAG_EMBEDDING_API_KEY", ""),
		EmbeddingModel:   getenv("GRAPHRAG_EMBEDDING_MODEL", "BAAI/bge-m3"),

		UpstreamDSN: getenv("GRAPHRAG_UPSTREAM_DSN", ""),

		ObjectStoreEndpoint: getenv("GRAPHRAG_OBJECT_STORE_ENDPOINT", ""),
		ObjectStoreKey:      getenv("GRAPHRAG_OBJECT_STORE_KEY", ""),
		ObjectStoreSecret:   getenv("GRAPHRAG_OBJECT_STORE_SECRET", ""),
		ObjectStoreBucket:   getenv("GRAPHRAG_OBJECT_STORE_BUCKET", "graphrag"),

		DataDir: getenv("GRAPHRAG_DATA_DIR", "./data/graphrag"),

		SessionTTL:  time.Duration(getenvInt("GRAPHRAG_SESSION_TTL_SECONDS", 24*3600)) * time.Second,
		RRFConstant: getenvInt("GRAPHRAG_RRF_K", 60),

		ListenAddr: getenv("GRAPHRAG_LISTEN_ADDR", ":8088"),
	}
}
