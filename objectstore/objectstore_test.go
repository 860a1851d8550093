package objectstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	c, err := New(Options{
		Endpoint:  "127.0.0.1:9000",
		AccessKey: "minioadmin",
		SecretKey: "minioadmin",
		Bucket:    "graphrag-docs",
	})
	require.NoError(t, err)
	assert.Equal(t, "graphrag-docs", c.bucket)
}

func TestDownloadCleansUpOnFailure(t *testing.T) {
	// Download against an endpoint with nothing listening fails fast; this
	// exercises the cleanup-on-failure path without needing a live
	// S3-compatible server to assert a successful fetch against.
	c, err := New(Options{Endpoint: "127.0.0.1:1", AccessKey: "a", SecretKey: "b", Bucket: "docs"})
	require.NoError(t, err)

	path, cleanup, err := c.Download(context.Background(), "missing-key.pdf")
	assert.Error(t, err)
	assert.Empty(t, path)
	assert.Nil(t, cleanup)
}
