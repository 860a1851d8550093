// Package objectstore resolves PDF blob upload_file_keys to local paths by
// downloading them from S3-compatible object storage (spec §6 environment
// inputs: "object-storage endpoint/key/secret/bucket"), the source the
// high-fidelity PDF parser needs before it can page-split a document.
package objectstore

import (
	"context"
	"fmt"
	"os"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Client downloads objects from one S3-compatible bucket to local temp
// files for the PDF parser, cleaning them up after use.
type Client struct {
	mc     *minio.Client
	bucket string
}

// Options configures a Client.
type Options struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// New constructs a Client against an S3-compatible endpoint.
func New(opts Options) (*Client, error) {
	mc, err := minio.New(opts.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(opts.AccessKey, opts.SecretKey, ""),
		Secure: opts.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("objectstore: construct client: %w", err)
	}
	return &Client{mc: mc, bucket: opts.Bucket}, nil
}

// Download fetches key into a local temp file, returning its path and a
// cleanup func that removes it — matching chunksource.PDFSource's Open
// signature directly.
func (c *Client) Download(ctx context.Context, key string) (string, func(), error) {
	tmp, err := os.CreateTemp("", "graphrag-blob-*.pdf")
	if err != nil {
		return "", nil, fmt.Errorf("objectstore: create temp file: %w", err)
	}
	path := tmp.Name()
	tmp.Close()

	if err := c.mc.FGetObject(ctx, c.bucket, key, path, minio.GetObjectOptions{}); err != nil {
		os.Remove(path)
		return "", nil, fmt.Errorf("objectstore: download %s/%s: %w", c.bucket, key, err)
	}
	cleanup := func() { os.Remove(path) }
	return path, cleanup, nil
}
