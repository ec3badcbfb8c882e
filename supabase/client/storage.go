package client

import (
	"bytes"
	"context"
	"net/http"
	"net/url"
	"strings"
)

// StorageClient calls the object storage endpoints under /storage/v1.
type StorageClient struct {
	client *Client
}

func (c *Client) Storage() *StorageClient {
	return &StorageClient{client: c}
}

// BucketClient addresses one bucket.
type BucketClient struct {
	client *Client
	bucket string
}

func (s *StorageClient) From(bucket string) *BucketClient {
	return &BucketClient{client: s.client, bucket: bucket}
}

func (b *BucketClient) objectPath(p string) string {
	segments := strings.Split(strings.TrimPrefix(p, "/"), "/")
	for i, seg := range segments {
		segments[i] = url.PathEscape(seg)
	}
	return "/storage/v1/object/" + url.PathEscape(b.bucket) + "/" + strings.Join(segments, "/")
}

// Upload stores data at path. An existing object yields a 409 response.
func (b *BucketClient) Upload(ctx context.Context, path string, data []byte, contentType string) (*Response, error) {
	req, err := b.client.newRequest(ctx, http.MethodPost, b.objectPath(path), bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	req.Header.Set("Content-Type", contentType)
	return b.client.do(req)
}

// Download fetches the object at path.
func (b *BucketClient) Download(ctx context.Context, path string) (*Response, error) {
	req, err := b.client.newRequest(ctx, http.MethodGet, b.objectPath(path), nil)
	if err != nil {
		return nil, err
	}
	return b.client.do(req)
}

// Remove deletes the object at path.
func (b *BucketClient) Remove(ctx context.Context, path string) (*Response, error) {
	req, err := b.client.newRequest(ctx, http.MethodDelete, b.objectPath(path), nil)
	if err != nil {
		return nil, err
	}
	return b.client.do(req)
}

// GetPublicURL returns the URL of path in a public bucket.
func (b *BucketClient) GetPublicURL(path string) string {
	return b.client.baseURL + strings.Replace(b.objectPath(path), "/object/", "/object/public/", 1)
}
