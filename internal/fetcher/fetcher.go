// Package fetcher downloads feeds and article pages over HTTP with per-host
// politeness.
package fetcher

import (
	"context"
	"net/http"
)

// Response is a fully-read HTTP response.
type Response struct {
	URL        string
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Fetcher defines the interface for downloading remote documents.
type Fetcher interface {
	// Get fetches the URL and returns the body of a 2xx response.
	Get(ctx context.Context, url string) (*Response, error)
}
