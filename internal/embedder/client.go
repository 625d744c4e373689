// Package embedder talks to the external service that turns a face photo
// into an embedding vector.
package embedder

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/rupamthxt/facematch/internal/config"
	"github.com/rupamthxt/facematch/internal/match"
)

var (
	// ErrEmbedderUnavailable means no embedding service is configured.
	ErrEmbedderUnavailable = errors.New("embedding service not configured")
	// ErrEmbeddingFailed means the service was reached but produced no usable vector.
	ErrEmbeddingFailed = errors.New("embedding generation failed")
	ErrNoImage         = errors.New("image data or url required")
)

// Image is either raw bytes or a URL the embedding service can fetch.
type Image struct {
	Data []byte
	URL  string
}

type Embedder interface {
	Embed(ctx context.Context, img Image) (match.Embedding, error)
}

type embedRequest struct {
	Image    string `json:"image,omitempty"`
	ImageURL string `json:"imageUrl,omitempty"`
}

type embedResponse struct {
	Embedding []float32 `json:"embedding"`
}

type Client struct {
	url    string
	client *resty.Client
}

// New returns a client for cfg, or nil when no URL is configured so callers
// can treat image operations as unavailable.
func New(cfg config.EmbedderConfig) *Client {
	if cfg.URL == "" {
		return nil
	}

	rc := resty.New().
		SetTimeout(cfg.Timeout).
		SetRetryCount(cfg.Retries).
		SetRetryWaitTime(200 * time.Millisecond).
		SetRetryMaxWaitTime(2 * time.Second).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			return err != nil || r.StatusCode() >= 500
		}).
		SetHeader("Accept", "application/json")
	if cfg.Token != "" {
		rc.SetAuthToken(cfg.Token)
	}

	return &Client{url: cfg.URL, client: rc}
}

func (c *Client) Embed(ctx context.Context, img Image) (match.Embedding, error) {
	var body embedRequest
	switch {
	case len(img.Data) > 0:
		body.Image = base64.StdEncoding.EncodeToString(img.Data)
	case img.URL != "":
		body.ImageURL = img.URL
	default:
		return nil, ErrNoImage
	}

	var out embedResponse
	resp, err := c.client.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(&out).
		Post(c.url)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmbeddingFailed, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("%w: HTTP %d: %s", ErrEmbeddingFailed, resp.StatusCode(), resp.String())
	}
	if len(out.Embedding) == 0 {
		return nil, fmt.Errorf("%w: empty embedding", ErrEmbeddingFailed)
	}
	return out.Embedding, nil
}
