package embedder

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rupamthxt/facematch/internal/config"
	"github.com/rupamthxt/facematch/internal/match"
)

func newTestClient(t *testing.T, h http.HandlerFunc, retries int) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	c := New(config.EmbedderConfig{
		URL:     srv.URL + "/embed",
		Token:   "secret",
		Timeout: 2 * time.Second,
		Retries: retries,
	})
	require.NotNil(t, c)
	return c
}

func TestNew_NoURL(t *testing.T) {
	assert.Nil(t, New(config.EmbedderConfig{}))
}

func TestEmbed_ImageBytes(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/embed", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))

		var req embedRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		raw, err := base64.StdEncoding.DecodeString(req.Image)
		require.NoError(t, err)
		assert.Equal(t, "jpeg-bytes", string(raw))
		assert.Empty(t, req.ImageURL)

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"embedding":[0.5,0.25,1]}`))
	}, 0)

	vec, err := c.Embed(context.Background(), Image{Data: []byte("jpeg-bytes")})
	require.NoError(t, err)
	assert.Equal(t, match.Embedding{0.5, 0.25, 1}, vec)
}

func TestEmbed_ImageURL(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var req embedRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "https://img.example/p.jpg", req.ImageURL)

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"embedding":[1]}`))
	}, 0)

	vec, err := c.Embed(context.Background(), Image{URL: "https://img.example/p.jpg"})
	require.NoError(t, err)
	assert.Len(t, vec, 1)
}

func TestEmbed_NoImage(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("no request expected")
	}, 0)

	_, err := c.Embed(context.Background(), Image{})
	assert.ErrorIs(t, err, ErrNoImage)
}

func TestEmbed_EmptyVector(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"embedding":[]}`))
	}, 0)

	_, err := c.Embed(context.Background(), Image{Data: []byte{1}})
	assert.ErrorIs(t, err, ErrEmbeddingFailed)
}

func TestEmbed_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"embedding":[0.1,0.2]}`))
	}, 2)

	vec, err := c.Embed(context.Background(), Image{Data: []byte{1}})
	require.NoError(t, err)
	assert.Len(t, vec, 2)
	assert.Equal(t, int32(3), calls.Load())
}

func TestEmbed_ClientErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "bad image", http.StatusUnprocessableEntity)
	}, 3)

	_, err := c.Embed(context.Background(), Image{Data: []byte{1}})
	assert.ErrorIs(t, err, ErrEmbeddingFailed)
	assert.ErrorContains(t, err, "422")
	assert.Equal(t, int32(1), calls.Load())
}
