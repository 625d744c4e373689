package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/rupamthxt/facematch/internal/embedder"
	"github.com/rupamthxt/facematch/internal/match"
	"github.com/rupamthxt/facematch/internal/store"
)

type fakeEmbedder struct {
	vec   match.Embedding
	err   error
	calls int
	last  embedder.Image
}

func (f *fakeEmbedder) Embed(_ context.Context, img embedder.Image) (match.Embedding, error) {
	f.calls++
	f.last = img
	return f.vec, f.err
}

func newService(t *testing.T, emb embedder.Embedder) (*Service, *store.Gallery, *observer.ObservedLogs) {
	t.Helper()
	core, logs := observer.New(zapcore.DebugLevel)
	g := store.NewGallery()
	return New(g, match.NewRanker(), emb, zap.New(core)), g, logs
}

func seed(t *testing.T, g *store.Gallery) {
	t.Helper()
	require.NoError(t, g.Put(match.Candidate{ID: "A", Name: "Asha", ImageRef: "a.jpg", Embedding: match.Embedding{1, 0, 0}}))
	require.NoError(t, g.Put(match.Candidate{ID: "B", Name: "Bilal", ImageRef: "b.jpg", Embedding: match.Embedding{0.8, 0.6, 0}}))
	require.NoError(t, g.Put(match.Candidate{ID: "C", Name: "Chitra", ImageRef: "c.jpg", Embedding: match.Embedding{0, 1, 0}}))
}

func TestMatchEmbedding(t *testing.T) {
	svc, g, _ := newService(t, nil)
	seed(t, g)

	results, err := svc.MatchEmbedding(context.Background(), match.Embedding{1, 0, 0})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "A", results[0].ID)
	assert.Equal(t, "B", results[1].ID)
	assert.InDelta(t, 80, results[1].Confidence, 1e-4)
}

func TestMatchEmbedding_EmptyQuery(t *testing.T) {
	svc, g, _ := newService(t, nil)
	seed(t, g)

	_, err := svc.MatchEmbedding(context.Background(), nil)
	assert.ErrorIs(t, err, match.ErrNoQueryEmbedding)
}

func TestMatchEmbedding_LogsMismatchedCandidates(t *testing.T) {
	svc, g, logs := newService(t, nil)
	seed(t, g)
	require.NoError(t, g.Put(match.Candidate{ID: "bad", Name: "Broken", Embedding: match.Embedding{1, 0}}))

	results, err := svc.MatchEmbedding(context.Background(), match.Embedding{1, 0, 0})
	require.NoError(t, err)
	assert.Len(t, results, 2)

	warned := logs.FilterMessage("skipped candidates with mismatched embedding length").All()
	require.Len(t, warned, 1)
	assert.Equal(t, int64(1), warned[0].ContextMap()["mismatched"])
}

func TestMatchImage(t *testing.T) {
	emb := &fakeEmbedder{vec: match.Embedding{1, 0, 0}}
	svc, g, _ := newService(t, emb)
	seed(t, g)

	results, err := svc.MatchImage(context.Background(), embedder.Image{Data: []byte("photo")})
	require.NoError(t, err)
	assert.Len(t, results, 2)
	assert.Equal(t, 1, emb.calls)
	assert.Equal(t, []byte("photo"), emb.last.Data)
}

func TestMatchImage_EmbeddingFailureAborts(t *testing.T) {
	emb := &fakeEmbedder{err: errors.New("model timeout")}
	svc, g, logs := newService(t, emb)
	seed(t, g)

	results, err := svc.MatchImage(context.Background(), embedder.Image{Data: []byte("photo")})
	assert.ErrorIs(t, err, embedder.ErrEmbeddingFailed)
	assert.Nil(t, results)
	assert.Equal(t, 1, logs.FilterMessage("embedding generation failed").Len())
}

func TestMatchImage_NoEmbedder(t *testing.T) {
	svc, _, _ := newService(t, nil)

	_, err := svc.MatchImage(context.Background(), embedder.Image{Data: []byte("photo")})
	assert.ErrorIs(t, err, embedder.ErrEmbedderUnavailable)
}

func TestRegisterCandidate_WithEmbedding(t *testing.T) {
	svc, g, _ := newService(t, nil)

	id, err := svc.RegisterCandidate(context.Background(), Registration{
		ID:        "p-7",
		Name:      "Meena",
		ImageRef:  "gs://gallery/meena.jpg",
		Embedding: match.Embedding{0.2, 0.4},
	})
	require.NoError(t, err)
	assert.Equal(t, "p-7", id)

	got, ok := g.Get("p-7")
	require.True(t, ok)
	assert.Equal(t, "gs://gallery/meena.jpg", got.ImageRef)
	assert.Equal(t, 1, svc.CountCandidates())
}

func TestRegisterCandidate_GeneratesIDAndEmbedding(t *testing.T) {
	emb := &fakeEmbedder{vec: match.Embedding{0.3, 0.3, 0.3}}
	svc, _, _ := newService(t, emb)

	id, err := svc.RegisterCandidate(context.Background(), Registration{
		Name:  "Unknown",
		Image: embedder.Image{URL: "https://img.example/u.jpg"},
	})
	require.NoError(t, err)
	assert.Len(t, id, 36)

	c, err := svc.GetCandidate(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, match.Embedding{0.3, 0.3, 0.3}, c.Embedding)
	assert.Equal(t, "https://img.example/u.jpg", emb.last.URL)
}

func TestRegisterCandidate_Invalid(t *testing.T) {
	svc, _, _ := newService(t, &fakeEmbedder{vec: match.Embedding{1}})

	_, err := svc.RegisterCandidate(context.Background(), Registration{Embedding: match.Embedding{1}})
	assert.ErrorIs(t, err, store.ErrInvalidCandidate)

	_, err = svc.RegisterCandidate(context.Background(), Registration{Name: "No photo"})
	assert.ErrorIs(t, err, embedder.ErrNoImage)
}

func TestRemoveCandidate(t *testing.T) {
	svc, g, _ := newService(t, nil)
	seed(t, g)

	require.NoError(t, svc.RemoveCandidate(context.Background(), "B"))
	assert.Equal(t, 2, svc.CountCandidates())

	assert.ErrorIs(t, svc.RemoveCandidate(context.Background(), "B"), store.ErrCandidateNotFound)
	_, err := svc.GetCandidate(context.Background(), "B")
	assert.ErrorIs(t, err, store.ErrCandidateNotFound)
}
