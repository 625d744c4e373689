// Package service implements the match and gallery operations exposed over
// HTTP and the CLI.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/rupamthxt/facematch/internal/embedder"
	"github.com/rupamthxt/facematch/internal/match"
	"github.com/rupamthxt/facematch/internal/metrics"
	"github.com/rupamthxt/facematch/internal/store"
)

// Registration describes a candidate to add to the gallery. When Embedding
// is empty it is generated from Image.
type Registration struct {
	ID        string
	Name      string
	ImageRef  string
	Embedding match.Embedding
	Image     embedder.Image
}

type Service struct {
	store    store.Store
	ranker   *match.Ranker
	embedder embedder.Embedder
	logger   *zap.Logger
}

// New wires a service. emb may be nil, in which case image based operations
// return embedder.ErrEmbedderUnavailable.
func New(st store.Store, ranker *match.Ranker, emb embedder.Embedder, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics.GalleryCandidates.Set(float64(st.Len()))
	return &Service{
		store:    st,
		ranker:   ranker,
		embedder: emb,
		logger:   logger,
	}
}

// MatchEmbedding ranks the current gallery against query.
func (s *Service) MatchEmbedding(ctx context.Context, query match.Embedding) ([]match.Result, error) {
	return s.rank(ctx, "embedding", query)
}

// MatchImage generates an embedding for img and ranks the gallery against
// it. If the embedding cannot be produced the whole operation fails.
func (s *Service) MatchImage(ctx context.Context, img embedder.Image) ([]match.Result, error) {
	query, err := s.embed(ctx, img)
	if err != nil {
		metrics.MatchRequests.WithLabelValues("image", "embed_error").Inc()
		return nil, err
	}
	return s.rank(ctx, "image", query)
}

func (s *Service) rank(ctx context.Context, source string, query match.Embedding) ([]match.Result, error) {
	start := time.Now()
	candidates := s.store.List()

	results, stats, err := s.ranker.RankWithStats(query, candidates)
	metrics.MatchDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.MatchRequests.WithLabelValues(source, "invalid").Inc()
		return nil, err
	}

	metrics.MatchRequests.WithLabelValues(source, "ok").Inc()
	metrics.MatchResults.Observe(float64(len(results)))
	if stats.Mismatched > 0 {
		metrics.MismatchedCandidates.Add(float64(stats.Mismatched))
		s.logger.Warn("skipped candidates with mismatched embedding length",
			zap.Int("mismatched", stats.Mismatched),
			zap.Int("query_dim", len(query)))
	}

	s.logger.Debug("ranked gallery",
		zap.String("source", source),
		zap.Int("scanned", stats.Scanned),
		zap.Int("above_threshold", stats.Matched),
		zap.Int("returned", len(results)),
		zap.Duration("took", time.Since(start)))
	return results, nil
}

// RegisterCandidate stores a candidate and returns its ID, generating one
// when none is given.
func (s *Service) RegisterCandidate(ctx context.Context, reg Registration) (string, error) {
	if reg.Name == "" {
		return "", fmt.Errorf("%w: name is required", store.ErrInvalidCandidate)
	}

	vec := reg.Embedding
	if len(vec) == 0 {
		var err error
		if vec, err = s.embed(ctx, reg.Image); err != nil {
			return "", err
		}
	}

	id := reg.ID
	if id == "" {
		id = uuid.NewString()
	}

	c := match.Candidate{ID: id, Name: reg.Name, ImageRef: reg.ImageRef, Embedding: vec}
	if err := s.store.Put(c); err != nil {
		return "", err
	}

	metrics.CandidateRegistrations.Inc()
	metrics.GalleryCandidates.Set(float64(s.store.Len()))
	s.logger.Info("candidate registered", zap.String("id", id), zap.Int("dim", len(vec)))
	return id, nil
}

func (s *Service) RemoveCandidate(ctx context.Context, id string) error {
	if err := s.store.Delete(id); err != nil {
		return err
	}
	metrics.GalleryCandidates.Set(float64(s.store.Len()))
	s.logger.Info("candidate removed", zap.String("id", id))
	return nil
}

func (s *Service) GetCandidate(ctx context.Context, id string) (match.Candidate, error) {
	c, ok := s.store.Get(id)
	if !ok {
		return match.Candidate{}, store.ErrCandidateNotFound
	}
	return c, nil
}

func (s *Service) CountCandidates() int {
	return s.store.Len()
}

func (s *Service) embed(ctx context.Context, img embedder.Image) (match.Embedding, error) {
	if s.embedder == nil {
		return nil, embedder.ErrEmbedderUnavailable
	}
	if len(img.Data) == 0 && img.URL == "" {
		return nil, embedder.ErrNoImage
	}

	start := time.Now()
	vec, err := s.embedder.Embed(ctx, img)
	metrics.EmbeddingDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.EmbeddingFailures.Inc()
		s.logger.Error("embedding generation failed", zap.Error(err))
		if !errors.Is(err, embedder.ErrEmbeddingFailed) {
			err = fmt.Errorf("%w: %v", embedder.ErrEmbeddingFailed, err)
		}
		return nil, err
	}
	return vec, nil
}
