package match

import (
	"fmt"
	"sort"
)

type Option func(*Ranker)

// WithThreshold sets the minimum similarity a candidate must strictly exceed.
// Values outside [0,1) are ignored.
func WithThreshold(t float64) Option {
	return func(r *Ranker) {
		if t >= 0 && t < 1 {
			r.threshold = t
		}
	}
}

// WithTopN bounds the number of results. Values below 1 are ignored.
func WithTopN(n int) Option {
	return func(r *Ranker) {
		if n > 0 {
			r.topN = n
		}
	}
}

// Ranker scores a query embedding against a gallery of candidates.
// It holds no mutable state and is safe for concurrent use.
type Ranker struct {
	threshold float64
	topN      int
}

func NewRanker(opts ...Option) *Ranker {
	r := &Ranker{
		threshold: DefaultThreshold,
		topN:      DefaultTopN,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Ranker) Threshold() float64 { return r.threshold }
func (r *Ranker) TopN() int          { return r.topN }

var defaultRanker = NewRanker()

// Rank ranks candidates with the default threshold and result bound.
func Rank(query Embedding, candidates []Candidate) ([]Result, error) {
	return defaultRanker.Rank(query, candidates)
}

func (r *Ranker) Rank(query Embedding, candidates []Candidate) ([]Result, error) {
	results, _, err := r.RankWithStats(query, candidates)
	return results, err
}

// RankWithStats is Rank plus counters about the pass. Candidates whose
// embedding length differs from the query are counted as mismatched and
// never match. Zero vectors, on either side, never match.
func (r *Ranker) RankWithStats(query Embedding, candidates []Candidate) ([]Result, Stats, error) {
	stats := Stats{Scanned: len(candidates)}
	if len(query) == 0 {
		return nil, stats, fmt.Errorf("rank: %w", ErrNoQueryEmbedding)
	}

	heap := make(minHeap, 0, r.topN)
	if isZero(query) {
		return finalize(heap, candidates), stats, nil
	}

	for i, c := range candidates {
		if len(c.Embedding) != len(query) {
			stats.Mismatched++
			continue
		}
		if isZero(c.Embedding) {
			continue
		}

		score := CosineSimilarity(query, c.Embedding)
		if !(score > r.threshold) {
			continue
		}
		stats.Matched++

		m := scored{Index: i, Score: score}
		if len(heap) < r.topN {
			heap.Push(m)
		} else if better(m, heap[0]) {
			heap.Replace(m)
		}
	}

	return finalize(heap, candidates), stats, nil
}

func finalize(heap minHeap, candidates []Candidate) []Result {
	sort.Slice(heap, func(i, j int) bool {
		return better(heap[i], heap[j])
	})

	results := make([]Result, 0, len(heap))
	for _, m := range heap {
		c := candidates[m.Index]
		results = append(results, Result{
			ID:         c.ID,
			Name:       c.Name,
			ImageRef:   c.ImageRef,
			Confidence: Confidence(m.Score),
		})
	}
	return results
}
