package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Throughput
	MatchRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "facematch_match_requests_total",
		Help: "Total number of match requests by query source and outcome",
	}, []string{"source", "outcome"})

	CandidateRegistrations = promauto.NewCounter(prometheus.CounterOpts{
		Name: "facematch_candidate_registrations_total",
		Help: "Total number of candidates registered or replaced",
	})

	EmbeddingFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "facematch_embedding_failures_total",
		Help: "Calls to the embedding service that failed or returned no vector",
	})

	MismatchedCandidates = promauto.NewCounter(prometheus.CounterOpts{
		Name: "facematch_mismatched_candidates_total",
		Help: "Candidates skipped because their embedding length differed from the query",
	})

	// Latency
	MatchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "facematch_match_duration_seconds",
		Help:    "Time taken to rank a query against the gallery",
		Buckets: prometheus.DefBuckets,
	})

	EmbeddingDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "facematch_embedding_duration_seconds",
		Help:    "Time taken by the upstream embedding service",
		Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30},
	})

	MatchResults = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "facematch_match_results",
		Help:    "Number of matches returned per request",
		Buckets: []float64{0, 1, 2, 3, 5, 10},
	})

	// State
	GalleryCandidates = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "facematch_gallery_candidates",
		Help: "Current number of candidates in the gallery",
	})

	RaftState = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "facematch_raft_state",
		Help: "Current Raft state (0=Follower, 1=Candidate, 2=Leader, 3=Shutdown)",
	})
)
