package match

import "errors"

// ErrNoQueryEmbedding is returned when Rank is called without a usable query vector.
var ErrNoQueryEmbedding = errors.New("no query embedding supplied")

const (
	DefaultThreshold = 0.7
	DefaultTopN      = 3
)

// Embedding is a fixed-length face embedding produced by the upstream model.
type Embedding []float32

type Candidate struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	ImageRef  string    `json:"imageRef"`
	Embedding Embedding `json:"embedding"`
}

// Result is a ranked match. Confidence is the cosine similarity scaled to [0,100].
type Result struct {
	ID         string  `json:"id"`
	Name       string  `json:"name"`
	ImageRef   string  `json:"imageRef"`
	Confidence float64 `json:"confidence"`
}

// Stats describes a single ranking pass.
type Stats struct {
	Scanned    int
	Mismatched int
	Matched    int
}
