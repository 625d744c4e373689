package http

import "github.com/rupamthxt/facematch/internal/match"

type MatchRequest struct {
	Embedding []float32 `json:"embedding"`
}

// ImageMatchRequest carries a base64 photo or a URL the embedding service
// can fetch. Image wins when both are set.
type ImageMatchRequest struct {
	Image    string `json:"image"`
	ImageURL string `json:"imageUrl"`
}

type MatchResponse struct {
	Matches []match.Result `json:"matches"`
}

type RegisterRequest struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	ImageRef  string    `json:"imageRef"`
	Embedding []float32 `json:"embedding"`
	Image     string    `json:"image"`
	ImageURL  string    `json:"imageUrl"`
}

type RegisterResponse struct {
	ID string `json:"id"`
}

type CandidateResponse struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	ImageRef  string `json:"imageRef"`
	Dimension int    `json:"dimension"`
}

type JoinRequest struct {
	NodeID string `json:"nodeId"`
	Addr   string `json:"addr"`
}

type HealthResponse struct {
	Status     string `json:"status"`
	Candidates int    `json:"candidates"`
}
