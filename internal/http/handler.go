package http

import (
	"encoding/base64"
	"errors"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/rupamthxt/facematch/internal/cluster"
	"github.com/rupamthxt/facematch/internal/embedder"
	"github.com/rupamthxt/facematch/internal/match"
	"github.com/rupamthxt/facematch/internal/service"
	"github.com/rupamthxt/facematch/internal/store"
)

// Admin covers maintenance operations that differ between a standalone
// gallery and a raft node.
type Admin interface {
	Snapshot() error
	Join(nodeID, addr string) error
}

type Handler struct {
	svc    *service.Service
	admin  Admin
	logger *zap.Logger
}

func NewHandler(svc *service.Service, admin Admin, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{svc: svc, admin: admin, logger: logger}
}

func (h *Handler) Match(c *fiber.Ctx) error {
	var req MatchRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "cannot parse json"})
	}

	results, err := h.svc.MatchEmbedding(c.UserContext(), req.Embedding)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(MatchResponse{Matches: results})
}

func (h *Handler) MatchImage(c *fiber.Ctx) error {
	var req ImageMatchRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "cannot parse json"})
	}

	img, err := decodeImage(req.Image, req.ImageURL)
	if err != nil {
		return h.fail(c, err)
	}

	results, err := h.svc.MatchImage(c.UserContext(), img)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(MatchResponse{Matches: results})
}

func (h *Handler) Register(c *fiber.Ctx) error {
	var req RegisterRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "cannot parse json"})
	}

	reg := service.Registration{
		ID:        req.ID,
		Name:      req.Name,
		ImageRef:  req.ImageRef,
		Embedding: req.Embedding,
	}
	if len(req.Embedding) == 0 {
		img, err := decodeImage(req.Image, req.ImageURL)
		if err != nil {
			return h.fail(c, err)
		}
		reg.Image = img
	}

	id, err := h.svc.RegisterCandidate(c.UserContext(), reg)
	if err != nil {
		return h.fail(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(RegisterResponse{ID: id})
}

func (h *Handler) GetCandidate(c *fiber.Ctx) error {
	cand, err := h.svc.GetCandidate(c.UserContext(), c.Params("id"))
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(CandidateResponse{
		ID:        cand.ID,
		Name:      cand.Name,
		ImageRef:  cand.ImageRef,
		Dimension: len(cand.Embedding),
	})
}

func (h *Handler) DeleteCandidate(c *fiber.Ctx) error {
	if err := h.svc.RemoveCandidate(c.UserContext(), c.Params("id")); err != nil {
		return h.fail(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *Handler) Health(c *fiber.Ctx) error {
	return c.JSON(HealthResponse{Status: "ok", Candidates: h.svc.CountCandidates()})
}

func (h *Handler) Snapshot(c *fiber.Ctx) error {
	if err := h.admin.Snapshot(); err != nil {
		return h.fail(c, err)
	}
	return c.JSON(fiber.Map{"status": "snapshot_saved"})
}

func (h *Handler) Join(c *fiber.Ctx) error {
	var req JoinRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "cannot parse json"})
	}
	if req.NodeID == "" || req.Addr == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "nodeId and addr are required"})
	}

	if err := h.admin.Join(req.NodeID, req.Addr); err != nil {
		return h.fail(c, err)
	}
	return c.JSON(fiber.Map{"status": "joined"})
}

func decodeImage(b64, url string) (embedder.Image, error) {
	if b64 != "" {
		data, err := base64.StdEncoding.DecodeString(b64)
		if err != nil {
			return embedder.Image{}, errBadImage
		}
		return embedder.Image{Data: data}, nil
	}
	if url != "" {
		return embedder.Image{URL: url}, nil
	}
	return embedder.Image{}, embedder.ErrNoImage
}

var (
	errBadImage     = errors.New("image must be base64 encoded")
	ErrNotSupported = errors.New("operation not supported in this mode")
)

// fail maps domain errors to HTTP responses.
func (h *Handler) fail(c *fiber.Ctx, err error) error {
	status := fiber.StatusInternalServerError
	msg := err.Error()

	switch {
	case errors.Is(err, match.ErrNoQueryEmbedding):
		status = fiber.StatusBadRequest
		msg = "could not analyze photo: " + err.Error()
	case errors.Is(err, errBadImage), errors.Is(err, embedder.ErrNoImage),
		errors.Is(err, store.ErrInvalidCandidate):
		status = fiber.StatusBadRequest
	case errors.Is(err, store.ErrCandidateNotFound):
		status = fiber.StatusNotFound
	case errors.Is(err, embedder.ErrEmbeddingFailed):
		status = fiber.StatusBadGateway
		msg = "could not analyze photo, please retry"
	case errors.Is(err, embedder.ErrEmbedderUnavailable), errors.Is(err, cluster.ErrNotLeader):
		status = fiber.StatusServiceUnavailable
	case errors.Is(err, ErrNotSupported):
		status = fiber.StatusNotImplemented
	}

	if status >= fiber.StatusInternalServerError {
		h.logger.Error("request failed", zap.String("path", c.Path()), zap.Error(err))
	}
	return c.Status(status).JSON(fiber.Map{"error": msg})
}

// StandaloneAdmin serves admin requests for a gallery without raft.
type StandaloneAdmin struct {
	Gallery *store.Gallery
}

func (a StandaloneAdmin) Snapshot() error { return a.Gallery.Compact() }

func (a StandaloneAdmin) Join(string, string) error { return ErrNotSupported }
