package bulk

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"trailrun-backend/internal/metadata"
)

type Handler struct {
	engine *Engine
}

func NewHandler(engine *Engine) *Handler {
	return &Handler{engine: engine}
}

type queryRequest struct {
	Filters []FilterCondition `json:"filters"`
	Limit   int               `json:"limit"`
}

type operationRequest struct {
	IDFilter  []FilterCondition `json:"idFilter"`
	Operation *Operation        `json:"operation"`
}

// Metadata handles GET /api/bulk/metadata
func (h *Handler) Metadata(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"data": h.engine.Metadata()})
}

// RelationOptions handles GET /api/bulk/relations/:kind/options
func (h *Handler) RelationOptions(c *fiber.Ctx) error {
	kind := metadata.EntityKind(c.Params("kind"))
	opts, err := h.engine.RelationOptions(c.UserContext(), sessionID(c), kind)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": opts})
}

// Query handles POST /api/bulk/:kind/query
func (h *Handler) Query(c *fiber.Ctx) error {
	var req queryRequest
	if err := c.BodyParser(&req); err != nil {
		return InvalidPayloadError("Invalid JSON body")
	}

	kind := metadata.EntityKind(c.Params("kind"))
	rows, err := h.engine.Query(c.UserContext(), kind, req.Filters, req.Limit)
	if err != nil {
		return err
	}

	limit := req.Limit
	if limit <= 0 || limit > h.engine.QueryCap() {
		limit = h.engine.QueryCap()
	}
	return c.JSON(fiber.Map{
		"data": rows,
		"meta": fiber.Map{
			"count": len(rows),
			"limit": limit,
		},
	})
}

// Preview handles POST /api/bulk/:kind/preview
func (h *Handler) Preview(c *fiber.Ctx) error {
	req, err := parseOperationRequest(c)
	if err != nil {
		return err
	}

	kind := metadata.EntityKind(c.Params("kind"))
	result, err := h.engine.Preview(c.UserContext(), sessionID(c), kind, req.IDFilter, *req.Operation)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": result})
}

// Execute handles POST /api/bulk/:kind/execute. Execute-time failures carry
// the failed result alongside the error so callers can tell "nothing to do"
// from "the write failed".
func (h *Handler) Execute(c *fiber.Ctx) error {
	req, err := parseOperationRequest(c)
	if err != nil {
		return err
	}

	ctx := c.UserContext()
	if op, ok := c.Locals("operator").(*metadata.Operator); ok && op != nil {
		ctx = WithOperatorID(ctx, op.ID)
	}
	kind := metadata.EntityKind(c.Params("kind"))
	result, err := h.engine.Execute(ctx, sessionID(c), kind, req.IDFilter, *req.Operation)
	if err != nil {
		var appErr *AppError
		if errors.Is(err, ErrNoMatchingRecords) || errors.Is(err, ErrPartialBulkUpdate) {
			errors.As(err, &appErr)
			return c.Status(appErr.Status).JSON(fiber.Map{"error": appErr, "data": result})
		}
		return err
	}
	return c.JSON(fiber.Map{"data": result})
}

// EndSession handles DELETE /api/bulk/session
func (h *Handler) EndSession(c *fiber.Ctx) error {
	if err := h.engine.EndSession(c.UserContext(), sessionID(c)); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func parseOperationRequest(c *fiber.Ctx) (*operationRequest, error) {
	var req operationRequest
	if err := c.BodyParser(&req); err != nil {
		return nil, InvalidPayloadError("Invalid JSON body")
	}
	if req.Operation == nil {
		return nil, InvalidPayloadError("operation is required")
	}
	return &req, nil
}

func sessionID(c *fiber.Ctx) string {
	if op, ok := c.Locals("operator").(*metadata.Operator); ok && op != nil {
		return op.SessionID
	}
	return ""
}
