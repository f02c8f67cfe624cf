package audit

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"

	"trailrun-backend/internal/store"
)

// Handler exposes the audit trail of bulk executes.
type Handler struct {
	store *store.Store
}

func NewHandler(s *store.Store) *Handler {
	return &Handler{store: s}
}

func RegisterRoutes(app *fiber.App, h *Handler, middleware ...fiber.Handler) {
	g := app.Group("/api/bulk/audit", middleware...)
	g.Get("/", h.List)
	g.Get("/stats", h.Stats)
}

// List handles GET /api/bulk/audit, newest first, filtered by kind,
// operator_id, session_id and status (applied|failed).
func (h *Handler) List(c *fiber.Ctx) error {
	ctx := c.UserContext()
	pb := h.store.Dialect.NewParamBuilder()

	var conditions []string
	for _, col := range []string{"kind", "operator_id", "session_id"} {
		if v := c.Query(col); v != "" {
			conditions = append(conditions, fmt.Sprintf("%s = %s", col, pb.Add(v)))
		}
	}
	switch c.Query("status") {
	case "applied":
		conditions = append(conditions, "error_code IS NULL")
	case "failed":
		conditions = append(conditions, "error_code IS NOT NULL")
	}

	// Pagination
	page, _ := strconv.Atoi(c.Query("page", "1"))
	if page < 1 {
		page = 1
	}
	perPage, _ := strconv.Atoi(c.Query("per_page", "50"))
	if perPage < 1 {
		perPage = 50
	}
	if perPage > 100 {
		perPage = 100
	}
	offset := (page - 1) * perPage

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = " WHERE " + strings.Join(conditions, " AND ")
	}

	countRow, err := store.QueryRow(ctx, h.store.DB, "SELECT COUNT(*) AS count FROM _bulk_audit"+whereClause, pb.Params()...)
	if err != nil {
		return fmt.Errorf("count audits: %w", err)
	}
	total := toInt(countRow["count"])

	dataSQL := fmt.Sprintf(
		"SELECT %s FROM _bulk_audit%s ORDER BY created_at DESC LIMIT %s OFFSET %s",
		strings.Join(columns, ", "), whereClause, pb.Add(perPage), pb.Add(offset),
	)
	rows, err := store.QueryRows(ctx, h.store.DB, dataSQL, pb.Params()...)
	if err != nil {
		return fmt.Errorf("list audits: %w", err)
	}
	for _, row := range rows {
		decodeJSON(row, "value")
		decodeJSON(row, "record_ids")
	}
	if rows == nil {
		rows = []map[string]any{}
	}

	return c.JSON(fiber.Map{
		"data": rows,
		"pagination": fiber.Map{
			"page":     page,
			"per_page": perPage,
			"total":    total,
		},
	})
}

// Stats handles GET /api/bulk/audit/stats: execute counts per kind.
func (h *Handler) Stats(c *fiber.Ctx) error {
	rows, err := store.QueryRows(c.UserContext(), h.store.DB, `SELECT kind,
    COUNT(*) AS executes,
    SUM(CASE WHEN error_code IS NULL THEN 0 ELSE 1 END) AS failed,
    SUM(updated_count) AS updated
FROM _bulk_audit GROUP BY kind ORDER BY kind`)
	if err != nil {
		return fmt.Errorf("audit stats: %w", err)
	}

	stats := make([]fiber.Map, 0, len(rows))
	for _, row := range rows {
		stats = append(stats, fiber.Map{
			"kind":     row["kind"],
			"executes": toInt(row["executes"]),
			"failed":   toInt(row["failed"]),
			"updated":  toInt(row["updated"]),
		})
	}
	return c.JSON(fiber.Map{"data": stats})
}

// decodeJSON turns a JSON text column back into a value. JSONB already
// arrives decoded as bytes or string depending on the driver.
func decodeJSON(row map[string]any, col string) {
	s, ok := row[col].(string)
	if !ok {
		return
	}
	var v any
	if err := json.Unmarshal([]byte(s), &v); err == nil {
		row[col] = v
	}
}

func toInt(v any) int {
	switch n := v.(type) {
	case int64:
		return int(n)
	case int32:
		return int(n)
	case int:
		return n
	case float64:
		return int(n)
	case string:
		i, _ := strconv.Atoi(n)
		return i
	}
	return 0
}
