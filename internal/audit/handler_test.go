package audit

import (
	"encoding/json"
	"io"
	"net/http/httptest"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gofiber/fiber/v2"
)

func TestHandler_ListFiltersAndDecodes(t *testing.T) {
	s, mock := newMock(t)
	app := fiber.New()
	RegisterRoutes(app, NewHandler(s))

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) AS count FROM _bulk_audit WHERE kind = ?1 AND error_code IS NOT NULL")).
		WithArgs("events").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(int64(1)))
	mock.ExpectQuery(regexp.QuoteMeta("FROM _bulk_audit WHERE kind = ?1 AND error_code IS NOT NULL ORDER BY created_at DESC LIMIT ?2 OFFSET ?3")).
		WithArgs("events", 50, 0).
		WillReturnRows(sqlmock.NewRows([]string{"id", "kind", "value", "record_ids", "error_code"}).
			AddRow("a-1", "events", `"OPEN"`, `["e-1"]`, "PARTIAL_BULK_UPDATE_FAILURE"))

	resp, err := app.Test(httptest.NewRequest("GET", "/api/bulk/audit?kind=events&status=failed", nil))
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	raw, _ := io.ReadAll(resp.Body)
	var body struct {
		Data       []map[string]any `json:"data"`
		Pagination map[string]any   `json:"pagination"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		t.Fatal(err)
	}
	if len(body.Data) != 1 || body.Data[0]["value"] != "OPEN" {
		t.Fatalf("unexpected data %v", body.Data)
	}
	ids, ok := body.Data[0]["record_ids"].([]any)
	if !ok || len(ids) != 1 || ids[0] != "e-1" {
		t.Fatalf("expected decoded record ids, got %v", body.Data[0]["record_ids"])
	}
	if body.Pagination["total"].(float64) != 1 {
		t.Fatalf("unexpected pagination %v", body.Pagination)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestHandler_Stats(t *testing.T) {
	s, mock := newMock(t)
	app := fiber.New()
	RegisterRoutes(app, NewHandler(s))

	mock.ExpectQuery("SELECT kind").
		WillReturnRows(sqlmock.NewRows([]string{"kind", "executes", "failed", "updated"}).
			AddRow("competitions", int64(3), int64(1), int64(7)))

	resp, err := app.Test(httptest.NewRequest("GET", "/api/bulk/audit/stats", nil))
	if err != nil {
		t.Fatal(err)
	}
	raw, _ := io.ReadAll(resp.Body)
	var body struct {
		Data []map[string]any `json:"data"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		t.Fatal(err)
	}
	if len(body.Data) != 1 || body.Data[0]["updated"].(float64) != 7 || body.Data[0]["failed"].(float64) != 1 {
		t.Fatalf("unexpected stats %v", body.Data)
	}
}
