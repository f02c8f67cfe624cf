package metadata

import (
	"strings"
	"testing"
)

func TestLoadCatalog_Embedded(t *testing.T) {
	entities, err := LoadCatalog("")
	if err != nil {
		t.Fatalf("embedded catalog: %v", err)
	}

	want := map[EntityKind]bool{
		"competitions": true, "events": true, "editions": true,
		"services": true, "organizers": true, "event_categories": true,
	}
	for _, e := range entities {
		delete(want, e.Kind)
		id := e.GetField(IDField)
		if id == nil || id.Type != FieldID || id.Editable {
			t.Fatalf("kind %s: expected implicit non-editable id field, got %+v", e.Kind, id)
		}
		if e.Fields[0].Name != IDField {
			t.Fatalf("kind %s: id must be the first field", e.Kind)
		}
	}
	if len(want) != 0 {
		t.Fatalf("missing kinds: %v", want)
	}
}

func TestParseCatalog_ReportsAllDomainViolations(t *testing.T) {
	src := `
[[kinds]]
kind = "competitions"

  [[kinds.fields]]
  name = "status"
  type = "enum"
  editable = true

  [[kinds.fields]]
  name = "organizer_id"
  type = "relation"
  relation = "organizers"
  editable = true

  [[kinds.fields]]
  name = "updated_at"
  type = "date"
  editable = true
  auto = "update"
`
	_, err := ParseCatalog(src)
	if err == nil {
		t.Fatal("expected validation error")
	}
	msg := err.Error()
	for _, part := range []string{"enum field declares no enum_values", `relation entity "organizers" is not registered`, "auto-managed field cannot be editable"} {
		if !strings.Contains(msg, part) {
			t.Errorf("expected %q in error, got: %s", part, msg)
		}
	}
}

func TestParseCatalog_RejectsReservedIDAndBadNames(t *testing.T) {
	src := `
[[kinds]]
kind = "services"

  [[kinds.fields]]
  name = "id"
  type = "string"

  [[kinds.fields]]
  name = "Bad Name"
  type = "string"
`
	_, err := ParseCatalog(src)
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "reserved for the primary key") {
		t.Errorf("expected reserved id error, got %v", err)
	}
	if !strings.Contains(err.Error(), `invalid field name "Bad Name"`) {
		t.Errorf("expected invalid name error, got %v", err)
	}
}

func TestParseCatalog_DefaultsTableAndLabel(t *testing.T) {
	src := `
[[kinds]]
kind = "organizers"

  [[kinds.fields]]
  name = "name"
  type = "string"
  editable = true
`
	entities, err := ParseCatalog(src)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	e := entities[0]
	if e.Table != "organizers" {
		t.Fatalf("expected table to default to kind, got %q", e.Table)
	}
	if f := e.GetField("name"); f.Label != "name" {
		t.Fatalf("expected label to default to name, got %q", f.Label)
	}
}

func TestEntity_DisplayName(t *testing.T) {
	entities, err := ParseCatalog(`
[[kinds]]
kind = "editions"
display = "string(year) + \" edition\""

  [[kinds.fields]]
  name = "year"
  type = "number"
`)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	e := entities[0]

	if got := e.DisplayName(map[string]any{"id": "ed-1", "year": float64(2025)}); got != "2025 edition" {
		t.Fatalf("DisplayName = %q", got)
	}

	plain := &Entity{Kind: "x"}
	if got := plain.DisplayName(map[string]any{"id": "x-1"}); got != "x-1" {
		t.Fatalf("expected id fallback, got %q", got)
	}
}

func TestParseCatalog_BadDisplayExpression(t *testing.T) {
	_, err := ParseCatalog(`
[[kinds]]
kind = "organizers"
display = "name +"
`)
	if err == nil || !strings.Contains(err.Error(), "compile display expression") {
		t.Fatalf("expected display compile error, got %v", err)
	}
}

func TestParseCatalog_OrderBy(t *testing.T) {
	src := `
[[kinds]]
kind = "organizers"
order_by = "id"

  [[kinds.fields]]
  name = "name"
  type = "string"
`
	entities, err := ParseCatalog(src)
	if err != nil {
		t.Fatalf("order_by id: %v", err)
	}
	if !entities[0].HasField("id") {
		t.Fatal("expected implicit id field")
	}

	_, err = ParseCatalog(strings.Replace(src, `order_by = "id"`, `order_by = "country"`, 1))
	if err == nil || !strings.Contains(err.Error(), "order_by field country does not exist") {
		t.Fatalf("expected unknown order_by error, got %v", err)
	}
}
