package metadata

import (
	"errors"
	"testing"
)

func testRegistry(t *testing.T) *Registry {
	t.Helper()
	entities, err := LoadCatalog("")
	if err != nil {
		t.Fatalf("load catalog: %v", err)
	}
	reg := NewRegistry()
	reg.Load(entities)
	return reg
}

func TestRegistry_DescribeUnknownKind(t *testing.T) {
	reg := testRegistry(t)
	if _, err := reg.Describe("marathons"); !errors.Is(err, ErrUnknownEntityKind) {
		t.Fatalf("expected ErrUnknownEntityKind, got %v", err)
	}
}

func TestRegistry_DescribeIsStable(t *testing.T) {
	reg := testRegistry(t)

	first, err := reg.Describe("competitions")
	if err != nil {
		t.Fatalf("describe: %v", err)
	}
	// Mutating the returned copy must not leak into later calls.
	first[1].Editable = !first[1].Editable

	second, err := reg.Describe("competitions")
	if err != nil {
		t.Fatalf("describe: %v", err)
	}
	if first[1].Editable == second[1].Editable {
		t.Fatal("Describe returned shared field storage")
	}
	if len(first) != len(second) {
		t.Fatalf("field count changed: %d vs %d", len(first), len(second))
	}
}

func TestRegistry_EditableFieldsDeclareDomain(t *testing.T) {
	reg := testRegistry(t)
	for _, e := range reg.AllEntities() {
		for _, f := range e.EditableFields() {
			switch f.Type {
			case FieldEnum:
				if len(f.EnumValues) == 0 {
					t.Errorf("%s.%s: editable enum without values", e.Kind, f.Name)
				}
			case FieldRelation:
				if !reg.Has(f.Relation) {
					t.Errorf("%s.%s: relation to unregistered kind %s", e.Kind, f.Name, f.Relation)
				}
			case FieldID:
				t.Errorf("%s.%s: primary key marked editable", e.Kind, f.Name)
			}
		}
	}
}

func TestRegistry_AllEntitiesSorted(t *testing.T) {
	reg := testRegistry(t)
	all := reg.AllEntities()
	for i := 1; i < len(all); i++ {
		if all[i-1].Kind > all[i].Kind {
			t.Fatalf("entities not sorted: %s before %s", all[i-1].Kind, all[i].Kind)
		}
	}
}

func TestField_EnumLabel(t *testing.T) {
	f := Field{Name: "status", Type: FieldEnum, EnumValues: []EnumValue{{Value: "DRAFT", Label: "Draft"}, {Value: "RAW"}}}
	if got := f.EnumLabel("DRAFT"); got != "Draft" {
		t.Fatalf("EnumLabel(DRAFT) = %q", got)
	}
	if got := f.EnumLabel("RAW"); got != "RAW" {
		t.Fatalf("EnumLabel(RAW) = %q", got)
	}
	if f.HasEnumValue("PUBLISHED") {
		t.Fatal("PUBLISHED is not declared")
	}
}
