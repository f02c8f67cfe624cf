package metadata

import "fmt"

// FieldType is the closed set of value shapes the bulk engine understands.
type FieldType string

const (
	FieldString   FieldType = "string"
	FieldNumber   FieldType = "number"
	FieldBoolean  FieldType = "boolean"
	FieldEnum     FieldType = "enum"
	FieldRelation FieldType = "relation"
	FieldDate     FieldType = "date"

	// FieldID marks the primary key. It is added to every kind by the
	// catalog loader and is never editable.
	FieldID FieldType = "id"
)

// IDField is the name of the primary key column on every kind.
const IDField = "id"

func (t FieldType) Valid() bool {
	switch t {
	case FieldString, FieldNumber, FieldBoolean, FieldEnum, FieldRelation, FieldDate, FieldID:
		return true
	}
	return false
}

type EnumValue struct {
	Value string `json:"value" toml:"value"`
	Label string `json:"label" toml:"label"`
}

type Field struct {
	Name       string      `json:"name" toml:"name"`
	Label      string      `json:"label" toml:"label"`
	Type       FieldType   `json:"type" toml:"type"`
	Filterable bool        `json:"filterable" toml:"filterable"`
	Editable   bool        `json:"editable" toml:"editable"`
	Nullable   bool        `json:"nullable,omitempty" toml:"nullable"`
	EnumValues []EnumValue `json:"enumValues,omitempty" toml:"enum_values"`
	Relation   EntityKind  `json:"relationEntity,omitempty" toml:"relation"`
	Auto       string      `json:"auto,omitempty" toml:"auto"` // "update" stamps the column on every bulk write
}

// HasEnumValue reports whether v is one of the declared enum values.
func (f *Field) HasEnumValue(v string) bool {
	for _, ev := range f.EnumValues {
		if ev.Value == v {
			return true
		}
	}
	return false
}

// EnumLabel returns the display label for an enum value, or the value
// itself when no label is declared.
func (f *Field) EnumLabel(v string) string {
	for _, ev := range f.EnumValues {
		if ev.Value == v {
			if ev.Label != "" {
				return ev.Label
			}
			return ev.Value
		}
	}
	return v
}

// EnumValueNames returns the raw enum values in declaration order.
func (f *Field) EnumValueNames() []string {
	names := make([]string, len(f.EnumValues))
	for i, ev := range f.EnumValues {
		names[i] = ev.Value
	}
	return names
}

// IsAuto returns true if the field is stamped by the engine.
func (f *Field) IsAuto() bool {
	return f.Auto == "update"
}

// checkDomain verifies that an editable field declares enough to validate
// incoming values. known reports whether a relation target is registered.
func (f *Field) checkDomain(known func(EntityKind) bool) error {
	if !f.Type.Valid() {
		return fmt.Errorf("field %s: unknown type %q", f.Name, f.Type)
	}
	switch f.Type {
	case FieldEnum:
		if len(f.EnumValues) == 0 {
			return fmt.Errorf("field %s: enum field declares no enum_values", f.Name)
		}
		seen := make(map[string]bool, len(f.EnumValues))
		for _, ev := range f.EnumValues {
			if seen[ev.Value] {
				return fmt.Errorf("field %s: duplicate enum value %q", f.Name, ev.Value)
			}
			seen[ev.Value] = true
		}
	case FieldRelation:
		if f.Relation == "" {
			return fmt.Errorf("field %s: relation field declares no relation entity", f.Name)
		}
		if !known(f.Relation) {
			return fmt.Errorf("field %s: relation entity %q is not registered", f.Name, f.Relation)
		}
	case FieldID:
		if f.Editable {
			return fmt.Errorf("field %s: primary key cannot be editable", f.Name)
		}
	}
	if f.Editable && f.IsAuto() {
		return fmt.Errorf("field %s: auto-managed field cannot be editable", f.Name)
	}
	return nil
}
