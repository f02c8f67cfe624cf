package metadata

import (
	_ "embed"
	"fmt"
	"os"
	"regexp"

	"github.com/BurntSushi/toml"
	"github.com/hashicorp/go-multierror"
)

//go:embed catalog.toml
var defaultCatalog string

type catalogFile struct {
	Kinds []*Entity `toml:"kinds"`
}

var identPattern = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// LoadCatalog parses the field catalog from path, or the embedded catalog
// when path is empty, and validates it.
func LoadCatalog(path string) ([]*Entity, error) {
	src := defaultCatalog
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read catalog: %w", err)
		}
		src = string(data)
	}
	return ParseCatalog(src)
}

// ParseCatalog decodes a TOML catalog document. Every kind gets an implicit
// primary key field; all validation failures are reported together.
func ParseCatalog(src string) ([]*Entity, error) {
	var file catalogFile
	if _, err := toml.Decode(src, &file); err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}

	kinds := make(map[EntityKind]bool, len(file.Kinds))
	for _, e := range file.Kinds {
		kinds[e.Kind] = true
	}
	known := func(k EntityKind) bool { return kinds[k] }

	var result *multierror.Error
	seenKinds := make(map[EntityKind]bool, len(file.Kinds))
	for _, e := range file.Kinds {
		if seenKinds[e.Kind] {
			result = multierror.Append(result, fmt.Errorf("kind %s: declared twice", e.Kind))
			continue
		}
		seenKinds[e.Kind] = true

		if err := validateEntity(e, known); err != nil {
			result = multierror.Append(result, err)
			continue
		}
		if !e.HasField(IDField) {
			e.Fields = append([]Field{{Name: IDField, Label: "ID", Type: FieldID, Filterable: true}}, e.Fields...)
		}
		if err := e.compileDisplay(); err != nil {
			result = multierror.Append(result, err)
		}
	}
	if err := result.ErrorOrNil(); err != nil {
		return nil, err
	}
	return file.Kinds, nil
}

func validateEntity(e *Entity, known func(EntityKind) bool) error {
	var result *multierror.Error
	if e.Kind == "" {
		return fmt.Errorf("catalog entry without kind")
	}
	if e.Table == "" {
		e.Table = string(e.Kind)
	}
	if !identPattern.MatchString(e.Table) {
		result = multierror.Append(result, fmt.Errorf("kind %s: invalid table name %q", e.Kind, e.Table))
	}

	seen := make(map[string]bool, len(e.Fields))
	for i := range e.Fields {
		f := &e.Fields[i]
		if !identPattern.MatchString(f.Name) {
			result = multierror.Append(result, fmt.Errorf("kind %s: invalid field name %q", e.Kind, f.Name))
			continue
		}
		if seen[f.Name] {
			result = multierror.Append(result, fmt.Errorf("kind %s: duplicate field %s", e.Kind, f.Name))
			continue
		}
		seen[f.Name] = true
		if f.Name == IDField && f.Type != FieldID {
			result = multierror.Append(result, fmt.Errorf("kind %s: field id is reserved for the primary key", e.Kind))
			continue
		}
		if f.Label == "" {
			f.Label = f.Name
		}
		if err := f.checkDomain(known); err != nil {
			result = multierror.Append(result, fmt.Errorf("kind %s: %w", e.Kind, err))
		}
	}

	if e.OrderBy != "" && e.OrderBy != IDField && !e.HasField(e.OrderBy) {
		result = multierror.Append(result, fmt.Errorf("kind %s: order_by field %s does not exist", e.Kind, e.OrderBy))
	}
	return result.ErrorOrNil()
}
