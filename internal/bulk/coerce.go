package bulk

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"trailrun-backend/internal/metadata"
)

const dateLayout = "2006-01-02"

// maxExactID is the largest integer a JSON number holds without rounding.
const maxExactID = 1 << 53

// coerce converts a decoded JSON value to the canonical Go type for f:
// string, float64, bool, time.Time, or a string id/enum value.
func coerce(f *metadata.Field, v any) (any, error) {
	if v == nil {
		return nil, fmt.Errorf("value is required")
	}
	switch f.Type {
	case metadata.FieldString:
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("expected a string, got %T", v)
		}
		return s, nil
	case metadata.FieldNumber:
		return toNumber(v)
	case metadata.FieldBoolean:
		return toBool(v)
	case metadata.FieldDate:
		return toDate(v)
	case metadata.FieldEnum:
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("expected one of %s, got %T", strings.Join(f.EnumValueNames(), ", "), v)
		}
		if !f.HasEnumValue(s) {
			return nil, fmt.Errorf("%q is not one of %s", s, strings.Join(f.EnumValueNames(), ", "))
		}
		return s, nil
	case metadata.FieldRelation, metadata.FieldID:
		return toID(v)
	default:
		return nil, fmt.Errorf("unsupported field type %q", f.Type)
	}
}

// coerceList coerces each element of a JSON array for the "in" operator.
func coerceList(f *metadata.Field, v any) ([]string, error) {
	var items []any
	switch vals := v.(type) {
	case []any:
		items = vals
	case []string:
		items = make([]any, len(vals))
		for i, s := range vals {
			items[i] = s
		}
	default:
		return nil, fmt.Errorf("expected a list of values, got %T", v)
	}

	out := make([]string, 0, len(items))
	for i, item := range items {
		c, err := coerce(f, item)
		if err != nil {
			return nil, fmt.Errorf("item %d: %w", i, err)
		}
		out = append(out, c.(string))
	}
	return out, nil
}

func toNumber(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, checkFinite(n)
	case float32:
		return float64(n), checkFinite(float64(n))
	case int:
		return float64(n), nil
	case int32:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return 0, fmt.Errorf("%q is not a number", n.String())
		}
		return f, nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, fmt.Errorf("%q is not a number", n)
		}
		return f, checkFinite(f)
	default:
		return 0, fmt.Errorf("expected a number, got %T", v)
	}
}

func checkFinite(f float64) error {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return fmt.Errorf("number must be finite")
	}
	return nil
}

func toBool(v any) (bool, error) {
	switch b := v.(type) {
	case bool:
		return b, nil
	case string:
		parsed, err := strconv.ParseBool(strings.TrimSpace(b))
		if err != nil {
			return false, fmt.Errorf("%q is not a boolean", b)
		}
		return parsed, nil
	default:
		return false, fmt.Errorf("expected a boolean, got %T", v)
	}
}

func toDate(v any) (time.Time, error) {
	switch d := v.(type) {
	case time.Time:
		return d.UTC(), nil
	case string:
		s := strings.TrimSpace(d)
		if t, err := time.Parse(time.RFC3339, s); err == nil {
			return t.UTC(), nil
		}
		if t, err := time.Parse(dateLayout, s); err == nil {
			return t, nil
		}
		return time.Time{}, fmt.Errorf("%q is not a date (YYYY-MM-DD or RFC 3339)", d)
	default:
		return time.Time{}, fmt.Errorf("expected a date string, got %T", v)
	}
}

func toID(v any) (string, error) {
	switch id := v.(type) {
	case string:
		if strings.TrimSpace(id) == "" {
			return "", fmt.Errorf("id must not be empty")
		}
		return id, nil
	case float64:
		if id != math.Trunc(id) || math.Abs(id) > maxExactID {
			return "", fmt.Errorf("%v is not a valid id", id)
		}
		return strconv.FormatInt(int64(id), 10), nil
	case int:
		return strconv.Itoa(id), nil
	case int64:
		return strconv.FormatInt(id, 10), nil
	default:
		return "", fmt.Errorf("expected an id, got %T", v)
	}
}

// expectedDomain describes the accepted values of f for error details.
func expectedDomain(f *metadata.Field) string {
	switch f.Type {
	case metadata.FieldEnum:
		return "one of " + strings.Join(f.EnumValueNames(), ", ")
	case metadata.FieldRelation:
		return "id of an existing " + string(f.Relation) + " record"
	case metadata.FieldDate:
		return "date (YYYY-MM-DD or RFC 3339)"
	case metadata.FieldID:
		return "record id"
	default:
		return string(f.Type)
	}
}
