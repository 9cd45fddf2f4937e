package etl

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ── Normalization ──────────────────────────────────────────
// Values are coerced to canonical Go scalars before hashing and loading.
// Differing wire representations of the same value (true vs "TRUE",
// 5 vs "5.0", two spellings of one timestamp) must normalize equally,
// otherwise the row hash reports spurious changes.

// Timestamp layouts seen across the vendor APIs, most specific first.
var timeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.000Z",
	"2006-01-02 15:04:05",
	"Jan 2, 2006 3:04:05 PM", // Splunk saved-search exports
	"2006-01-02",
}

// ParseTimestamp parses s using the known vendor layouts.
// The result is normalized to UTC.
func ParseTimestamp(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

// ParseBool interprets the truthy/falsy spellings the vendor feeds use.
func ParseBool(v any) (bool, bool) {
	switch b := v.(type) {
	case bool:
		return b, true
	case float64:
		return b != 0, true
	case int:
		return b != 0, true
	}
	switch strings.ToLower(strings.TrimSpace(fmt.Sprint(v))) {
	case "true", "t", "1", "yes":
		return true, true
	case "false", "f", "0", "no":
		return false, true
	}
	return false, false
}

// NormalizeValue coerces v to the canonical scalar for the given field type.
// Unparseable values normalize to nil, matching the loader's NULL handling.
func NormalizeValue(v any, fieldType string) any {
	if v == nil {
		return nil
	}
	switch fieldType {
	case "number":
		switch n := v.(type) {
		case float64:
			return n
		case int:
			return float64(n)
		case int64:
			return float64(n)
		}
		if f, err := strconv.ParseFloat(strings.TrimSpace(fmt.Sprint(v)), 64); err == nil {
			return f
		}
		return nil
	case "boolean":
		if b, ok := ParseBool(v); ok {
			return b
		}
		return nil
	case "datetime":
		if t, ok := v.(time.Time); ok {
			return t.UTC()
		}
		if t, ok := ParseTimestamp(fmt.Sprint(v)); ok {
			return t
		}
		return nil
	default:
		s := fmt.Sprint(v)
		if s == "" {
			return nil
		}
		return s
	}
}

// NormalizeRecord coerces every schema field of r in place and returns r.
// Fields absent from r are left absent; the loader fills them as NULL.
func NormalizeRecord(r Record, schema *Schema) Record {
	if schema == nil {
		return r
	}
	for _, f := range schema.Fields {
		if v, ok := r.Data[f.Name]; ok {
			r.Data[f.Name] = NormalizeValue(v, f.Type)
		}
	}
	return r
}

// stringify renders a normalized scalar in its canonical text form.
func stringify(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case bool:
		return strconv.FormatBool(x)
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64)
	case time.Time:
		return x.UTC().Format(time.RFC3339)
	default:
		return fmt.Sprint(x)
	}
}
