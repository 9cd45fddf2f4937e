package etl

import (
	"fmt"
	"strings"
)

// ── Transformer ────────────────────────────────────────────
// Transformers modify records in-flight between source and destination.
// They are composable: each takes a record, returns a (possibly modified)
// record and a boolean indicating whether to keep it.

// Transformer processes a single record.
// Returns (transformed record, keep). If keep is false, the record is dropped.
type Transformer interface {
	Transform(Record) (Record, bool)
}

// TransformerFunc adapts a plain function to the Transformer interface.
type TransformerFunc func(Record) (Record, bool)

func (f TransformerFunc) Transform(r Record) (Record, bool) { return f(r) }

// ApplyTransformers runs r through the chain in order, short-circuiting
// when a transformer drops the record.
func ApplyTransformers(r Record, chain []Transformer) (Record, bool) {
	for _, t := range chain {
		var keep bool
		if r, keep = t.Transform(r); !keep {
			return r, false
		}
	}
	return r, true
}

// TransformConfig is a declarative transform definition from job YAML.
type TransformConfig struct {
	Type   string         `json:"type" yaml:"type"` // "filter" | "rename" | "select" | "snake_case"
	Config map[string]any `json:"config" yaml:"config"`
}

// ── Built-in Transforms ────────────────────────────────────

// FilterTransform drops records where the given field does not match the value.
type FilterTransform struct {
	Field string
	Op    string // "eq" | "neq" | "contains"
	Value any
}

func (t *FilterTransform) Transform(r Record) (Record, bool) {
	v, ok := r.Data[t.Field]
	if !ok {
		return r, false
	}
	switch t.Op {
	case "eq":
		return r, fmt.Sprint(v) == fmt.Sprint(t.Value)
	case "neq":
		return r, fmt.Sprint(v) != fmt.Sprint(t.Value)
	case "contains":
		return r, strings.Contains(fmt.Sprint(v), fmt.Sprint(t.Value))
	default:
		return r, true
	}
}

// RenameTransform renames fields in a record.
type RenameTransform struct {
	Mapping map[string]string // oldName → newName
}

func (t *RenameTransform) Transform(r Record) (Record, bool) {
	for old, next := range t.Mapping {
		if v, ok := r.Data[old]; ok {
			r.Data[next] = v
			delete(r.Data, old)
		}
	}
	return r, true
}

// SelectTransform keeps only the specified fields.
type SelectTransform struct {
	Fields []string
}

func (t *SelectTransform) Transform(r Record) (Record, bool) {
	filtered := make(map[string]any, len(t.Fields))
	for _, f := range t.Fields {
		if v, ok := r.Data[f]; ok {
			filtered[f] = v
		}
	}
	r.Data = filtered
	return r, true
}

// DedupeTransform drops records with duplicate values for the given key.
type DedupeTransform struct {
	Key  string
	seen map[string]bool
}

func NewDedupeTransform(key string) *DedupeTransform {
	return &DedupeTransform{Key: key, seen: make(map[string]bool)}
}

func (t *DedupeTransform) Transform(r Record) (Record, bool) {
	v := fmt.Sprint(r.Data[t.Key])
	if t.seen[v] {
		return r, false
	}
	t.seen[v] = true
	return r, true
}

// SnakeCaseTransform rewrites all field names to lower snake_case, the
// destination column convention for every loader.
type SnakeCaseTransform struct{}

func (SnakeCaseTransform) Transform(r Record) (Record, bool) {
	out := make(map[string]any, len(r.Data))
	for k, v := range r.Data {
		out[SnakeCase(k)] = v
	}
	r.Data = out
	return r, true
}

// SnakeCase lowercases s and replaces separator characters with "_".
func SnakeCase(s string) string {
	s = strings.TrimSpace(strings.ToLower(s))
	replacer := strings.NewReplacer(" ", "_", ".", "_", "-", "_")
	return replacer.Replace(s)
}

// BuildTransformers converts declarative TransformConfig into Transformer
// instances. A dedupe on the job's key field is always appended last so a
// page overlap never produces duplicate upsert rows.
func BuildTransformers(configs []TransformConfig, dedupeKey string) []Transformer {
	var ts []Transformer

	for _, tc := range configs {
		switch tc.Type {
		case "filter":
			field, _ := tc.Config["field"].(string)
			op, _ := tc.Config["op"].(string)
			if field != "" && op != "" {
				ts = append(ts, &FilterTransform{Field: field, Op: op, Value: tc.Config["value"]})
			}

		case "rename":
			if mapping, ok := tc.Config["mapping"].(map[string]any); ok {
				m := make(map[string]string, len(mapping))
				for k, v := range mapping {
					m[k] = fmt.Sprint(v)
				}
				ts = append(ts, &RenameTransform{Mapping: m})
			}

		case "select":
			if fields, ok := tc.Config["fields"].([]any); ok {
				ff := make([]string, 0, len(fields))
				for _, f := range fields {
					ff = append(ff, fmt.Sprint(f))
				}
				ts = append(ts, &SelectTransform{Fields: ff})
			}

		case "snake_case":
			ts = append(ts, SnakeCaseTransform{})
		}
	}

	if dedupeKey != "" {
		ts = append(ts, NewDedupeTransform(dedupeKey))
	}

	return ts
}
