package etl

// ── Record ─────────────────────────────────────────────────
// Common intermediate data format.
// All sources emit Records, all destinations consume Records.
// A Record is one flattened row from a vendor API page, a CSV line,
// or a Splunk export row.

// Field describes a single column in a dataset.
type Field struct {
	Name string `json:"name" yaml:"name"`
	Type string `json:"type" yaml:"type"` // "text" | "number" | "boolean" | "datetime"
}

// Schema describes the shape of records coming from a source.
type Schema struct {
	Fields []Field `json:"fields" yaml:"fields"`
}

// FieldNames returns an ordered list of field names.
func (s *Schema) FieldNames() []string {
	names := make([]string, len(s.Fields))
	for i, f := range s.Fields {
		names[i] = f.Name
	}
	return names
}

// FieldType returns the declared type for a field name, or "text" when the
// field is not part of the schema.
func (s *Schema) FieldType(name string) string {
	for _, f := range s.Fields {
		if f.Name == name {
			return f.Type
		}
	}
	return "text"
}

// Record is a single row of data flowing through the pipeline.
// Data maps column name to a scalar value (string, float64, bool,
// time.Time or nil). Every record destined for an upsert table must carry
// the job's natural-key field.
type Record struct {
	Data map[string]any `json:"data"`
}

// Key returns the record's value for the given natural-key field as a
// string, or "" when the field is absent or nil.
func (r Record) Key(field string) string {
	v, ok := r.Data[field]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return stringify(v)
}
