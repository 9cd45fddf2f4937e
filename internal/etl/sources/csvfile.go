package sources

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"strings"

	"secsync/internal/etl"
)

// ── CSV File Source ─────────────────────────────────────────
// Reads records from a local CSV file, the manual-import path for data
// handed over outside any API. Headers are snake_cased by default.

type csvFileSource struct{}

func init() { etl.RegisterSource(&csvFileSource{}) }

func (s *csvFileSource) Spec() etl.SourceSpec {
	return etl.SourceSpec{
		Type:  "csv_file",
		Label: "CSV file",
		ConfigFields: []etl.ConfigField{
			{Key: "path", Required: true, Help: "Path to the CSV file"},
			{Key: "delimiter", Default: ",", Help: "Column delimiter"},
			{Key: "has_header", Default: "true", Help: "Whether the first row contains column names"},
			{Key: "datetime_fields", Help: "Comma-separated columns parsed as timestamps"},
		},
	}
}

func (s *csvFileSource) Discover(ctx context.Context, cfg etl.SourceConfig) (*etl.Schema, error) {
	headers, _, err := readCSVFile(cfg)
	if err != nil {
		return nil, err
	}

	dtFields := map[string]bool{}
	for _, f := range strings.Split(cfg.String("datetime_fields", ""), ",") {
		if f = strings.TrimSpace(f); f != "" {
			dtFields[f] = true
		}
	}

	schema := &etl.Schema{Fields: make([]etl.Field, len(headers))}
	for i, h := range headers {
		ft := "text"
		if dtFields[h] {
			ft = "datetime"
		}
		schema.Fields[i] = etl.Field{Name: h, Type: ft}
	}
	return schema, nil
}

func (s *csvFileSource) Read(ctx context.Context, cfg etl.SourceConfig) (<-chan etl.Record, <-chan error) {
	out := make(chan etl.Record, 100)
	errCh := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errCh)

		headers, rows, err := readCSVFile(cfg)
		if err != nil {
			errCh <- err
			return
		}

		for _, row := range rows {
			data := make(map[string]any, len(headers))
			for j, h := range headers {
				if j < len(row) {
					data[h] = inferCSVValue(row[j])
				}
			}
			select {
			case out <- etl.Record{Data: data}:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, errCh
}

func readCSVFile(cfg etl.SourceConfig) ([]string, [][]string, error) {
	path := cfg.String("path", "")
	if path == "" {
		return nil, nil, fmt.Errorf("path is required")
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open file: %w", err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	if delim := cfg.String("delimiter", ","); len(delim) > 0 {
		reader.Comma = rune(delim[0])
	}
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true

	records, err := reader.ReadAll()
	if err != nil {
		return nil, nil, fmt.Errorf("parse csv: %w", err)
	}
	if len(records) == 0 {
		return nil, nil, fmt.Errorf("empty csv file")
	}

	hasHeader := strings.ToLower(cfg.String("has_header", "true")) != "false"

	var headers []string
	var rows [][]string
	if hasHeader {
		headers = make([]string, len(records[0]))
		for i, h := range records[0] {
			headers[i] = etl.SnakeCase(h)
		}
		rows = records[1:]
	} else {
		headers = make([]string, len(records[0]))
		for i := range headers {
			headers[i] = fmt.Sprintf("col_%d", i+1)
		}
		rows = records
	}

	return headers, rows, nil
}

// inferCSVValue tries to parse a string as a number or bool.
func inferCSVValue(s string) any {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}

	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}

	switch strings.ToLower(s) {
	case "true", "yes":
		return true
	case "false", "no":
		return false
	}

	return s
}
