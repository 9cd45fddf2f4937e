package sources

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"secsync/internal/etl"
)

// ── RiskRecon Source ────────────────────────────────────────
// Third-party risk-scoring platform. "portfolio" lists the monitored
// companies (toes); "findings" fans out one request per toe and merges
// the results. Both keep a fixed include-column list so unrelated API
// additions never churn the destination schema.

const riskreconDefaultBaseURL = "https://api.riskrecon.com/v1"

var (
	toeIncludes     = []string{"toe_id", "toe_short_name", "name", "domain"}
	findingIncludes = []string{"finding_id", "toe_id", "host_id", "host_name", "finding_type", "severity", "status"}
)

type riskReconSource struct{}

func init() { etl.RegisterSource(&riskReconSource{}) }

func (s *riskReconSource) Spec() etl.SourceSpec {
	return etl.SourceSpec{
		Type:  "riskrecon",
		Label: "RiskRecon vendor-risk API",
		ConfigFields: []etl.ConfigField{
			{Key: "report", Required: true, Help: "portfolio | findings"},
			{Key: "token", Required: true, Help: "Bearer token"},
			{Key: "base_url", Default: riskreconDefaultBaseURL},
			{Key: "companies", Help: "Comma-separated company names; empty means all"},
			{Key: "max_retries", Default: "5"},
		},
	}
}

func (s *riskReconSource) Discover(ctx context.Context, cfg etl.SourceConfig) (*etl.Schema, error) {
	includes := toeIncludes
	if cfg.String("report", "") == "findings" {
		includes = findingIncludes
	}
	schema := &etl.Schema{}
	for _, name := range includes {
		t := "text"
		if name == "severity" {
			t = "number"
		}
		schema.Fields = append(schema.Fields, etl.Field{Name: name, Type: t})
	}
	return schema, nil
}

func (s *riskReconSource) Read(ctx context.Context, cfg etl.SourceConfig) (<-chan etl.Record, <-chan error) {
	out := make(chan etl.Record, 100)
	errCh := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errCh)

		client := newHTTPClient(false)
		toes, err := fetchToes(ctx, client, cfg)
		if err != nil {
			errCh <- err
			return
		}

		if cfg.String("report", "") != "findings" {
			for _, toe := range toes {
				select {
				case out <- etl.Record{Data: pick(toe, toeIncludes)}:
				case <-ctx.Done():
					return
				}
			}
			return
		}

		for _, toe := range toes {
			toeID, _ := toe["toe_id"].(string)
			if toeID == "" {
				continue
			}
			findings, err := fetchRiskReconList(ctx, client, cfg, "/findings?toe_id="+toeID)
			if err != nil {
				errCh <- fmt.Errorf("findings for toe %s: %w", toeID, err)
				return
			}
			for _, f := range findings {
				select {
				case out <- etl.Record{Data: pick(f, findingIncludes)}:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, errCh
}

func fetchToes(ctx context.Context, client *http.Client, cfg etl.SourceConfig) ([]map[string]any, error) {
	toes, err := fetchRiskReconList(ctx, client, cfg, "/toes")
	if err != nil {
		return nil, err
	}

	wanted := map[string]bool{}
	for _, name := range strings.Split(cfg.String("companies", ""), ",") {
		if name = strings.TrimSpace(name); name != "" {
			wanted[strings.ToLower(name)] = true
		}
	}
	if len(wanted) == 0 {
		return toes, nil
	}

	var filtered []map[string]any
	for _, toe := range toes {
		name, _ := toe["name"].(string)
		if wanted[strings.ToLower(name)] {
			filtered = append(filtered, toe)
		}
	}
	return filtered, nil
}

func fetchRiskReconList(ctx context.Context, client *http.Client, cfg etl.SourceConfig, path string) ([]map[string]any, error) {
	endpoint := strings.TrimRight(cfg.String("base_url", riskreconDefaultBaseURL), "/") + path

	build := func() (*http.Request, error) {
		req, err := http.NewRequest(http.MethodGet, endpoint, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+cfg.String("token", ""))
		return req, nil
	}

	var body []map[string]any
	if err := getJSON(ctx, client, build, cfg.Int("max_retries", 0), &body); err != nil {
		return nil, err
	}
	for i, m := range body {
		body[i] = flattenMap(m)
	}
	return body, nil
}

// pick keeps only the include columns, filling absent ones with nil.
func pick(m map[string]any, cols []string) map[string]any {
	out := make(map[string]any, len(cols))
	for _, c := range cols {
		out[c] = m[c]
	}
	return out
}
