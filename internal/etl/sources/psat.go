package sources

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"secsync/internal/etl"
)

// ── PSAT Source ─────────────────────────────────────────────
// Proofpoint Security Awareness Training reporting API. Pages through
// a report type ("users", "phishing", "training") newest-first, halting
// at the watermark id when one is set.

const psatDefaultBaseURL = "https://results.us.securityeducation.com/api/reporting/v0.3.0"

type psatSource struct{}

func init() { etl.RegisterSource(&psatSource{}) }

func (s *psatSource) Spec() etl.SourceSpec {
	return etl.SourceSpec{
		Type:  "psat",
		Label: "Proofpoint PSAT reporting API",
		ConfigFields: []etl.ConfigField{
			{Key: "report", Required: true, Help: "Report type: users | phishing | training"},
			{Key: "token", Required: true, Help: "API key, sent as x-apikey-token"},
			{Key: "base_url", Default: psatDefaultBaseURL},
			{Key: "page_size", Default: "8000"},
			{Key: "max_retries", Default: "5"},
		},
	}
}

func (s *psatSource) Discover(ctx context.Context, cfg etl.SourceConfig) (*etl.Schema, error) {
	// Sample one small page to discover the column set.
	client := newHTTPClient(false)
	page, err := fetchPSATPage(ctx, client, cfg, 1, 25)
	if err != nil {
		return nil, err
	}
	return inferSchema(page), nil
}

func (s *psatSource) Read(ctx context.Context, cfg etl.SourceConfig) (<-chan etl.Record, <-chan error) {
	out := make(chan etl.Record, 100)
	errCh := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errCh)

		client := newHTTPClient(false)
		pageSize := cfg.Int("page_size", 8000)
		stopAt := cfg.String(etl.StopAtKey, "")

		for page := 1; ; page++ {
			records, err := fetchPSATPage(ctx, client, cfg, page, pageSize)
			if err != nil {
				errCh <- fmt.Errorf("page %d: %w", page, err)
				return
			}
			if len(records) == 0 {
				return
			}

			for _, rec := range records {
				if stopAt != "" && rec.Key("id") == stopAt {
					// Everything from the watermark on was loaded by a
					// previous run.
					return
				}
				select {
				case out <- rec:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, errCh
}

// psatPage mirrors the reporting API envelope.
type psatPage struct {
	Data []struct {
		Type       string         `json:"type"`
		ID         string         `json:"id"`
		Attributes map[string]any `json:"attributes"`
	} `json:"data"`
}

func fetchPSATPage(ctx context.Context, client *http.Client, cfg etl.SourceConfig, page, size int) ([]etl.Record, error) {
	report := cfg.String("report", "")
	base := strings.TrimRight(cfg.String("base_url", psatDefaultBaseURL), "/")

	q := url.Values{}
	q.Set("page[number]", fmt.Sprint(page))
	q.Set("page[size]", fmt.Sprint(size))
	q.Set("filter[_includedeletedusers]", "TRUE")
	if report == "users" {
		q.Set("user_tag_enabled", "TRUE")
	}
	endpoint := fmt.Sprintf("%s/%s?%s", base, report, q.Encode())

	build := func() (*http.Request, error) {
		req, err := http.NewRequest(http.MethodGet, endpoint, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("x-apikey-token", cfg.String("token", ""))
		return req, nil
	}

	var body psatPage
	if err := getJSON(ctx, client, build, cfg.Int("max_retries", 0), &body); err != nil {
		return nil, err
	}

	records := make([]etl.Record, 0, len(body.Data))
	for _, item := range body.Data {
		data := map[string]any{
			"type": item.Type,
			"id":   item.ID,
		}
		for k, v := range flattenMap(item.Attributes) {
			data[k] = v
		}
		if report == "users" {
			for k, v := range expandUserTags(item.Attributes) {
				data[k] = v
			}
		}
		records = append(records, etl.Record{Data: data})
	}
	return records, nil
}

// expandUserTags fans a usertags map out into numbered flat columns:
// {"Department": ["Eng", "Sec"]} → department_1, department_2.
func expandUserTags(attributes map[string]any) map[string]any {
	out := map[string]any{}
	tags, ok := attributes["usertags"].(map[string]any)
	if !ok {
		return out
	}
	for category, raw := range tags {
		category = strings.ReplaceAll(strings.ToLower(category), " ", "_")
		category = strings.TrimSuffix(category, "_1")
		values, ok := raw.([]any)
		if !ok {
			if raw == nil {
				continue
			}
			values = []any{raw}
		}
		for i, v := range values {
			if v != nil {
				out[fmt.Sprintf("%s_%d", category, i+1)] = v
			}
		}
	}
	return out
}
