package sources

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"secsync/internal/etl"
)

// ── TAP SIEM Source ─────────────────────────────────────────
// Proofpoint Targeted Attack Protection SIEM API. Walks hour-long
// windows over a trailing range and emits one record per blocked
// message × threat. A window that keeps failing is skipped so one bad
// hour never sinks the rest of the range.

const tapDefaultBaseURL = "https://tap-api-v2.proofpoint.com"

type tapSIEMSource struct{}

func init() { etl.RegisterSource(&tapSIEMSource{}) }

func (s *tapSIEMSource) Spec() etl.SourceSpec {
	return etl.SourceSpec{
		Type:  "tap_siem",
		Label: "Proofpoint TAP SIEM API",
		ConfigFields: []etl.ConfigField{
			{Key: "principal", Required: true, Help: "Service principal for basic auth"},
			{Key: "secret", Required: true, Help: "Service secret for basic auth"},
			{Key: "base_url", Default: tapDefaultBaseURL},
			{Key: "command", Default: "/v2/siem/all"},
			{Key: "range_days", Default: "7"},
			{Key: "max_retries", Default: "5"},
		},
	}
}

func (s *tapSIEMSource) Discover(ctx context.Context, cfg etl.SourceConfig) (*etl.Schema, error) {
	// The SIEM payload is stable; declare the columns the loaders keep.
	names := []string{
		"id", "guid",
		"messageid", "threatid", "threat", "threattype", "threatstatus",
		"threaturl", "threattime", "threatdate", "classification",
		"detectiontype", "campaignid", "subject", "messagetime",
		"quarantinefolder", "quarantinerule",
	}
	schema := &etl.Schema{}
	for _, n := range names {
		schema.Fields = append(schema.Fields, etl.Field{Name: n, Type: "text"})
	}
	schema.Fields = append(schema.Fields,
		etl.Field{Name: "spamscore", Type: "number"},
		etl.Field{Name: "phishscore", Type: "number"},
		etl.Field{Name: "impostorscore", Type: "number"},
		etl.Field{Name: "malwarescore", Type: "number"},
	)
	return schema, nil
}

func (s *tapSIEMSource) Read(ctx context.Context, cfg etl.SourceConfig) (<-chan etl.Record, <-chan error) {
	out := make(chan etl.Record, 100)
	errCh := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errCh)

		client := newHTTPClient(false)
		base := strings.TrimRight(cfg.String("base_url", tapDefaultBaseURL), "/")
		command := cfg.String("command", "/v2/siem/all")
		rangeDays := cfg.Int("range_days", 7)
		maxRetries := cfg.Int("max_retries", 0)

		end := time.Now().UTC().Truncate(time.Hour)
		windows := rangeDays * 24
		failed := 0

		for i := windows; i > 0; i-- {
			start := end.Add(-time.Duration(i) * time.Hour)
			endpoint := fmt.Sprintf("%s%s?format=json&interval=PT1H/%s",
				base, command, start.Format("2006-01-02T15:04:05Z"))

			build := func() (*http.Request, error) {
				req, err := http.NewRequest(http.MethodGet, endpoint, nil)
				if err != nil {
					return nil, err
				}
				req.SetBasicAuth(cfg.String("principal", ""), cfg.String("secret", ""))
				return req, nil
			}

			var body struct {
				MessagesBlocked []map[string]any `json:"messagesBlocked"`
			}
			if err := getJSON(ctx, client, build, maxRetries, &body); err != nil {
				if ctx.Err() != nil {
					return
				}
				failed++
				slog.Warn("tap siem window failed",
					slog.Time("window", start), slog.String("error", err.Error()))
				continue
			}

			for _, msg := range body.MessagesBlocked {
				for _, rec := range expandBlockedMessage(msg) {
					select {
					case out <- rec:
					case <-ctx.Done():
						return
					}
				}
			}
		}

		if failed == windows && windows > 0 {
			errCh <- fmt.Errorf("all %d siem windows failed", windows)
		}
	}()

	return out, errCh
}

// expandBlockedMessage produces one record per threatsInfoMap entry,
// merged with the message fields. A message without threat details yields
// a single record. Every record gets a synthetic id of guid:threatid so
// the fan-out survives keyed dedupe and the upsert conflict target; the
// message guid alone is shared by sibling threats.
func expandBlockedMessage(msg map[string]any) []etl.Record {
	threats, _ := msg["threatsInfoMap"].([]any)

	base := make(map[string]any, len(msg))
	for k, v := range msg {
		if k == "threatsInfoMap" {
			continue
		}
		base[strings.ToLower(k)] = cleanSIEMValue(v)
	}
	guid, _ := base["guid"].(string)

	if len(threats) == 0 {
		rec := etl.Record{Data: base}
		rec.Data["id"] = guid
		splitThreatTime(rec.Data)
		return []etl.Record{rec}
	}

	records := make([]etl.Record, 0, len(threats))
	for _, t := range threats {
		tm, ok := t.(map[string]any)
		if !ok {
			continue
		}
		data := make(map[string]any, len(base)+len(tm))
		for k, v := range base {
			data[k] = v
		}
		for k, v := range tm {
			data[strings.ToLower(k)] = cleanSIEMValue(v)
		}
		if tid, _ := data["threatid"].(string); tid != "" {
			data["id"] = guid + ":" + tid
		} else {
			data["id"] = guid
		}
		splitThreatTime(data)
		records = append(records, etl.Record{Data: data})
	}
	return records
}

// cleanSIEMValue strips the bracket/comma characters that break the
// downstream CSV extracts; nested values are JSON-serialized first.
func cleanSIEMValue(v any) any {
	switch x := v.(type) {
	case string:
		r := strings.NewReplacer("[", "", "]", "", ",", ";")
		return r.Replace(x)
	case float64, bool, nil:
		return v
	default:
		flat := flattenMap(map[string]any{"v": v})
		return cleanSIEMValue(flat["v"])
	}
}

// splitThreatTime derives threatdate / threattimesplit columns.
func splitThreatTime(data map[string]any) {
	raw, _ := data["threattime"].(string)
	if raw == "" {
		return
	}
	t, ok := etl.ParseTimestamp(raw)
	if !ok {
		return
	}
	data["threatdate"] = t.Format("2006-01-02")
	data["threattimesplit"] = t.Format("15:04:05")
}
