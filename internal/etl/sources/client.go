package sources

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"secsync/internal/etl"
)

// ── Shared HTTP plumbing ───────────────────────────────────
// Every vendor poller funnels its requests through doWithRetry so the
// rate-limit and transient-failure behavior is uniform: HTTP 429 sleeps
// for the server-specified interval and retries the same page, network
// errors and 5xx responses retry with exponential backoff, and any other
// 4xx is fatal. Retries are bounded; exhausting the budget is an error.

const defaultMaxRetries = 5

// default pause when a 429 response carries no Retry-After header.
const defaultRetryAfter = 30 * time.Second

func newHTTPClient(insecure bool) *http.Client {
	c := &http.Client{Timeout: 60 * time.Second}
	if insecure {
		// Some Splunk test stacks run with self-signed certificates.
		c.Transport = &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		}
	}
	return c
}

// retryAfter parses the Retry-After response header (delta-seconds form).
func retryAfter(resp *http.Response) time.Duration {
	if v := resp.Header.Get("Retry-After"); v != "" {
		if secs, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && secs >= 0 {
			return time.Duration(secs) * time.Second
		}
	}
	return defaultRetryAfter
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// doWithRetry performs req, retrying per the policy above. build is called
// once per attempt because a request body cannot be replayed.
func doWithRetry(ctx context.Context, client *http.Client, build func() (*http.Request, error), maxRetries int) (*http.Response, error) {
	if maxRetries <= 0 {
		maxRetries = defaultMaxRetries
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = time.Second
	bo.MaxInterval = 2 * time.Minute

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		req, err := build()
		if err != nil {
			return nil, err
		}
		resp, err := client.Do(req.WithContext(ctx))
		if err != nil {
			lastErr = err
			if err := sleepCtx(ctx, bo.NextBackOff()); err != nil {
				return nil, err
			}
			continue
		}

		switch {
		case resp.StatusCode == http.StatusTooManyRequests:
			pause := retryAfter(resp)
			resp.Body.Close()
			lastErr = fmt.Errorf("http 429, retried after %s", pause)
			if err := sleepCtx(ctx, pause); err != nil {
				return nil, err
			}
		case resp.StatusCode >= 500:
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			resp.Body.Close()
			lastErr = fmt.Errorf("http %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
			if err := sleepCtx(ctx, bo.NextBackOff()); err != nil {
				return nil, err
			}
		case resp.StatusCode >= 400:
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			resp.Body.Close()
			return nil, fmt.Errorf("http %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
		default:
			return resp, nil
		}
	}
	return nil, fmt.Errorf("retry budget exhausted: %w", lastErr)
}

// getJSON fetches a URL and decodes the JSON body into out.
func getJSON(ctx context.Context, client *http.Client, build func() (*http.Request, error), maxRetries int, out any) error {
	resp, err := doWithRetry(ctx, client, build, maxRetries)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read body: %w", err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("parse json: %w", err)
	}
	return nil
}

// ── Record shaping helpers ─────────────────────────────────

// flattenMap keeps only scalar values (string, number, bool) from a map.
// Nested objects/arrays are serialized as JSON strings.
func flattenMap(m map[string]any) map[string]any {
	flat := make(map[string]any, len(m))
	for k, v := range m {
		switch v.(type) {
		case string, float64, bool, nil:
			flat[k] = v
		default:
			b, _ := json.Marshal(v)
			flat[k] = string(b)
		}
	}
	return flat
}

// inferSchema infers a Schema from a slice of Records.
func inferSchema(records []etl.Record) *etl.Schema {
	fieldSet := make(map[string]string) // name → type
	var order []string
	for _, rec := range records {
		for k, v := range rec.Data {
			if _, exists := fieldSet[k]; !exists {
				fieldSet[k] = inferType(v)
				order = append(order, k)
			}
		}
	}

	schema := &etl.Schema{}
	for _, name := range order {
		schema.Fields = append(schema.Fields, etl.Field{Name: name, Type: fieldSet[name]})
	}
	return schema
}

func inferType(v any) string {
	if v == nil {
		return "text"
	}
	switch reflect.TypeOf(v).Kind() {
	case reflect.Float64, reflect.Float32, reflect.Int, reflect.Int64:
		return "number"
	case reflect.Bool:
		return "boolean"
	default:
		return "text"
	}
}
