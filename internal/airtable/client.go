// Package airtable provides the REST client for the directory backing store.
// One HTTP call per logical table operation; writes are shaped as
// {"fields": {...}} and reads come back as {"records": [{id, fields}]}.
// Every call runs under the uniform retry policy defined in retry.go.
package airtable

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

const (
	defaultBaseURL    = "https://api.airtable.com/v0"
	defaultContentURL = "https://content.airtable.com/v0"
)

// MetricsRecorder receives latency/outcome observations for every
// directory-store request. A nil recorder disables collection.
type MetricsRecorder interface {
	ObserveDirectoryRequest(table, method string, status int, duration time.Duration)
}

// Config configures the Client.
type Config struct {
	Token  string
	BaseID string

	// Overridable for tests
	BaseURL    string
	ContentURL string

	Retry RetryPolicy
}

// Client is the Airtable REST client.
type Client struct {
	httpClient *http.Client
	logger     *slog.Logger
	config     Config
	metrics    MetricsRecorder
}

// NewClient builds a Client. httpClient may carry its own transport-level
// timeout; per-attempt timeouts are enforced by the retry policy regardless.
// metrics may be nil.
func NewClient(httpClient *http.Client, logger *slog.Logger, config Config, metrics MetricsRecorder) *Client {
	if config.BaseURL == "" {
		config.BaseURL = defaultBaseURL
	}
	if config.ContentURL == "" {
		config.ContentURL = defaultContentURL
	}
	config.Retry = config.Retry.normalize()
	return &Client{
		httpClient: httpClient,
		logger:     logger,
		config:     config,
		metrics:    metrics,
	}
}

// Record is a single Airtable record.
type Record struct {
	ID          string         `json:"id"`
	Fields      map[string]any `json:"fields"`
	CreatedTime string         `json:"createdTime,omitempty"`
}

// listResponse is the wire shape of a table listing.
type listResponse struct {
	Records []Record `json:"records"`
	Offset  string   `json:"offset,omitempty"`
}

// ListOptions narrows a table listing.
type ListOptions struct {
	// FilterByFormula is an Airtable formula, e.g. `{Email técnico} = "x"`.
	FilterByFormula string
	MaxRecords      int
	SortField       string
	SortDesc        bool
}

// StatusError is a non-2xx HTTP response from the backing store.
// It is returned without retry; callers map it onto the error taxonomy.
type StatusError struct {
	StatusCode int
	Body       string
}

// Error implements the error interface.
func (e *StatusError) Error() string {
	return fmt.Sprintf("directory store returned status %d: %s", e.StatusCode, e.Body)
}

// ListRecords lists records from a table, following pagination offsets
// until the listing is exhausted or MaxRecords is reached.
func (c *Client) ListRecords(ctx context.Context, table string, opts ListOptions) ([]Record, error) {
	var records []Record
	offset := ""

	for {
		q := url.Values{}
		if opts.FilterByFormula != "" {
			q.Set("filterByFormula", opts.FilterByFormula)
		}
		if opts.MaxRecords > 0 {
			q.Set("maxRecords", strconv.Itoa(opts.MaxRecords))
		}
		if opts.SortField != "" {
			q.Set("sort[0][field]", opts.SortField)
			if opts.SortDesc {
				q.Set("sort[0][direction]", "desc")
			}
		}
		if offset != "" {
			q.Set("offset", offset)
		}

		u := c.tableURL(table)
		if enc := q.Encode(); enc != "" {
			u += "?" + enc
		}

		body, err := c.do(ctx, http.MethodGet, table, u, nil)
		if err != nil {
			return nil, err
		}

		var page listResponse
		if err := json.Unmarshal(body, &page); err != nil {
			return nil, fmt.Errorf("failed to parse list response: %w", err)
		}

		records = append(records, page.Records...)
		if page.Offset == "" || (opts.MaxRecords > 0 && len(records) >= opts.MaxRecords) {
			return records, nil
		}
		offset = page.Offset
	}
}

// GetRecord fetches a single record by id.
func (c *Client) GetRecord(ctx context.Context, table, id string) (*Record, error) {
	body, err := c.do(ctx, http.MethodGet, table, c.tableURL(table)+"/"+url.PathEscape(id), nil)
	if err != nil {
		return nil, err
	}
	var rec Record
	if err := json.Unmarshal(body, &rec); err != nil {
		return nil, fmt.Errorf("failed to parse record response: %w", err)
	}
	return &rec, nil
}

// CreateRecord creates a record with the given fields.
func (c *Client) CreateRecord(ctx context.Context, table string, fields map[string]any) (*Record, error) {
	payload, err := json.Marshal(map[string]any{"fields": fields})
	if err != nil {
		return nil, fmt.Errorf("failed to encode create payload: %w", err)
	}
	body, err := c.do(ctx, http.MethodPost, table, c.tableURL(table), payload)
	if err != nil {
		return nil, err
	}
	var rec Record
	if err := json.Unmarshal(body, &rec); err != nil {
		return nil, fmt.Errorf("failed to parse create response: %w", err)
	}
	return &rec, nil
}

// UpdateRecord patches the given fields on a record; untouched fields keep
// their values.
func (c *Client) UpdateRecord(ctx context.Context, table, id string, fields map[string]any) (*Record, error) {
	payload, err := json.Marshal(map[string]any{"fields": fields})
	if err != nil {
		return nil, fmt.Errorf("failed to encode update payload: %w", err)
	}
	body, err := c.do(ctx, http.MethodPatch, table, c.tableURL(table)+"/"+url.PathEscape(id), payload)
	if err != nil {
		return nil, err
	}
	var rec Record
	if err := json.Unmarshal(body, &rec); err != nil {
		return nil, fmt.Errorf("failed to parse update response: %w", err)
	}
	return &rec, nil
}

// UploadAttachment uploads base64-encoded file content into an attachment
// field of a record via the content endpoint.
func (c *Client) UploadAttachment(ctx context.Context, recordID, field, filename, contentType, base64Content string) error {
	payload, err := json.Marshal(map[string]string{
		"contentType": contentType,
		"file":        base64Content,
		"filename":    filename,
	})
	if err != nil {
		return fmt.Errorf("failed to encode attachment payload: %w", err)
	}
	u := fmt.Sprintf("%s/%s/%s/%s/uploadAttachment",
		c.config.ContentURL, c.config.BaseID, url.PathEscape(recordID), url.PathEscape(field))
	_, err = c.do(ctx, http.MethodPost, "attachments", u, payload)
	return err
}

// tableURL builds the endpoint URL for a table.
func (c *Client) tableURL(table string) string {
	return fmt.Sprintf("%s/%s/%s", c.config.BaseURL, c.config.BaseID, url.PathEscape(table))
}

// do executes one logical request under the retry policy.
// Transport errors are retried with backoff; non-2xx responses are wrapped
// in a StatusError and returned immediately.
func (c *Client) do(ctx context.Context, method, table, url string, payload []byte) ([]byte, error) {
	policy := c.config.Retry

	var lastErr error
	for attempt := 1; attempt <= policy.Attempts; attempt++ {
		start := time.Now()
		body, status, err := c.doOnce(ctx, method, url, payload, policy.PerAttemptTimeout)
		if c.metrics != nil {
			// status is 0 on transport failure
			c.metrics.ObserveDirectoryRequest(table, method, status, time.Since(start))
		}
		if err == nil {
			if status < 200 || status >= 300 {
				return nil, &StatusError{StatusCode: status, Body: string(body)}
			}
			return body, nil
		}

		lastErr = err
		c.logger.Warn("directory store request failed",
			slog.String("method", method),
			slog.String("table", table),
			slog.Int("attempt", attempt),
			slog.String("error", err.Error()),
		)

		if attempt == policy.Attempts {
			break
		}
		if err := sleep(ctx, policy.Backoff(attempt)); err != nil {
			return nil, err
		}
	}

	return nil, fmt.Errorf("directory store unreachable after %d attempts: %w", policy.Attempts, lastErr)
}

// doOnce performs a single attempt bounded by the per-attempt timeout.
func (c *Client) doOnce(ctx context.Context, method, url string, payload []byte, timeout time.Duration) ([]byte, int, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(attemptCtx, method, url, reader)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.config.Token)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("failed to read response body: %w", err)
	}

	return body, resp.StatusCode, nil
}
