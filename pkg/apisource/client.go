// Package apisource fetches JSON records from REST sources.
package apisource

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-query/pkg/federation"
	"github.com/ekaya-inc/ekaya-query/pkg/logging"
	"github.com/ekaya-inc/ekaya-query/pkg/models"
)

const (
	DefaultTimeout    = 30 * time.Second
	DefaultMaxRecords = 100000
)

var (
	// ErrRecordsNotFound is returned when records_path matches nothing in the response.
	ErrRecordsNotFound = errors.New("records path not found in response")
	// ErrInvalidResponse is returned for non-JSON bodies and non-2xx statuses.
	ErrInvalidResponse = errors.New("invalid api response")
)

// Client fetches records for API sources.
type Client struct {
	http       *resty.Client
	maxRecords int
	logger     *zap.Logger
}

// Option customizes a Client.
type Option func(*Client)

// WithMaxRecords bounds how many records one fetch may return.
func WithMaxRecords(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.maxRecords = n
		}
	}
}

// WithHTTPClient swaps the underlying resty client, mostly for tests.
func WithHTTPClient(rc *resty.Client) Option {
	return func(c *Client) { c.http = rc }
}

// NewClient creates an API record client.
func NewClient(logger *zap.Logger, opts ...Option) *Client {
	c := &Client{
		http: resty.New().
			SetHeader("Accept", "application/json").
			SetHeader("User-Agent", "ekaya-query"),
		maxRecords: DefaultMaxRecords,
		logger:     logging.OrNop(logger).Named("apisource"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Fetch calls the configured endpoint and returns the records found at records_path.
// An empty records_path means the body itself; an object yields one record.
func (c *Client) Fetch(ctx context.Context, cfg *models.APIConfig) ([]federation.Record, error) {
	timeout := DefaultTimeout
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req := c.http.R().SetContext(ctx).SetHeaders(cfg.Headers)
	if cfg.BearerToken != "" {
		req.SetAuthToken(cfg.BearerToken)
	}

	method := strings.ToUpper(cfg.Method)
	if method == "" {
		method = resty.MethodGet
	}
	url := strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Path != "" {
		url += "/" + strings.TrimLeft(cfg.Path, "/")
	}

	start := time.Now()
	resp, err := req.Execute(method, url)
	if err != nil {
		return nil, fmt.Errorf("request failed: %s", logging.SanitizeError(err, cfg.BearerToken))
	}
	c.logger.Debug("api source fetched",
		zap.String("method", method),
		zap.Int("status", resp.StatusCode()),
		zap.Int("bytes", len(resp.Body())),
		zap.Duration("elapsed", time.Since(start)),
	)
	if resp.IsError() {
		return nil, fmt.Errorf("%w: status %d", ErrInvalidResponse, resp.StatusCode())
	}

	return c.extract(resp.Body(), cfg.RecordsPath)
}

func (c *Client) extract(body []byte, path string) ([]federation.Record, error) {
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("%w: body is not JSON", ErrInvalidResponse)
	}

	var found gjson.Result
	if path == "" {
		found = gjson.ParseBytes(body)
	} else {
		found = gjson.GetBytes(body, path)
	}
	if !found.Exists() {
		return nil, fmt.Errorf("%w: %s", ErrRecordsNotFound, path)
	}

	switch {
	case found.IsArray():
		var records []federation.Record
		var overflow bool
		found.ForEach(func(_, value gjson.Result) bool {
			if len(records) >= c.maxRecords {
				overflow = true
				return false
			}
			records = append(records, federation.Record(value.Raw))
			return true
		})
		if overflow {
			c.logger.Warn("api response truncated", zap.Int("max_records", c.maxRecords))
		}
		if records == nil {
			records = []federation.Record{}
		}
		return records, nil
	case found.IsObject():
		return []federation.Record{federation.Record(found.Raw)}, nil
	}
	return nil, fmt.Errorf("%w: %s is not an array or object", ErrInvalidResponse, path)
}
