package logsource

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Default ElasticSource settings.
const (
	defaultIndexPattern = "logs-*"
	defaultElasticSize  = 50
	defaultElasticLimit = 500
	defaultHTTPTimeout  = 30 * time.Second
)

// ElasticConfig configures an ElasticSource.
type ElasticConfig struct {
	// BaseURL is the Elasticsearch endpoint, e.g. http://localhost:9200.
	BaseURL string

	// IndexPattern selects the indices to search. Default: logs-*.
	IndexPattern string

	// Username and Password enable basic auth when both are set.
	Username string
	Password string

	// Timeout bounds each search request. Default: 30s.
	Timeout time.Duration
}

// Validate checks the configuration.
func (c ElasticConfig) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("%w: base URL required", ErrInvalidConfig)
	}
	if !strings.HasPrefix(c.BaseURL, "http://") && !strings.HasPrefix(c.BaseURL, "https://") {
		return fmt.Errorf("%w: base URL must be http(s), got %q", ErrInvalidConfig, c.BaseURL)
	}
	return nil
}

// ElasticSource fetches error logs from an Elasticsearch-compatible backend
// via the _search API.
type ElasticSource struct {
	config     ElasticConfig
	httpClient *http.Client
}

// NewElasticSource creates an ElasticSource from the configuration.
func NewElasticSource(cfg ElasticConfig) (*ElasticSource, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.IndexPattern == "" {
		cfg.IndexPattern = defaultIndexPattern
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultHTTPTimeout
	}
	return &ElasticSource{
		config:     cfg,
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

// esQuery is the _search request body.
type esQuery struct {
	Query esBoolWrapper       `json:"query"`
	Size  int                 `json:"size"`
	Sort  []map[string]string `json:"sort"`
}

type esBoolWrapper struct {
	Bool esBoolQuery `json:"bool"`
}

type esBoolQuery struct {
	Must []json.RawMessage `json:"must"`
}

// esHit is one search hit; Source carries the log document.
type esHit struct {
	Source esDocument `json:"_source"`
}

// esDocument is the log document shape this source understands. Unknown
// fields land in the entry payload untouched.
type esDocument map[string]interface{}

type esResponse struct {
	Hits struct {
		Hits []esHit `json:"hits"`
	} `json:"hits"`
}

type esErrorResponse struct {
	Error struct {
		Type   string `json:"type"`
		Reason string `json:"reason"`
	} `json:"error"`
}

// Fetch runs a bool query over @timestamp and severity terms and maps hits to
// LogEntry records, newest first.
func (s *ElasticSource) Fetch(ctx context.Context, window TimeRange, filter Filter) ([]LogEntry, error) {
	size := filter.MaxEntries
	if size <= 0 {
		size = defaultElasticSize
	}
	if size > defaultElasticLimit {
		size = defaultElasticLimit
	}

	body, err := json.Marshal(s.buildQuery(window, filter, size))
	if err != nil {
		return nil, fmt.Errorf("marshaling query: %w", err)
	}

	url := fmt.Sprintf("%s/%s/_search", strings.TrimRight(s.config.BaseURL, "/"), s.config.IndexPattern)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.config.Username != "" {
		req.SetBasicAuth(s.config.Username, s.config.Password)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFetchFailed, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: reading response: %v", ErrFetchFailed, err)
	}

	if resp.StatusCode != http.StatusOK {
		var errResp esErrorResponse
		if json.Unmarshal(raw, &errResp) == nil && errResp.Error.Reason != "" {
			return nil, fmt.Errorf("%w: %s (%d): %s", ErrFetchFailed, errResp.Error.Type, resp.StatusCode, errResp.Error.Reason)
		}
		return nil, fmt.Errorf("%w: status %d", ErrFetchFailed, resp.StatusCode)
	}

	var parsed esResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("%w: parsing response: %v", ErrFetchFailed, err)
	}

	entries := make([]LogEntry, 0, len(parsed.Hits.Hits))
	for _, hit := range parsed.Hits.Hits {
		entries = append(entries, mapDocument(hit.Source))
	}
	return entries, nil
}

// buildQuery assembles the bool query: a @timestamp range clause plus a
// severity terms clause, sorted newest first.
func (s *ElasticSource) buildQuery(window TimeRange, filter Filter, size int) esQuery {
	var must []json.RawMessage

	rangeClause := map[string]interface{}{
		"range": map[string]interface{}{
			"@timestamp": timestampBounds(window),
		},
	}
	if raw, err := json.Marshal(rangeClause); err == nil {
		must = append(must, raw)
	}

	levels := make([]string, 0, 2)
	for _, sev := range filter.DefaultSeverities() {
		levels = append(levels, string(sev))
	}
	termsClause := map[string]interface{}{
		"terms": map[string]interface{}{"level": levels},
	}
	if raw, err := json.Marshal(termsClause); err == nil {
		must = append(must, raw)
	}

	if len(filter.Services) > 0 {
		serviceClause := map[string]interface{}{
			"terms": map[string]interface{}{"service": filter.Services},
		}
		if raw, err := json.Marshal(serviceClause); err == nil {
			must = append(must, raw)
		}
	}

	return esQuery{
		Query: esBoolWrapper{Bool: esBoolQuery{Must: must}},
		Size:  size,
		Sort:  []map[string]string{{"@timestamp": "desc"}},
	}
}

func timestampBounds(window TimeRange) map[string]string {
	bounds := map[string]string{}
	if !window.From.IsZero() {
		bounds["gte"] = window.From.UTC().Format(time.RFC3339)
	}
	if !window.To.IsZero() {
		bounds["lte"] = window.To.UTC().Format(time.RFC3339)
	}
	if len(bounds) == 0 {
		bounds["gte"] = "now-1h"
	}
	return bounds
}

// mapDocument converts one Elasticsearch document into a LogEntry. Known
// fields (@timestamp, service, level, message) map to entry fields; every
// remaining string field is preserved in the payload.
func mapDocument(doc esDocument) LogEntry {
	entry := LogEntry{Payload: map[string]string{}}

	for key, value := range doc {
		str, isString := value.(string)
		switch key {
		case "@timestamp", "timestamp":
			if isString {
				if ts, err := time.Parse(time.RFC3339, str); err == nil {
					entry.Timestamp = ts
					continue
				}
			}
		case "service", "service_name":
			if isString {
				entry.Service = str
				continue
			}
		case "level", "severity":
			if isString {
				if sev, ok := ParseSeverity(str); ok {
					entry.Severity = sev
					continue
				}
			}
		case "message":
			if isString {
				entry.Message = str
				continue
			}
		}
		if isString {
			entry.Payload[key] = str
		}
	}

	if entry.Severity == "" {
		entry.Severity = SeverityError
	}
	return entry
}

var _ Source = (*ElasticSource)(nil)
