package realtime

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/adsbtools/skybridge/internal/config"
	"github.com/adsbtools/skybridge/pkg/logger"
)

// RESTClient satisfies correlated requests over plain HTTP when the
// real-time channel cannot. Each logical request type maps to one
// endpoint; the HTTP method is selected by naming convention on the type
// string. GET responses are served through a TTL'd LRU cache.
type RESTClient struct {
	baseURL    string
	httpClient *http.Client
	cache      *expirable.LRU[string, json.RawMessage]
	logger     *logger.Logger
}

// NewRESTClient creates a new REST fallback client
func NewRESTClient(cfg config.UpstreamConfig, log *logger.Logger) *RESTClient {
	return &RESTClient{
		baseURL: strings.TrimRight(cfg.HTTPBaseURL, "/"),
		httpClient: &http.Client{
			Timeout: time.Duration(cfg.HTTPTimeoutSecs) * time.Second,
		},
		cache: expirable.NewLRU[string, json.RawMessage](
			cfg.CacheSize, nil, time.Duration(cfg.CacheTTLSeconds)*time.Second),
		logger: log.Named("rest-fallback"),
	}
}

// MethodForType selects the HTTP method by naming convention on the
// request type string: mutating verbs in the type name map to the
// matching method, everything else is a read
func MethodForType(reqType string) string {
	switch {
	case strings.Contains(reqType, ":create"):
		return http.MethodPost
	case strings.Contains(reqType, ":update"):
		return http.MethodPut
	case strings.Contains(reqType, ":delete"):
		return http.MethodDelete
	default:
		return http.MethodGet
	}
}

// PathForType maps a request type to its endpoint path, e.g.
// "aircraft:history" -> "/aircraft/history"
func PathForType(reqType string) string {
	return "/" + strings.ReplaceAll(reqType, ":", "/")
}

// Do performs the HTTP equivalent of a correlated request and returns the
// raw response body
func (r *RESTClient) Do(ctx context.Context, reqType string, params any) (json.RawMessage, error) {
	method := MethodForType(reqType)
	urlStr := r.baseURL + PathForType(reqType)

	var body io.Reader
	switch method {
	case http.MethodGet, http.MethodDelete:
		query, err := queryFromParams(params)
		if err != nil {
			return nil, fmt.Errorf("failed to encode params for %q: %w", reqType, err)
		}
		if query != "" {
			urlStr += "?" + query
		}
	default:
		if params != nil {
			encoded, err := json.Marshal(params)
			if err != nil {
				return nil, fmt.Errorf("failed to encode params for %q: %w", reqType, err)
			}
			body = bytes.NewReader(encoded)
		}
	}

	if method == http.MethodGet {
		if cached, ok := r.cache.Get(urlStr); ok {
			r.logger.Debug("REST cache hit", logger.String("url", urlStr))
			return cached, nil
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, urlStr, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	r.logger.Debug("REST fallback request",
		logger.String("method", method),
		logger.String("url", urlStr))

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if method == http.MethodGet {
		r.cache.Add(urlStr, respBody)
	}

	return respBody, nil
}

// queryFromParams flattens a params value into a URL query string. Params
// are expected to be a flat object of scalar values.
func queryFromParams(params any) (string, error) {
	if params == nil {
		return "", nil
	}

	encoded, err := json.Marshal(params)
	if err != nil {
		return "", err
	}

	var flat map[string]any
	if err := json.Unmarshal(encoded, &flat); err != nil {
		return "", fmt.Errorf("params must be an object: %w", err)
	}

	values := url.Values{}
	for key, value := range flat {
		values.Set(key, fmt.Sprint(value))
	}
	return values.Encode(), nil
}
