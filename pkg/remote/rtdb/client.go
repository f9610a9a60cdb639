// Package rtdb implements remote.Store over the REST interface of a
// Firebase-style realtime database: push with POST, query with
// orderBy/equalTo, partial update with PATCH.
package rtdb

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/httprunner/FieldSync/internal/env"
	"github.com/httprunner/FieldSync/pkg/remote"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const defaultHTTPTimeout = 30 * time.Second

// Client talks to one database root.
type Client struct {
	baseURL    string
	auth       string
	httpClient *http.Client
}

// NewClient builds a client for baseURL (e.g. https://farm-ops.firebaseio.com).
// auth is sent as the ?auth= query parameter when non-empty.
func NewClient(baseURL, auth string, httpClient *http.Client) (*Client, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, errors.New("rtdb: base url is empty")
	}
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, errors.Wrap(err, "rtdb: invalid base url")
	}
	if u.Scheme != "https" && u.Scheme != "http" {
		return nil, errors.Errorf("rtdb: unsupported url scheme %q", u.Scheme)
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultHTTPTimeout}
	}
	return &Client{baseURL: baseURL, auth: strings.TrimSpace(auth), httpClient: httpClient}, nil
}

// NewClientFromEnv reads FIELDSYNC_RTDB_URL and FIELDSYNC_RTDB_AUTH.
func NewClientFromEnv() (*Client, error) {
	return NewClient(env.String(env.RTDBURL, ""), env.String(env.RTDBAuth, ""), nil)
}

// BaseURL returns the database root, useful as a connectivity probe target.
func (c *Client) BaseURL() string { return c.baseURL }

func (c *Client) Exists(ctx context.Context, collectionPath, field, value string) (bool, error) {
	n, err := c.Count(ctx, collectionPath, field, value)
	return n > 0, err
}

// Count queries collectionPath for children whose field equals value.
func (c *Client) Count(ctx context.Context, collectionPath, field, value string) (n int, err error) {
	defer func() {
		if err != nil {
			err = errors.Wrap(err, "rtdb: query by field failed")
		}
	}()
	path := remote.CleanPath(collectionPath)
	if path == "" {
		return 0, errors.New("empty collection path")
	}
	orderBy, err := json.Marshal(field)
	if err != nil {
		return 0, err
	}
	equalTo, err := json.Marshal(value)
	if err != nil {
		return 0, err
	}
	query := url.Values{}
	query.Set("orderBy", string(orderBy))
	query.Set("equalTo", string(equalTo))
	raw, err := c.doJSONRequest(ctx, http.MethodGet, path, query, nil)
	if err != nil {
		return 0, err
	}
	var matches map[string]json.RawMessage
	if trimmed := bytes.TrimSpace(raw); len(trimmed) > 0 && !bytes.Equal(trimmed, []byte("null")) {
		if err := json.Unmarshal(trimmed, &matches); err != nil {
			return 0, errors.Wrap(err, "decode query response")
		}
	}
	return len(matches), nil
}

func (c *Client) Insert(ctx context.Context, collectionPath string, payload map[string]any) (id string, err error) {
	defer func() {
		if err != nil {
			err = errors.Wrap(err, "rtdb: push record failed")
		}
	}()
	path := remote.CleanPath(collectionPath)
	if path == "" {
		return "", errors.New("empty collection path")
	}
	if len(payload) == 0 {
		return "", errors.New("no fields provided for creation")
	}
	raw, err := c.doJSONRequest(ctx, http.MethodPost, path, nil, payload)
	if err != nil {
		return "", err
	}
	var resp struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", errors.Wrap(err, "decode push response")
	}
	if strings.TrimSpace(resp.Name) == "" {
		return "", errors.New("push response missing generated name")
	}
	return resp.Name, nil
}

func (c *Client) Update(ctx context.Context, recordPath string, fields map[string]any) error {
	if _, _, err := remote.SplitRecordPath(recordPath); err != nil {
		return err
	}
	if len(fields) == 0 {
		return errors.New("rtdb: no fields provided for update")
	}
	if _, err := c.doJSONRequest(ctx, http.MethodPatch, remote.CleanPath(recordPath), nil, fields); err != nil {
		return errors.Wrap(err, "rtdb: update record failed")
	}
	return nil
}

func (c *Client) endpoint(path string, query url.Values) string {
	if query == nil {
		query = url.Values{}
	}
	if c.auth != "" {
		query.Set("auth", c.auth)
	}
	escaped := make([]string, 0, 4)
	for _, seg := range remote.Segments(path) {
		escaped = append(escaped, url.PathEscape(seg))
	}
	endpoint := c.baseURL + "/" + strings.Join(escaped, "/") + ".json"
	if encoded := query.Encode(); encoded != "" {
		endpoint += "?" + encoded
	}
	return endpoint
}

func (c *Client) doJSONRequest(ctx context.Context, method, path string, query url.Values, payload any) ([]byte, error) {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("rtdb: marshal request payload: %w", err)
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.endpoint(path, query), body)
	if err != nil {
		return nil, fmt.Errorf("rtdb: build request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json; charset=utf-8")
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("rtdb: execute request: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	rawBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("rtdb: read response: %w", err)
	}
	log.Debug().Str("method", method).Str("path", path).
		Int("status", resp.StatusCode).Dur("elapsed", time.Since(start)).
		Msg("rtdb request finished")

	if resp.StatusCode >= 400 {
		return rawBody, &HTTPError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(rawBody))}
	}
	return rawBody, nil
}

// HTTPError carries a non-2xx response.
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return "rtdb: http " + strconv.Itoa(e.StatusCode) + " response: " + e.Body
}

// Permanent is true for client errors other than timeouts and rate limits:
// bad auth, rules denial and malformed paths do not clear on retry.
func (e *HTTPError) Permanent() bool {
	switch e.StatusCode {
	case http.StatusRequestTimeout, http.StatusTooManyRequests:
		return false
	}
	return e.StatusCode >= 400 && e.StatusCode < 500
}
