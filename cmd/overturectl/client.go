package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// apiClient is a thin JSON client for the server's REST surface.
type apiClient struct {
	base  string
	token string
	http  *http.Client
}

func newClient() *apiClient {
	return &apiClient{
		base:  strings.TrimRight(serverFlag, "/"),
		token: tokenFlag,
		http:  &http.Client{Timeout: 30 * time.Second},
	}
}

type serverError struct {
	StatusCode int
	Message    string `json:"error"`
	Code       string `json:"code"`
}

func (e *serverError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("server: %s", e.Message)
	}
	return fmt.Sprintf("server: HTTP %d", e.StatusCode)
}

func (c *apiClient) do(method, path string, body, target any) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequest(method, c.base+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("cannot reach %s: %w", c.base, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		failure := &serverError{StatusCode: resp.StatusCode}
		_ = json.NewDecoder(resp.Body).Decode(failure)
		return failure
	}
	if target == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(target)
}

func (c *apiClient) get(path string, target any) error {
	return c.do(http.MethodGet, path, nil, target)
}

func (c *apiClient) post(path string, body, target any) error {
	return c.do(http.MethodPost, path, body, target)
}

func (c *apiClient) delete(path string, target any) error {
	return c.do(http.MethodDelete, path, nil, target)
}

// websocketURL rewrites the REST base URL onto the ws scheme and
// carries the auth token as a query parameter, where the server also
// accepts it.
func (c *apiClient) websocketURL(path string) (string, error) {
	parsed, err := url.Parse(c.base)
	if err != nil {
		return "", fmt.Errorf("invalid server URL %q: %w", c.base, err)
	}
	switch parsed.Scheme {
	case "http":
		parsed.Scheme = "ws"
	case "https":
		parsed.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported server scheme %q", parsed.Scheme)
	}
	parsed.Path = path
	if c.token != "" {
		query := parsed.Query()
		query.Set("token", c.token)
		parsed.RawQuery = query.Encode()
	}
	return parsed.String(), nil
}
