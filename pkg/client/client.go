package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// Client talks to a running code-runner daemon over HTTP.
type Client struct {
	baseURL string
	client  *http.Client
}

// Config holds client configuration.
type Config struct {
	BaseURL string
	Timeout time.Duration
}

// DefaultConfig returns the default client configuration.
func DefaultConfig() Config {
	return Config{
		BaseURL: "http://localhost:8000",
		Timeout: 30 * time.Second,
	}
}

func New(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://localhost:8000"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Client{
		baseURL: cfg.BaseURL,
		client:  &http.Client{Timeout: cfg.Timeout},
	}
}

// apiError extracts the structured error envelope from a failed call.
func apiError(status int, body []byte) error {
	var er ErrorResponse
	if err := json.Unmarshal(body, &er); err == nil && er.Error != "" {
		return fmt.Errorf("daemon error (%d, %s): %s", status, er.Code, er.Error)
	}
	return fmt.Errorf("daemon error (%d): %s", status, string(body))
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader, contentType string, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("request %s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return apiError(resp.StatusCode, data)
	}
	if out != nil {
		return json.Unmarshal(data, out)
	}
	return nil
}

// Upload sends a local script file to the daemon.
func (c *Client) Upload(ctx context.Context, filePath string) (UploadResponse, error) {
	var out UploadResponse
	f, err := os.Open(filepath.Clean(filePath))
	if err != nil {
		return out, err
	}
	defer func() { _ = f.Close() }()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filepath.Base(filePath))
	if err != nil {
		return out, err
	}
	if _, err := io.Copy(part, f); err != nil {
		return out, err
	}
	if err := mw.Close(); err != nil {
		return out, err
	}
	err = c.do(ctx, http.MethodPost, "/upload", &buf, mw.FormDataContentType(), &out)
	return out, err
}

// Start starts the named script.
func (c *Client) Start(ctx context.Context, name string) (StartResponse, error) {
	var out StartResponse
	err := c.do(ctx, http.MethodPost, "/start/"+url.PathEscape(name), nil, "", &out)
	return out, err
}

// Stop stops the named script.
func (c *Client) Stop(ctx context.Context, name string) (StopResponse, error) {
	var out StopResponse
	err := c.do(ctx, http.MethodPost, "/stop/"+url.PathEscape(name), nil, "", &out)
	return out, err
}

// Status fetches the status of the named script.
func (c *Client) Status(ctx context.Context, name string) (StatusResponse, error) {
	var out StatusResponse
	err := c.do(ctx, http.MethodGet, "/status/"+url.PathEscape(name), nil, "", &out)
	return out, err
}

// Scripts lists stored scripts.
func (c *Client) Scripts(ctx context.Context) (ScriptsResponse, error) {
	var out ScriptsResponse
	err := c.do(ctx, http.MethodGet, "/scripts", nil, "", &out)
	return out, err
}

// Logs tails the named script's log.
func (c *Client) Logs(ctx context.Context, name string, lines int) (LogsResponse, error) {
	var out LogsResponse
	path := "/logs/" + url.PathEscape(name)
	if lines > 0 {
		path += "?lines=" + strconv.Itoa(lines)
	}
	err := c.do(ctx, http.MethodGet, path, nil, "", &out)
	return out, err
}

// RestartAll restarts every running script.
func (c *Client) RestartAll(ctx context.Context) (RestartAllResponse, error) {
	var out RestartAllResponse
	err := c.do(ctx, http.MethodPost, "/restart-all", nil, "", &out)
	return out, err
}

// Health checks daemon liveness.
func (c *Client) Health(ctx context.Context) (HealthResponse, error) {
	var out HealthResponse
	err := c.do(ctx, http.MethodGet, "/health", nil, "", &out)
	return out, err
}
