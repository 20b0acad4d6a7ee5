// Package deployer imports specialized workflows into the orchestration
// engine through its public REST API and activates them.
package deployer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/time/rate"

	"github.com/flexinfer/mentatlab/services/specializer-go/internal/graph"
)

// ErrNotFound is returned when the engine does not know the workflow id.
var ErrNotFound = errors.New("workflow not found in orchestration engine")

// APIError is a non-2xx answer from the engine.
type APIError struct {
	Method     string
	Path       string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.Path, e.StatusCode, e.Body)
}

// Deployment identifies an imported workflow.
type Deployment struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Active bool   `json:"active"`
}

// Config configures a Client.
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration

	// RequestsPerSecond throttles calls to the engine; zero disables throttling.
	RequestsPerSecond float64
	Burst             int

	// Activate turns imported workflows on right away.
	Activate bool

	// HTTPClient overrides the instrumented default (tests).
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Client talks to the orchestration engine API.
type Client struct {
	baseURL  string
	apiKey   string
	activate bool
	http     *http.Client
	limiter  *rate.Limiter
	logger   *slog.Logger
}

// New creates a deployer client.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("deployer base URL is required")
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout == 0 {
			timeout = 15 * time.Second
		}
		httpClient = &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		}
	}

	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.RequestsPerSecond > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		baseURL:  strings.TrimSuffix(cfg.BaseURL, "/"),
		apiKey:   cfg.APIKey,
		activate: cfg.Activate,
		http:     httpClient,
		limiter:  limiter,
		logger:   logger,
	}, nil
}

// Deploy imports wf, or replaces the workflow with the given id when
// existingID is set and still known to the engine, then activates it if
// configured to.
func (c *Client) Deploy(ctx context.Context, wf *graph.Workflow, existingID string) (*Deployment, error) {
	body := importBody(wf)

	var dep Deployment
	if existingID != "" {
		err := c.do(ctx, http.MethodPut, "/api/v1/workflows/"+existingID, body, &dep)
		switch {
		case err == nil:
		case errors.Is(err, ErrNotFound):
			c.logger.Warn("deployed workflow vanished, importing again", "workflow_id", existingID)
			existingID = ""
		default:
			return nil, err
		}
	}
	if existingID == "" {
		if err := c.do(ctx, http.MethodPost, "/api/v1/workflows", body, &dep); err != nil {
			return nil, err
		}
	}

	if c.activate && !dep.Active {
		if err := c.do(ctx, http.MethodPost, "/api/v1/workflows/"+dep.ID+"/activate", nil, &dep); err != nil {
			return nil, fmt.Errorf("activate workflow %s: %w", dep.ID, err)
		}
	}

	c.logger.Info("workflow deployed",
		"workflow_id", dep.ID,
		"active", dep.Active,
	)
	return &dep, nil
}

// Remove deletes a deployed workflow. Unknown ids are not an error.
func (c *Client) Remove(ctx context.Context, id string) error {
	err := c.do(ctx, http.MethodDelete, "/api/v1/workflows/"+id, nil, nil)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	return err
}

// importBody keeps only the fields the import endpoint accepts.
func importBody(wf *graph.Workflow) map[string]any {
	settings := wf.Settings
	if settings == nil {
		settings = map[string]any{}
	}
	return map[string]any{
		"name":        wf.Name,
		"nodes":       wf.Nodes,
		"connections": wf.Connections,
		"settings":    settings,
	}
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit: %w", err)
	}

	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("X-N8N-API-KEY", c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &APIError{Method: method, Path: path, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(msg))}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
