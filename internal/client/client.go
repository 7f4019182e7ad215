// Package client is the Go consumer for the explanation service: plain REST
// calls plus the streaming consumer that tracks draft progress.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/hl-fury/xai-narrative-service/internal/domain"
	"github.com/hl-fury/xai-narrative-service/internal/examples"
	"github.com/hl-fury/xai-narrative-service/internal/history"
	"github.com/hl-fury/xai-narrative-service/internal/models"
)

type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
	session    *Session
}

type Option func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) { c.httpClient = httpClient }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// New creates a client for the service at baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: baseURL,
		// No global timeout; explanation streams run for minutes. Discovery
		// calls bound themselves with request contexts.
		httpClient: &http.Client{},
		logger:     slog.Default(),
		session:    NewSession(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ModelList is the model discovery response for one dataset.
type ModelList struct {
	Models        []string        `json:"models"`
	Warning       string          `json:"warning,omitempty"`
	WarningDetail *models.Warning `json:"warning_detail,omitempty"`
}

// Datasets lists the datasets the service can explain.
func (c *Client) Datasets(ctx context.Context) ([]examples.DatasetInfo, error) {
	var resp struct {
		Datasets []examples.DatasetInfo `json:"datasets"`
	}
	if err := c.getJSON(ctx, "/api/datasets", &resp); err != nil {
		return nil, err
	}
	return resp.Datasets, nil
}

// Models lists the models available for a dataset.
func (c *Client) Models(ctx context.Context, dataset string) (*ModelList, error) {
	var resp ModelList
	if err := c.getJSON(ctx, "/api/models/"+url.PathEscape(dataset), &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Example fetches a random factual/counterfactual pair.
func (c *Client) Example(ctx context.Context, dataset string) (*examples.Pair, error) {
	var pair examples.Pair
	if err := c.getJSON(ctx, "/api/examples/"+url.PathEscape(dataset), &pair); err != nil {
		return nil, err
	}
	return &pair, nil
}

// NewCounterfactual requests a fresh counterfactual for a known factual.
func (c *Client) NewCounterfactual(ctx context.Context, dataset string, factual domain.Record) (*examples.Pair, error) {
	// The factual record is the request body, no wrapper object.
	var pair examples.Pair
	if err := c.postJSON(ctx, "/api/examples/"+url.PathEscape(dataset)+"/new-counterfactual", factual, &pair); err != nil {
		return nil, err
	}
	return &pair, nil
}

// Explain runs a one-shot explanation request.
func (c *Client) Explain(ctx context.Context, req *domain.GenerationRequest) (*domain.ExplanationResult, error) {
	var result domain.ExplanationResult
	if err := c.postJSON(ctx, "/api/explain", req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// History lists completed runs, newest first.
func (c *Client) History(ctx context.Context) ([]*history.Record, error) {
	var resp struct {
		History []*history.Record `json:"history"`
	}
	if err := c.getJSON(ctx, "/api/history", &resp); err != nil {
		return nil, err
	}
	return resp.History, nil
}

// ClearHistory deletes all stored runs.
func (c *Client) ClearHistory(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.baseURL+"/api/history", nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return decodeError(resp)
	}
	return nil
}

// ExplainStream runs a streaming explanation request and folds its events
// into the session snapshot. observe, when non-nil, is called after every
// accepted event with the updated snapshot. The final snapshot always has
// Done set; a transport failure surfaces as a generic stream failure rather
// than an error return.
func (c *Client) ExplainStream(ctx context.Context, req *domain.GenerationRequest, observe func(Snapshot)) (Snapshot, error) {
	requestID := c.session.Begin(DraftCount)

	payload, err := json.Marshal(req)
	if err != nil {
		return Snapshot{}, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/explain/stream", bytes.NewReader(payload))
	if err != nil {
		return Snapshot{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		c.session.Fail(requestID, "failed to reach the explanation service")
		return c.session.Snapshot(), err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		streamErr := decodeError(resp)
		c.session.Fail(requestID, streamErr.Error())
		return c.session.Snapshot(), streamErr
	}

	reader := NewEventReader(resp.Body, c.logger)
	for {
		event, err := reader.Next()
		if err != nil {
			if err == io.EOF {
				break
			}
			// Truncated or broken stream; the request is failed, never
			// retried.
			c.logger.Warn("explanation stream broke", slog.String("error", err.Error()))
			c.session.Fail(requestID, "connection lost before the explanation completed")
			break
		}

		if c.session.Apply(requestID, *event) && observe != nil {
			observe(c.session.Snapshot())
		}
	}

	snapshot := c.session.Snapshot()
	if !snapshot.Done {
		c.session.Fail(requestID, "stream closed without a terminal event")
		snapshot = c.session.Snapshot()
	}
	return snapshot, nil
}

// Snapshot returns the session's current state.
func (c *Client) Snapshot() Snapshot {
	return c.session.Snapshot()
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	return c.doJSON(req, out)
}

func (c *Client) postJSON(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.doJSON(req, out)
}

func (c *Client) doJSON(req *http.Request, out any) error {
	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	c.logger.Debug("api call",
		slog.String("method", req.Method),
		slog.String("path", req.URL.Path),
		slog.Int("status", resp.StatusCode),
		slog.Duration("duration", time.Since(start)))

	if resp.StatusCode >= 300 {
		return decodeError(resp)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// decodeError turns an error response into an APIError, reading the
// {"detail": "..."} body the service emits.
func decodeError(resp *http.Response) error {
	var body struct {
		Detail string `json:"detail"`
	}
	_ = json.NewDecoder(resp.Body).Decode(&body)
	if body.Detail == "" {
		body.Detail = resp.Status
	}

	errType := domain.ErrorTypeServer
	switch resp.StatusCode {
	case http.StatusBadRequest:
		errType = domain.ErrorTypeInvalidRequest
	case http.StatusNotFound:
		errType = domain.ErrorTypeNotFound
	case http.StatusBadGateway:
		errType = domain.ErrorTypeProvider
	}
	return domain.NewAPIError(errType, body.Detail).WithStatus(resp.StatusCode)
}
