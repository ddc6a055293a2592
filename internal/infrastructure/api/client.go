// Package api implements the HTTP client for the external persistence
// service. It is the only place the engine touches the wire: request shapes,
// identity headers, the circuit breaker, and the mapping from transport
// outcomes to typed engine errors all live here.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"conceptdeck-engine/internal/application/ports"
	"conceptdeck-engine/internal/domain/concept"
	appErrors "conceptdeck-engine/internal/errors"
)

// HeaderProvider supplies the caller's identity headers for each request.
// Authentication is the caller's concern; the engine only attaches what it is
// given.
type HeaderProvider func() http.Header

// Client talks to the persistence REST service. It implements
// ports.PersistenceAPI.
type Client struct {
	baseURL string
	http    *http.Client
	headers HeaderProvider
	breaker *gobreaker.CircuitBreaker
	metrics ports.OperationMetrics
	logger  *zap.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHeaderProvider sets the identity-header source.
func WithHeaderProvider(p HeaderProvider) Option {
	return func(c *Client) { c.headers = p }
}

// WithHTTPClient swaps the underlying http.Client, mainly for tests.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// WithMetrics records per-endpoint call outcomes.
func WithMetrics(m ports.OperationMetrics) Option {
	return func(c *Client) { c.metrics = m }
}

// NewClient creates a persistence API client. requestTimeout caps a single
// round trip; operation deadlines arrive through the request context.
func NewClient(baseURL string, requestTimeout time.Duration, logger *zap.Logger, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: requestTimeout},
		logger:  logger,
	}
	for _, opt := range opts {
		opt(c)
	}

	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "persistence-api",
		MaxRequests: 3,
		Interval:    30 * time.Second,
		Timeout:     15 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < 5 {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= 0.6
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
		IsSuccessful: func(err error) bool {
			// Context aborts are the engine cancelling, not the service
			// failing; they must not trip the breaker.
			return err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
		},
	})

	return c
}

// ============================================================================
// WIRE SHAPES
// ============================================================================

type categoryUpdateRequest struct {
	Action        string   `json:"action"`
	CategoryPath  []string `json:"categoryPath"`
	NewName       string   `json:"newName,omitempty"`
	NewParentPath []string `json:"newParentPath"`
}

type createConceptRequest struct {
	Title         string `json:"title"`
	Category      string `json:"category"`
	Summary       string `json:"summary,omitempty"`
	IsPlaceholder bool   `json:"isPlaceholder,omitempty"`
}

type updateConceptRequest struct {
	Category string `json:"category"`
}

type conceptsResponse struct {
	ConceptsByCategory map[string][]*concept.Concept `json:"conceptsByCategory"`
}

// ============================================================================
// ports.PersistenceAPI
// ============================================================================

// FetchConceptsByCategory retrieves the flat mapping for a hierarchy rebuild.
func (c *Client) FetchConceptsByCategory(ctx context.Context) (map[string][]*concept.Concept, error) {
	var resp conceptsResponse
	if err := c.do(ctx, http.MethodGet, "/concepts", nil, &resp); err != nil {
		return nil, err
	}
	if resp.ConceptsByCategory == nil {
		return map[string][]*concept.Concept{}, nil
	}
	return resp.ConceptsByCategory, nil
}

// RenameCategory issues the structural rename primitive.
func (c *Client) RenameCategory(ctx context.Context, categoryPath []string, newName string) error {
	return c.do(ctx, http.MethodPut, "/categories", categoryUpdateRequest{
		Action:       "rename",
		CategoryPath: categoryPath,
		NewName:      newName,
	}, nil)
}

// MoveCategory relocates a subtree; a nil newParentPath targets the root.
func (c *Client) MoveCategory(ctx context.Context, categoryPath []string, newParentPath []string) error {
	return c.do(ctx, http.MethodPut, "/categories", categoryUpdateRequest{
		Action:        "move",
		CategoryPath:  categoryPath,
		NewParentPath: newParentPath,
	}, nil)
}

// CreateConcept files a concept and returns the server's version of it.
func (c *Client) CreateConcept(ctx context.Context, in *concept.Concept) (*concept.Concept, error) {
	var created concept.Concept
	err := c.do(ctx, http.MethodPost, "/concepts", createConceptRequest{
		Title:         in.Title,
		Category:      in.Category,
		Summary:       in.Summary,
		IsPlaceholder: in.IsPlaceholder,
	}, &created)
	if err != nil {
		return nil, err
	}
	return &created, nil
}

// UpdateConceptCategory re-files one concept.
func (c *Client) UpdateConceptCategory(ctx context.Context, conceptID, newCategory string) error {
	return c.do(ctx, http.MethodPut, "/concepts/"+conceptID, updateConceptRequest{
		Category: newCategory,
	}, nil)
}

// ============================================================================
// TRANSPORT
// ============================================================================

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	started := time.Now()
	outcome := "ok"

	_, err := c.breaker.Execute(func() (interface{}, error) {
		return nil, c.roundTrip(ctx, method, path, body, out)
	})

	if err != nil {
		outcome = "error"
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			err = appErrors.NetworkFailure(err)
		}
	}
	if c.metrics != nil {
		c.metrics.APICall(method+" "+routeOf(path), outcome, time.Since(started))
	}
	return err
}

func (c *Client) roundTrip(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return appErrors.Internal("encode request body", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return appErrors.Internal("build request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.headers != nil {
		for key, values := range c.headers() {
			for _, v := range values {
				req.Header.Add(key, v)
			}
		}
	}

	c.logger.Debug("persistence API request",
		zap.String("method", method),
		zap.String("path", path))

	resp, err := c.http.Do(req)
	if err != nil {
		switch {
		case errors.Is(err, context.DeadlineExceeded):
			return appErrors.Timeout(method + " " + path).WithCause(err)
		case errors.Is(err, context.Canceled):
			return appErrors.Cancelled(method + " " + path).WithCause(err)
		default:
			return appErrors.NetworkFailure(err)
		}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return appErrors.ServerRejected(resp.StatusCode, strings.TrimSpace(string(detail)))
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return appErrors.ServerRejected(resp.StatusCode, fmt.Sprintf("undecodable response body: %v", err))
		}
	}
	return nil
}

// routeOf collapses concept IDs out of paths so metrics labels stay
// low-cardinality.
func routeOf(path string) string {
	if strings.HasPrefix(path, "/concepts/") {
		return "/concepts/{id}"
	}
	return path
}
