package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	"github.com/goliatone/go-errors"

	"github.com/goliatone/go-todo-sync/todo"
)

// Client is the remote todo collection.
type Client interface {
	List(ctx context.Context, locator string) (todo.ListResponse, error)
	Create(ctx context.Context, input CreateInput) (todo.Item, error)
	Update(ctx context.Context, ref string, patch Patch) (todo.Item, error)
	Delete(ctx context.Context, ref string) error
}

// CreateInput is the payload for Create.
type CreateInput struct {
	Title string `json:"title"`
}

// Patch carries only the fields being changed.
type Patch struct {
	Title *string `json:"title,omitempty"`
	Done  *bool   `json:"done,omitempty"`
}

// TitlePatch returns a Patch that renames an item.
func TitlePatch(title string) Patch { return Patch{Title: &title} }

// DonePatch returns a Patch that sets the completion flag.
func DonePatch(done bool) Patch { return Patch{Done: &done} }

type envelope struct {
	Data any `json:"data"`
}

// Config configures HTTPClient.
type Config struct {
	BaseURL string        `json:"base_url"`
	Timeout time.Duration `json:"timeout"`
}

// DefaultConfig returns the configuration for a store on localhost.
func DefaultConfig() Config {
	return Config{
		BaseURL: "http://127.0.0.1:1337",
		Timeout: 15 * time.Second,
	}
}

// Validate checks that BaseURL is an absolute URL and Timeout is positive.
func (c Config) Validate() error {
	err := validation.ValidateStruct(&c,
		validation.Field(&c.BaseURL, validation.Required, is.RequestURL),
		validation.Field(&c.Timeout, validation.Required, validation.Min(time.Millisecond)),
	)
	if err != nil {
		return errors.FromOzzoValidation(err, "invalid remote config")
	}
	return nil
}

// HTTPClient talks to the remote store over HTTP. It never retries.
type HTTPClient struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewHTTPClient returns a client for cfg. A nil httpClient gets one bounded by
// cfg.Timeout.
func NewHTTPClient(cfg Config, httpClient *http.Client, logger *slog.Logger) *HTTPClient {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = DefaultConfig().BaseURL
	}
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = DefaultConfig().Timeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPClient{
		baseURL:    baseURL,
		httpClient: httpClient,
		logger:     logger.With("component", "remote"),
	}
}

// List fetches one page. locator is the collection path plus encoded query,
// as produced by todo.ListLocator.
func (c *HTTPClient) List(ctx context.Context, locator string) (todo.ListResponse, error) {
	status, payload, err := c.do(ctx, http.MethodGet, locator, nil, "Failed to fetch todos")
	if err != nil {
		return todo.ListResponse{}, err
	}
	if status == http.StatusNoContent {
		return todo.ListResponse{Items: []todo.Item{}}, nil
	}

	resp, diags, err := todo.DecodeListResponse(payload)
	if err != nil {
		return todo.ListResponse{}, err
	}
	if len(diags) > 0 {
		c.logger.Warn("list response deviates from known shapes",
			"locator", locator,
			"problems", len(diags),
			"first", diags[0].String(),
		)
	}
	return resp, nil
}

// ListPage is List for an explicit page of q.
func (c *HTTPClient) ListPage(ctx context.Context, page, pageSize int, q todo.Query) (todo.ListResponse, error) {
	return c.List(ctx, todo.ListLocator(page, pageSize, q))
}

// Create adds an item and returns it as stored.
func (c *HTTPClient) Create(ctx context.Context, input CreateInput) (todo.Item, error) {
	_, payload, err := c.do(ctx, http.MethodPost, todo.CollectionPath, envelope{Data: input}, "Failed to create todo")
	if err != nil {
		return todo.Item{}, err
	}
	return todo.DecodeItemResponse(payload)
}

// Update applies patch to the item addressed by ref.
func (c *HTTPClient) Update(ctx context.Context, ref string, patch Patch) (todo.Item, error) {
	_, payload, err := c.do(ctx, http.MethodPut, todo.ItemPath(ref), envelope{Data: patch}, "Failed to update todo")
	if err != nil {
		return todo.Item{}, err
	}
	if len(bytes.TrimSpace(payload)) == 0 {
		return todo.Item{}, nil
	}
	return todo.DecodeItemResponse(payload)
}

// Delete removes the item addressed by ref. Any 2xx counts as success and the
// body, if any, is ignored.
func (c *HTTPClient) Delete(ctx context.Context, ref string) error {
	_, _, err := c.do(ctx, http.MethodDelete, todo.ItemPath(ref), nil, "Failed to delete todo")
	return err
}

func (c *HTTPClient) do(ctx context.Context, method, requestPath string, body any, action string) (int, []byte, error) {
	var bodyReader io.Reader
	if body != nil {
		bodyBytes, err := json.Marshal(body)
		if err != nil {
			return 0, nil, errors.Wrap(err, errors.CategoryInternal, "encode request body")
		}
		bodyReader = bytes.NewReader(bodyBytes)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+requestPath, bodyReader)
	if err != nil {
		return 0, nil, errors.Wrap(err, errors.CategoryBadInput, "build request")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Cache-Control", "no-store")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	started := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, todo.NewTransportFailure(action, err)
	}
	payload, readErr := io.ReadAll(resp.Body)
	_ = resp.Body.Close()

	c.logger.Debug("remote call",
		"method", method,
		"path", requestPath,
		"status", resp.StatusCode,
		"duration", time.Since(started),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return resp.StatusCode, payload, todo.NewHTTPFailure(action, resp.StatusCode, resp.Status, string(payload))
	}
	if readErr != nil {
		return resp.StatusCode, nil, todo.NewTransportFailure(action, readErr)
	}
	return resp.StatusCode, payload, nil
}
