package api

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

	"github.com/go-go-golems/guru/pkg/security"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const defaultUserAgent = "guru/1.0"

// Client talks to the tutoring backend. One client serves every collaborator
// contract: query, content generation, video recommendation, enrichment
// persistence, history, identity and quiz generation.
type Client struct {
	httpClient *http.Client
	baseURL    string
	userAgent  string
	// timeout bounds each call when > 0. Zero leaves calls unbounded.
	timeout time.Duration
	urlOpts security.ServiceURLOptions
}

type ClientOption func(*Client)

func WithHTTPClient(c *http.Client) ClientOption {
	return func(client *Client) {
		client.httpClient = c
	}
}

func WithTimeout(d time.Duration) ClientOption {
	return func(client *Client) {
		client.timeout = d
	}
}

func WithUserAgent(ua string) ClientOption {
	return func(client *Client) {
		client.userAgent = ua
	}
}

// WithAllowInsecure permits plain http and local network hosts, which is what
// a development backend on localhost needs.
func WithAllowInsecure(allow bool) ClientOption {
	return func(client *Client) {
		client.urlOpts.AllowHTTP = allow
		client.urlOpts.AllowLocalNetworks = allow
	}
}

// NewClient validates the base URL and returns a client.
func NewClient(baseURL string, options ...ClientOption) (*Client, error) {
	c := &Client{
		httpClient: &http.Client{},
		baseURL:    strings.TrimRight(baseURL, "/"),
		userAgent:  defaultUserAgent,
	}
	for _, o := range options {
		o(c)
	}
	if err := security.ValidateServiceURL(c.baseURL, c.urlOpts); err != nil {
		return nil, errors.Wrap(err, "invalid backend base URL")
	}
	return c, nil
}

// Query asks the general query service.
func (c *Client) Query(ctx context.Context, req QueryRequest) (*QueryResponse, error) {
	var resp QueryResponse
	if err := c.do(ctx, http.MethodPost, "/query", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Generate asks the content generation service for a block tutorial.
func (c *Client) Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error) {
	var resp GenerateResponse
	if err := c.do(ctx, http.MethodPost, "/genai/generate", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// RecommendVideos fetches video cards for a query.
func (c *Client) RecommendVideos(ctx context.Context, query string) (*VideoResponse, error) {
	var resp VideoResponse
	path := "/youtube/recommend?q=" + url.QueryEscape(query)
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// SaveEnrichment stores video links on the server-side chat record.
func (c *Client) SaveEnrichment(ctx context.Context, req EnrichmentRequest) error {
	return c.do(ctx, http.MethodPost, "/genai/youtube-links", req, nil)
}

// History fetches the paged chat history of a user.
func (c *Client) History(ctx context.Context, username string) (*HistoryResponse, error) {
	var resp HistoryResponse
	path := "/genai/history/" + url.PathEscape(username)
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// CreateUser registers a display name and returns the stable username.
func (c *Client) CreateUser(ctx context.Context, name string) (*CreateUserResponse, error) {
	var resp CreateUserResponse
	if err := c.do(ctx, http.MethodPost, "/users", CreateUserRequest{Name: name}, &resp); err != nil {
		return nil, err
	}
	if resp.Username == "" {
		return nil, errors.New("identity service returned no username")
	}
	return &resp, nil
}

// GenerateQuiz asks the quiz generator for multiple choice questions.
func (c *Client) GenerateQuiz(ctx context.Context, req QuizRequest) (*QuizResponse, error) {
	var resp QuizResponse
	if err := c.do(ctx, http.MethodPost, "/mcq/generate", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) do(ctx context.Context, method, path string, body any, out any) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return errors.Wrapf(err, "could not encode %s %s", method, path)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return errors.Wrapf(err, "could not build %s %s", method, path)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.Wrapf(err, "%s %s failed", method, path)
	}
	defer func(Body io.ReadCloser) {
		_ = Body.Close()
	}(resp.Body)

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.Wrapf(err, "could not read %s %s response", method, path)
	}

	log.Debug().
		Str("method", method).
		Str("path", path).
		Int("status", resp.StatusCode).
		Dur("duration", time.Since(start)).
		Msg("backend call")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return newStatusError(resp.StatusCode, respBody)
	}
	if out == nil || len(bytes.TrimSpace(respBody)) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return errors.Wrapf(err, "could not decode %s %s response", method, path)
	}
	return nil
}

// ErrNotFound matches a 404 from any endpoint.
var ErrNotFound = errors.New("not found")

// StatusError is returned for any non-2xx answer.
type StatusError struct {
	StatusCode int
	Detail     string
}

func newStatusError(code int, body []byte) *StatusError {
	var payload struct {
		Detail any `json:"detail"`
		Error  any `json:"error"`
	}
	detail := strings.TrimSpace(string(body))
	if err := json.Unmarshal(body, &payload); err == nil {
		switch {
		case payload.Detail != nil:
			detail = fmt.Sprint(payload.Detail)
		case payload.Error != nil:
			detail = fmt.Sprint(payload.Error)
		}
	}
	return &StatusError{StatusCode: code, Detail: detail}
}

func (e *StatusError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("backend returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("backend returned status %d: %s", e.StatusCode, e.Detail)
}

func (e *StatusError) Is(target error) bool {
	return target == ErrNotFound && e.StatusCode == http.StatusNotFound
}

// IsNotFound reports whether err is a 404 answer.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
