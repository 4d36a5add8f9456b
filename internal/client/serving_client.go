package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aiplaza/serving-client/internal/config"
	"github.com/aiplaza/serving-client/internal/model"
)

// ServingAPI defines the inference server operations the orchestrator drives
type ServingAPI interface {
	ListModels(ctx context.Context) ([]model.Model, error)
	UploadFile(ctx context.Context, filename, contentType string, body io.Reader) (*model.FileCreated, error)
	CreateJob(ctx context.Context, req *model.JobCreateRequest) (*model.Job, error)
	GetJob(ctx context.Context, jobID int64) (*model.Job, error)
	FetchFile(ctx context.Context, path string) (string, error)
}

// APIError is returned for non-2xx responses
type APIError struct {
	Method     string
	URL        string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("serving API error (status %d) for %s %s: %s", e.StatusCode, e.Method, e.URL, e.Body)
}

// ServingClient implements ServingAPI over the server's REST surface
type ServingClient struct {
	httpClient *http.Client
	baseURL    string
	logger     *zap.SugaredLogger
}

// NewServingClient creates a new inference server client. A zero
// RequestTimeout leaves individual requests unbounded.
func NewServingClient(cfg *config.APIConfig, logger *zap.SugaredLogger) (*ServingClient, error) {
	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse base URL: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("base URL %q must be absolute", cfg.BaseURL)
	}

	baseURL := base.String()
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}

	return &ServingClient{
		httpClient: &http.Client{
			Timeout: cfg.RequestTimeout,
		},
		baseURL: baseURL,
		logger:  logger,
	}, nil
}

// ListModels returns every model registered on the server
func (c *ServingClient) ListModels(ctx context.Context) ([]model.Model, error) {
	var result []model.Model
	if err := c.getJSON(ctx, "models/", &result); err != nil {
		return nil, err
	}
	return result, nil
}

// CreateModel registers a model package archive under the given name
func (c *ServingClient) CreateModel(ctx context.Context, name, filename string, archive io.Reader) (*model.Model, error) {
	endpoint := "models/?name=" + url.QueryEscape(name)
	var result model.Model
	if err := c.postMultipart(ctx, endpoint, filename, "application/zip", archive, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// UploadFile stores an input file and returns its server-side path reference
func (c *ServingClient) UploadFile(ctx context.Context, filename, contentType string, body io.Reader) (*model.FileCreated, error) {
	var result model.FileCreated
	if err := c.postMultipart(ctx, "files/", filename, contentType, body, &result); err != nil {
		return nil, err
	}
	if result.Path == "" {
		return nil, fmt.Errorf("upload response has no path")
	}
	return &result, nil
}

// FetchFile returns the raw text stored at a path reference
func (c *ServingClient) FetchFile(ctx context.Context, path string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"files/"+escapePath(path), nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	body, err := c.doRequest(req)
	if err != nil {
		return "", err
	}
	return string(body), nil
}

// CreateJob submits an inference job
func (c *ServingClient) CreateJob(ctx context.Context, jobReq *model.JobCreateRequest) (*model.Job, error) {
	bodyBytes, err := json.Marshal(jobReq)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"jobs/", bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	var result model.Job
	if err := c.doJSON(req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// GetJob retrieves the current state of a job
func (c *ServingClient) GetJob(ctx context.Context, jobID int64) (*model.Job, error) {
	var result model.Job
	if err := c.getJSON(ctx, "jobs/"+strconv.FormatInt(jobID, 10), &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// getJSON sends a GET request and parses the JSON response
func (c *ServingClient) getJSON(ctx context.Context, endpoint string, result interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	return c.doJSON(req, result)
}

// postMultipart sends body as the "file" field of a multipart form
func (c *ServingClient) postMultipart(ctx context.Context, endpoint, filename, contentType string, body io.Reader, result interface{}) error {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	partHeader := make(textproto.MIMEHeader)
	partHeader.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`, escapeQuotes(filename)))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	partHeader.Set("Content-Type", contentType)

	part, err := writer.CreatePart(partHeader)
	if err != nil {
		return fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := io.Copy(part, body); err != nil {
		return fmt.Errorf("failed to write form file: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("failed to close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, &buf)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	return c.doJSON(req, result)
}

// doJSON executes a request and parses the JSON response
func (c *ServingClient) doJSON(req *http.Request, result interface{}) error {
	body, err := c.doRequest(req)
	if err != nil {
		return err
	}

	if err := json.Unmarshal(body, result); err != nil {
		c.logger.Warnw("unmarshal error", "method", req.Method, "url", req.URL.String(), "error", err, "body", string(body))
		return fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return nil
}

// doRequest executes an HTTP request and returns the body of a 2xx response
func (c *ServingClient) doRequest(req *http.Request) ([]byte, error) {
	requestID := uuid.NewString()
	req.Header.Set("X-Request-ID", requestID)

	c.logger.Debugf("[Serving API] → %s %s (%s)", req.Method, req.URL.String(), requestID)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Debugf("[Serving API] ✗ %s %s — request failed: %v", req.Method, req.URL.String(), err)
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		c.logger.Debugf("[Serving API] ✗ %s %s — failed to read response: %v", req.Method, req.URL.String(), err)
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	c.logger.Debugf("[Serving API] ← %d %s %s — %d bytes", resp.StatusCode, req.Method, req.URL.String(), len(respBody))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &APIError{
			Method:     req.Method,
			URL:        req.URL.String(),
			StatusCode: resp.StatusCode,
			Body:       string(respBody),
		}
	}

	return respBody, nil
}

// escapePath escapes each segment of a path reference, keeping separators.
func escapePath(path string) string {
	segments := strings.Split(strings.TrimPrefix(path, "/"), "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return strings.Join(segments, "/")
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func escapeQuotes(s string) string {
	return quoteEscaper.Replace(s)
}
