package analysis

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	// DefaultBaseURL is used when no API base is configured.
	DefaultBaseURL = "http://127.0.0.1:3000"
	// UploadField is the multipart field carrying the image.
	UploadField = "file"

	apiPrefix        = "/api/v1/analysis"
	userAgent        = "smart-ingredients-cli/0.1"
	maxResponseBytes = 1 << 20
	maxErrorBytes    = 4096
)

// HTTPDoer abstracts http.Client.Do for testing.
type HTTPDoer interface {
	Do(*http.Request) (*http.Response, error)
}

// Client talks to the analysis backend over its HTTP contract.
type Client struct {
	baseURL string
	http    HTTPDoer
	token   string
	logger  *zap.Logger
}

// Option customises Client construction.
type Option func(*Client)

// WithHTTPClient overrides the HTTP backend.
func WithHTTPClient(doer HTTPDoer) Option {
	return func(c *Client) {
		c.http = doer
	}
}

// WithAuthToken attaches a bearer token to every request.
func WithAuthToken(token string) Option {
	return func(c *Client) {
		c.token = strings.TrimSpace(token)
	}
}

// WithLogger sets the logger used for request tracing.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// NewClient builds a Client rooted at baseURL. An empty baseURL falls back to DefaultBaseURL.
func NewClient(baseURL string, opts ...Option) *Client {
	trimmed := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if trimmed == "" {
		trimmed = DefaultBaseURL
	}
	c := &Client{baseURL: trimmed}
	for _, opt := range opts {
		opt(c)
	}
	if c.http == nil {
		c.http = &http.Client{Timeout: 15 * time.Second}
	}
	if c.logger == nil {
		c.logger = zap.NewNop()
	}
	c.logger = c.logger.Named("analysis_client")
	return c
}

// BaseURL returns the API base the client was built with.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Submit uploads the image at localImagePath and returns the job the backend
// created for it. It makes exactly one request and never retries.
func (c *Client) Submit(ctx context.Context, localImagePath string) (Job, error) {
	if strings.TrimSpace(localImagePath) == "" {
		return Job{}, &UploadError{Err: errors.New("image path is empty")}
	}

	body, contentType, err := buildUploadBody(localImagePath)
	if err != nil {
		return Job{}, &UploadError{Path: localImagePath, Err: err}
	}

	req, err := c.newRequest(ctx, http.MethodPost, apiPrefix+"/upload", body)
	if err != nil {
		return Job{}, &UploadError{Path: localImagePath, Err: err}
	}
	req.Header.Set("Content-Type", contentType)

	var resp UploadResponse
	if err := c.do(req, &resp); err != nil {
		return Job{}, &UploadError{Path: localImagePath, Err: err}
	}
	if resp.ID == "" {
		return Job{}, &UploadError{Path: localImagePath, Err: ErrMissingID}
	}

	c.logger.Debug("image submitted", zap.String("analysis_id", resp.ID), zap.String("status", resp.Status))
	return Job{ID: resp.ID}, nil
}

// Fetch performs one status request for the given analysis id.
func (c *Client) Fetch(ctx context.Context, id string) (StatusResponse, error) {
	var resp StatusResponse
	req, err := c.newRequest(ctx, http.MethodGet, analysisPath(id, ""), nil)
	if err != nil {
		return resp, err
	}
	if err := c.do(req, &resp); err != nil {
		return StatusResponse{}, err
	}
	return resp, nil
}

// Confirm sends the user-confirmed OCR text and preference, starting analysis.
func (c *Client) Confirm(ctx context.Context, id, confirmedText, preference string) (StatusResponse, error) {
	payload, err := json.Marshal(ConfirmRequest{ConfirmedText: confirmedText, Preference: preference})
	if err != nil {
		return StatusResponse{}, fmt.Errorf("marshal confirm request: %w", err)
	}
	req, err := c.newRequest(ctx, http.MethodPost, analysisPath(id, "confirm"), bytes.NewReader(payload))
	if err != nil {
		return StatusResponse{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	var resp StatusResponse
	if err := c.do(req, &resp); err != nil {
		return StatusResponse{}, err
	}
	return resp, nil
}

// RetryOCR asks the backend to run OCR again for the given analysis.
func (c *Client) RetryOCR(ctx context.Context, id string) (StatusResponse, error) {
	req, err := c.newRequest(ctx, http.MethodPost, analysisPath(id, "retry-ocr"), nil)
	if err != nil {
		return StatusResponse{}, err
	}
	var resp StatusResponse
	if err := c.do(req, &resp); err != nil {
		return StatusResponse{}, err
	}
	return resp, nil
}

// History lists past analyses, newest first.
func (c *Client) History(ctx context.Context, page, limit int) (HistoryPage, error) {
	query := url.Values{}
	if page > 0 {
		query.Set("page", strconv.Itoa(page))
	}
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}
	path := apiPrefix + "/history"
	if len(query) > 0 {
		path += "?" + query.Encode()
	}

	req, err := c.newRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return HistoryPage{}, err
	}
	var resp HistoryPage
	if err := c.do(req, &resp); err != nil {
		return HistoryPage{}, err
	}
	return resp, nil
}

// Health checks that the backend is reachable.
func (c *Client) Health(ctx context.Context) error {
	req, err := c.newRequest(ctx, http.MethodGet, "/health", nil)
	if err != nil {
		return err
	}
	return c.do(req, nil)
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	return req, nil
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return decodeAPIError(resp)
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", req.URL.Path, err)
	}
	return nil
}

func decodeAPIError(resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBytes))
	apiErr := &APIError{StatusCode: resp.StatusCode}

	var body ErrorBody
	if err := json.Unmarshal(data, &body); err == nil && (body.Code != "" || body.Message != "") {
		apiErr.Code = body.Code
		apiErr.Message = strings.TrimSpace(body.Message)
		apiErr.RequestID = body.RequestID
		return apiErr
	}

	var plain struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(data, &plain); err == nil && plain.Error != "" {
		apiErr.Message = strings.TrimSpace(plain.Error)
		return apiErr
	}

	apiErr.Message = strings.TrimSpace(string(data))
	return apiErr
}

func analysisPath(id, action string) string {
	path := apiPrefix + "/" + url.PathEscape(id)
	if action != "" {
		path += "/" + action
	}
	return path
}

func buildUploadBody(path string) (*bytes.Buffer, string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, "", fmt.Errorf("read image: %w", err)
	}

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, UploadField, filepath.Base(path)))
	header.Set("Content-Type", http.DetectContentType(data))

	part, err := writer.CreatePart(header)
	if err != nil {
		return nil, "", fmt.Errorf("create multipart part: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return nil, "", fmt.Errorf("write multipart part: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, "", fmt.Errorf("close multipart writer: %w", err)
	}
	return body, writer.FormDataContentType(), nil
}
