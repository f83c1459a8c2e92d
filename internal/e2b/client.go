package e2b

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"time"

	"github.com/p-arndt/werkbank/internal/config"
	"github.com/p-arndt/werkbank/internal/runtime"
)

const (
	// envdPort is the envd API port inside every sandbox.
	envdPort = 49983

	// maxTimeout is the longest lifetime the control plane accepts.
	maxTimeout = 24 * time.Hour

	httpTimeout = 60 * time.Second
)

// Driver talks to the E2B control plane for lifecycle calls and to each
// sandbox's envd for file access. Sandboxes expire server-side.
type Driver struct {
	cfg        config.E2BConfig
	httpClient *http.Client
	logger     *slog.Logger

	// envdURL builds the data plane base URL for a sandbox.
	envdURL func(sandboxID, domain string) string
}

var _ runtime.Driver = (*Driver)(nil)

type Option func(*Driver)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(d *Driver) { d.httpClient = c }
}

// WithEnvdURL overrides how the envd base URL is derived.
func WithEnvdURL(fn func(sandboxID, domain string) string) Option {
	return func(d *Driver) { d.envdURL = fn }
}

func New(cfg config.E2BConfig, logger *slog.Logger, opts ...Option) (*Driver, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("e2b: api key is required")
	}
	d := &Driver{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: httpTimeout},
		logger:     logger.With("component", "e2b"),
		envdURL: func(sandboxID, domain string) string {
			return fmt.Sprintf("https://%d-%s.%s", envdPort, sandboxID, domain)
		},
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

func (d *Driver) Name() string { return config.DriverE2B }

func (d *Driver) Close() error {
	d.httpClient.CloseIdleConnections()
	return nil
}

func (d *Driver) Ping(ctx context.Context) error {
	var list []json.RawMessage
	return d.controlPlaneCall(ctx, http.MethodGet, "/sandboxes", nil, &list)
}

type createRequest struct {
	TemplateID          string            `json:"templateID"`
	Timeout             int               `json:"timeout"` // seconds
	Metadata            map[string]string `json:"metadata,omitempty"`
	Secure              bool              `json:"secure"`
	AllowInternetAccess bool              `json:"allow_internet_access"`
}

type sandboxResponse struct {
	SandboxID       string `json:"sandboxID"`
	EnvdVersion     string `json:"envdVersion"`
	EnvdAccessToken string `json:"envdAccessToken"`
	Domain          string `json:"domain,omitempty"`
}

type timeoutRequest struct {
	Timeout int `json:"timeout"`
}

func timeoutSeconds(ttl time.Duration) int {
	if ttl > maxTimeout {
		ttl = maxTimeout
	}
	if ttl < time.Second {
		ttl = time.Second
	}
	return int(ttl / time.Second)
}

func (d *Driver) Create(ctx context.Context, ttl time.Duration) (runtime.Sandbox, error) {
	req := createRequest{
		TemplateID:          d.cfg.Template,
		Timeout:             timeoutSeconds(ttl),
		Metadata:            map[string]string{"managed_by": "werkbank"},
		Secure:              true,
		AllowInternetAccess: true,
	}

	var resp sandboxResponse
	if err := d.controlPlaneCall(ctx, http.MethodPost, "/sandboxes", req, &resp); err != nil {
		return nil, fmt.Errorf("creating e2b sandbox: %w", err)
	}
	if resp.SandboxID == "" {
		return nil, errors.New("creating e2b sandbox: empty sandbox id")
	}

	d.logger.Debug("sandbox created", "sandbox_id", resp.SandboxID, "template", d.cfg.Template,
		"timeout_sec", req.Timeout)
	return d.handle(resp), nil
}

// Connect resumes or reattaches to a sandbox. The control plane answers 404
// once the sandbox has expired or been killed.
func (d *Driver) Connect(ctx context.Context, sandboxID string) (runtime.Sandbox, error) {
	var resp sandboxResponse
	// Connect also sets a timeout; keep it short, callers extend it explicitly.
	req := timeoutRequest{Timeout: 60}
	err := d.controlPlaneCall(ctx, http.MethodPost, "/sandboxes/"+url.PathEscape(sandboxID)+"/connect", req, &resp)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
			return nil, fmt.Errorf("%w: %s", runtime.ErrSandboxNotFound, sandboxID)
		}
		return nil, fmt.Errorf("connecting e2b sandbox: %w", err)
	}
	if resp.SandboxID == "" {
		resp.SandboxID = sandboxID
	}
	return d.handle(resp), nil
}

func (d *Driver) handle(resp sandboxResponse) *sandbox {
	domain := resp.Domain
	if domain == "" {
		domain = d.cfg.Domain
	}
	return &sandbox{
		id:          resp.SandboxID,
		accessToken: resp.EnvdAccessToken,
		baseURL:     d.envdURL(resp.SandboxID, domain),
		driver:      d,
	}
}

// APIError is a non-2xx answer from the control plane or envd.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("e2b api error (status %d): %s", e.StatusCode, e.Body)
}

func (d *Driver) controlPlaneCall(ctx context.Context, method, path string, body any, result any) error {
	var bodyReader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, d.cfg.APIURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("X-API-Key", d.cfg.APIKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &APIError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}
	if result != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

type sandbox struct {
	id          string
	accessToken string
	baseURL     string
	driver      *Driver
}

func (s *sandbox) ID() string { return s.id }

func (s *sandbox) SetTimeout(ctx context.Context, ttl time.Duration) error {
	return s.driver.controlPlaneCall(ctx, http.MethodPost, "/sandboxes/"+url.PathEscape(s.id)+"/timeout",
		timeoutRequest{Timeout: timeoutSeconds(ttl)}, nil)
}

func (s *sandbox) Kill(ctx context.Context) error {
	err := s.driver.controlPlaneCall(ctx, http.MethodDelete, "/sandboxes/"+url.PathEscape(s.id), nil, nil)
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
		return nil
	}
	return err
}

func (s *sandbox) filesURL(path string) string {
	return s.baseURL + "/files?path=" + url.QueryEscape(path)
}

// WriteFile uploads data through envd's multipart /files endpoint. envd
// creates missing parent directories.
func (s *sandbox) WriteFile(ctx context.Context, path string, data []byte) error {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", path)
	if err != nil {
		return fmt.Errorf("create form file: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return fmt.Errorf("write form file: %w", err)
	}
	if err := mw.Close(); err != nil {
		return fmt.Errorf("close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.filesURL(path), &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("X-Access-Token", s.accessToken)

	resp, err := s.driver.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("envd write: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &APIError{StatusCode: resp.StatusCode, Body: string(body)}
	}
	return nil
}

func (s *sandbox) ReadFile(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.filesURL(path), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-Access-Token", s.accessToken)

	resp, err := s.driver.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("envd read: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &APIError{StatusCode: resp.StatusCode, Body: string(body)}
	}
	return io.ReadAll(resp.Body)
}
