package device

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	mgmtPrefix         = "/mgmt"
	loginPath          = "/mgmt/shared/authn/login"
	transactionPath    = "/mgmt/tm/transaction"
	authTokenHeader    = "X-F5-Auth-Token"
	coordinationHeader = "X-F5-REST-Coordination-Id"
)

// Config holds the connection settings for one device.
type Config struct {
	Host               string        `mapstructure:"host"`
	Port               int           `mapstructure:"port"`
	Username           string        `mapstructure:"username"`
	Password           string        `mapstructure:"password"`
	Timeout            time.Duration `mapstructure:"timeout"`
	InsecureSkipVerify bool          `mapstructure:"insecure_skip_verify"`
}

// Client implements Transport against a device's iControl-style REST API.
// A session token is obtained on first use and reused until the device
// rejects it. The retriever fans requests out concurrently, so the token
// is guarded and a mid-run refresh is single-flight.
type Client struct {
	baseURL    string
	username   string
	password   string
	httpClient *http.Client
	logger     *zap.Logger

	tokenMu sync.Mutex
	token   string
}

// NewClient creates a device API client. The client is safe for
// concurrent use.
func NewClient(cfg Config, logger *zap.Logger) *Client {
	port := cfg.Port
	if port == 0 {
		port = 443
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 60 * time.Second
	}

	return &Client{
		baseURL:  fmt.Sprintf("https://%s:%d", cfg.Host, port),
		username: cfg.Username,
		password: cfg.Password,
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{
					InsecureSkipVerify: cfg.InsecureSkipVerify, //nolint:gosec // devices commonly run self-signed certs
				},
			},
		},
		logger: logger,
	}
}

// Login obtains a session token. Called lazily by the request path but
// exposed so startup can fail fast on bad credentials.
func (c *Client) Login(ctx context.Context) error {
	c.tokenMu.Lock()
	defer c.tokenMu.Unlock()
	return c.login(ctx)
}

// login must be called with tokenMu held.
func (c *Client) login(ctx context.Context) error {
	body := map[string]any{
		"username":          c.username,
		"password":          c.password,
		"loginProviderName": "tmos",
	}
	result, err := c.doOnce(ctx, http.MethodPost, loginPath, body, "")
	if err != nil {
		return fmt.Errorf("failed to log in to device: %w", err)
	}

	tokenObj, _ := result.(map[string]any)["token"].(map[string]any)
	token, _ := tokenObj["token"].(string)
	if token == "" {
		return errors.New("device login response carried no token")
	}
	c.token = token
	return nil
}

// List fetches the object or collection at path, retrying per opts.
func (c *Client) List(ctx context.Context, path string, opts *RequestOptions) (any, error) {
	retry := NoRetry
	silent := false
	if opts != nil {
		retry = opts.Retry
		silent = opts.Silent
	}
	if retry.Tries < 1 {
		retry.Tries = 1
	}

	var lastErr error
	for attempt := 0; attempt < retry.Tries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(retry.Interval):
			}
		}

		result, err := c.do(ctx, http.MethodGet, path, nil)
		if err == nil {
			if !silent {
				c.logger.Debug("device list", zap.String("path", path))
			}
			return result, nil
		}
		if IsNotFound(err) {
			return nil, err
		}
		lastErr = err
		if !silent {
			c.logger.Warn("device list failed",
				zap.String("path", path),
				zap.Int("attempt", attempt+1),
				zap.Error(err))
		}
	}
	return nil, lastErr
}

// Create posts a new object.
func (c *Client) Create(ctx context.Context, path string, body any) (map[string]any, error) {
	result, err := c.do(ctx, http.MethodPost, path, body)
	if err != nil {
		return nil, err
	}
	obj, _ := result.(map[string]any)
	return obj, nil
}

// Modify patches an existing object.
func (c *Client) Modify(ctx context.Context, path string, body any) (map[string]any, error) {
	result, err := c.do(ctx, http.MethodPatch, path, body)
	if err != nil {
		return nil, err
	}
	obj, _ := result.(map[string]any)
	return obj, nil
}

// Delete removes an object. A missing object is not an error.
func (c *Client) Delete(ctx context.Context, path string) error {
	_, err := c.do(ctx, http.MethodDelete, path, nil)
	if err != nil && !IsNotFound(err) {
		return err
	}
	return nil
}

// Transaction runs the operations atomically: every step is staged under
// one coordination id and committed together.
func (c *Client) Transaction(ctx context.Context, ops []Operation) ([]map[string]any, error) {
	if len(ops) == 0 {
		return nil, nil
	}

	created, err := c.do(ctx, http.MethodPost, transactionPath, map[string]any{})
	if err != nil {
		return nil, fmt.Errorf("failed to open transaction: %w", err)
	}
	createdObj, _ := created.(map[string]any)
	transID := fmt.Sprintf("%v", createdObj["transId"])

	results := make([]map[string]any, 0, len(ops))
	for _, op := range ops {
		result, opErr := c.doWithHeader(ctx, op.Method, op.Path, op.Body, coordinationHeader, transID)
		if opErr != nil {
			return nil, fmt.Errorf("failed to stage %s %s: %w", op.Method, op.Path, opErr)
		}
		obj, _ := result.(map[string]any)
		results = append(results, obj)
	}

	commit := map[string]any{"state": "VALIDATING"}
	if _, err := c.do(ctx, http.MethodPatch, transactionPath+"/"+transID, commit); err != nil {
		return nil, fmt.Errorf("failed to commit transaction %s: %w", transID, err)
	}
	return results, nil
}

func (c *Client) do(ctx context.Context, method, path string, body any) (any, error) {
	return c.doWithHeader(ctx, method, path, body, "", "")
}

func (c *Client) doWithHeader(ctx context.Context, method, path string, body any, header, headerValue string) (any, error) {
	token, err := c.sessionToken(ctx)
	if err != nil {
		return nil, err
	}

	result, err := c.doOnceWithHeader(ctx, method, path, body, token, header, headerValue)

	var queryErr *QueryError
	if errors.As(err, &queryErr) && queryErr.StatusCode == http.StatusUnauthorized {
		// session token expired; refresh and replay once
		token, err = c.refreshToken(ctx, token)
		if err != nil {
			return nil, err
		}
		result, err = c.doOnceWithHeader(ctx, method, path, body, token, header, headerValue)
	}
	return result, err
}

// sessionToken returns the held token, logging in first if none is held.
func (c *Client) sessionToken(ctx context.Context) (string, error) {
	c.tokenMu.Lock()
	defer c.tokenMu.Unlock()
	if c.token == "" {
		if err := c.login(ctx); err != nil {
			return "", err
		}
	}
	return c.token, nil
}

// refreshToken replaces a rejected token. Concurrent callers holding the
// same stale token trigger one re-login; the rest reuse its result.
func (c *Client) refreshToken(ctx context.Context, stale string) (string, error) {
	c.tokenMu.Lock()
	defer c.tokenMu.Unlock()
	if c.token != stale {
		return c.token, nil
	}
	if err := c.login(ctx); err != nil {
		return "", err
	}
	return c.token, nil
}

func (c *Client) doOnce(ctx context.Context, method, path string, body any, token string) (any, error) {
	return c.doOnceWithHeader(ctx, method, path, body, token, "", "")
}

func (c *Client) doOnceWithHeader(ctx context.Context, method, path string, body any, token, header, headerValue string) (any, error) {
	url := c.baseURL + devicePath(path)

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request body: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, &QueryError{Path: path, Err: err}
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set(authTokenHeader, token)
	}
	if header != "" {
		req.Header.Set(header, headerValue)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &QueryError{Path: path, Err: err}
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			c.logger.Warn("failed to close response body", zap.Error(err))
		}
	}()

	if resp.StatusCode == http.StatusNotFound {
		return nil, &NotFoundError{Path: path}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		message, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &QueryError{
			Path:       path,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("%s", strings.TrimSpace(string(message))),
		}
	}

	if resp.StatusCode == http.StatusNoContent {
		return nil, nil
	}

	var result any
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, &QueryError{Path: path, Err: fmt.Errorf("failed to decode response: %w", err)}
	}
	return result, nil
}

// devicePath prefixes bare tm paths with the management root. Paths that
// already carry it, like the login endpoint, pass through.
func devicePath(path string) string {
	if strings.HasPrefix(path, mgmtPrefix) {
		return path
	}
	return mgmtPrefix + path
}
