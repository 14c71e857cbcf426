package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
)

const maxResponseBytes = 1 << 20

type ChapaConfig struct {
	BaseURL   string
	SecretKey string
	Logger    *slog.Logger
}

// ChapaClient talks to the gateway's REST API. It makes a single attempt per
// call; timeouts and retries belong to RetryGateway.
type ChapaClient struct {
	httpClient *http.Client
	baseURL    string
	secretKey  string
	logger     *slog.Logger
}

func NewChapaClient(httpClient *http.Client, cfg ChapaConfig) *ChapaClient {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &ChapaClient{
		httpClient: httpClient,
		baseURL:    strings.TrimSuffix(cfg.BaseURL, "/"),
		secretKey:  cfg.SecretKey,
		logger:     logger,
	}
}

func (c *ChapaClient) Initialize(ctx context.Context, req InitializeRequest) (*InitializeResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode initialize request: %w", err)
	}

	var out InitializeResponse
	code, err := c.do(ctx, http.MethodPost, "/v1/transaction/initialize", body, &out)
	if err != nil {
		return nil, err
	}
	if !out.OK() {
		c.logger.Warn("gateway rejected initialize", "tx_ref", req.TxRef, "http_status", code, "status", out.Status, "message", out.Message)
	}
	return &out, nil
}

func (c *ChapaClient) Verify(ctx context.Context, txRef string) (*VerifyResponse, error) {
	var out VerifyResponse
	code, err := c.do(ctx, http.MethodGet, "/v1/transaction/verify/"+url.PathEscape(txRef), nil, &out)
	if err != nil {
		return nil, err
	}
	c.logger.Debug("gateway verify answered", "tx_ref", txRef, "http_status", code, "status", out.Status, "outcome", out.Data.Status)
	return &out, nil
}

// do sends one request and decodes the JSON answer into out. Only 400 and
// 404 answers with a JSON body are returned as data: the gateway uses them to
// report declined or unknown transactions. Auth failures and throttling are
// errors whatever the body says.
func (c *ChapaClient) do(ctx context.Context, method, path string, body []byte, out any) (int, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return 0, fmt.Errorf("build gateway request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.secretKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return 0, fmt.Errorf("%w: %s %s: %w", ErrTimeout, method, path, err)
		}
		return 0, fmt.Errorf("%w: %s %s: %w", ErrUnavailable, method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return resp.StatusCode, fmt.Errorf("%w: read body: %w", ErrUnavailable, err)
	}

	switch code := resp.StatusCode; {
	case code >= http.StatusInternalServerError:
		return code, fmt.Errorf("%w: %s %s returned %d", ErrServer, method, path, code)
	case code == http.StatusTooManyRequests:
		return code, fmt.Errorf("%w: %s %s returned %d", ErrThrottled, method, path, code)
	case code >= http.StatusBadRequest && !answersWithData(code):
		return code, fmt.Errorf("%w: %s %s returned %d", ErrClient, method, path, code)
	}

	if err := json.Unmarshal(raw, out); err != nil {
		if resp.StatusCode >= http.StatusBadRequest {
			return resp.StatusCode, fmt.Errorf("%w: %s %s returned %d", ErrClient, method, path, resp.StatusCode)
		}
		return resp.StatusCode, fmt.Errorf("%w: %s %s: %w", ErrMalformed, method, path, err)
	}
	return resp.StatusCode, nil
}

func answersWithData(code int) bool {
	return code == http.StatusBadRequest || code == http.StatusNotFound
}
