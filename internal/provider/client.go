// Package provider wraps the remote license authority's HTTP API. The
// authority owns credential validity and hardware binding; this client only
// issues the create/patch/delete/reset operations the lifecycle engine
// needs and reports success uniformly.
package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"keygate/internal/config"
	apperrors "keygate/internal/errors"
)

// Client is the interface the lifecycle engine consumes. Every method
// returns ErrProviderFailure (wrapped in a ProviderError) for any
// non-success outcome, including transport errors and timeouts. A call
// that does not return within its budget is a failure, never a success.
type Client interface {
	CreateCredential(ctx context.Context, note string) (string, error)
	PatchExpiry(ctx context.Context, key string, expiresAt time.Time) error
	DeleteCredential(ctx context.Context, key string) error
	ResetHWID(ctx context.Context, key string, force bool) error
	GetCredential(ctx context.Context, key string) (*Credential, error)
}

// Credential is the provider-side view of a license key.
type Credential struct {
	Key       string    `json:"key"`
	Note      string    `json:"note"`
	ExpiresAt time.Time `json:"expires_at"`
	HWID      string    `json:"hwid,omitempty"`
}

// envelope is the provider's uniform response wrapper.
type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// HTTPClient talks JSON over HTTP to the license authority.
type HTTPClient struct {
	baseURL     string
	sellerToken string
	httpClient  *http.Client
	timeout     time.Duration
	logger      *slog.Logger
}

// NewHTTPClient creates a provider client from configuration. The seller
// token authenticates every request; it is never logged.
func NewHTTPClient(cfg config.ProviderConfig, logger *slog.Logger) *HTTPClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPClient{
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		sellerToken: cfg.SellerToken,
		httpClient:  &http.Client{Timeout: timeout},
		timeout:     timeout,
		logger:      logger.With(slog.String("component", "provider_client")),
	}
}

// CreateCredential asks the authority to mint a new license key tagged with
// the given note. The key is live until PatchExpiry neutralizes it.
func (c *HTTPClient) CreateCredential(ctx context.Context, note string) (string, error) {
	payload := map[string]any{"note": note}

	env, err := c.do(ctx, http.MethodPost, "/v1/credentials", payload)
	if err != nil {
		return "", err
	}

	var data struct {
		Key string `json:"key"`
	}
	if err := json.Unmarshal(env.Data, &data); err != nil || data.Key == "" {
		return "", apperrors.NewProviderError("create-credential", "response missing credential key", err)
	}

	c.logger.InfoContext(ctx, "provider credential created",
		slog.String("operation", "create-credential"),
		slog.String("license_key", MaskKey(data.Key)),
		slog.String("note", note))

	return data.Key, nil
}

// PatchExpiry sets the credential's absolute expiry timestamp.
func (c *HTTPClient) PatchExpiry(ctx context.Context, key string, expiresAt time.Time) error {
	payload := map[string]any{"expires_at": expiresAt.UTC().Format(time.RFC3339)}

	_, err := c.do(ctx, http.MethodPatch, "/v1/credentials/"+key+"/expiry", payload)
	if err != nil {
		return err
	}

	c.logger.InfoContext(ctx, "provider credential expiry patched",
		slog.String("operation", "patch-expiry"),
		slog.String("license_key", MaskKey(key)),
		slog.Time("expires_at", expiresAt))

	return nil
}

// DeleteCredential removes the credential upstream. Used as the
// compensating action when provisioning fails partway.
func (c *HTTPClient) DeleteCredential(ctx context.Context, key string) error {
	_, err := c.do(ctx, http.MethodDelete, "/v1/credentials/"+key, nil)
	if err != nil {
		return err
	}

	c.logger.InfoContext(ctx, "provider credential deleted",
		slog.String("operation", "delete-credential"),
		slog.String("license_key", MaskKey(key)))

	return nil
}

// ResetHWID clears the hardware binding on the credential. force instructs
// the authority to bypass its own cooldown; the user-facing cooldown policy
// lives in the lifecycle engine, not here.
func (c *HTTPClient) ResetHWID(ctx context.Context, key string, force bool) error {
	payload := map[string]any{"force": force}

	_, err := c.do(ctx, http.MethodPost, "/v1/credentials/"+key+"/reset", payload)
	if err != nil {
		return err
	}

	c.logger.InfoContext(ctx, "provider hwid reset",
		slog.String("operation", "reset-hwid"),
		slog.String("license_key", MaskKey(key)),
		slog.Bool("force", force))

	return nil
}

// GetCredential fetches the authority's current record for the key.
func (c *HTTPClient) GetCredential(ctx context.Context, key string) (*Credential, error) {
	env, err := c.do(ctx, http.MethodGet, "/v1/credentials/"+key, nil)
	if err != nil {
		return nil, err
	}

	var cred Credential
	if err := json.Unmarshal(env.Data, &cred); err != nil {
		return nil, apperrors.NewProviderError("get-credential", "malformed credential record", err)
	}

	return &cred, nil
}

// do executes one request against the authority and decodes the envelope.
// Non-2xx statuses, success=false, transport errors and deadline expiry all
// collapse into ProviderError so callers treat them uniformly.
func (c *HTTPClient) do(ctx context.Context, method, path string, payload any) (*envelope, error) {
	op := operationName(method, path)

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, apperrors.NewProviderError(op, "", fmt.Errorf("encode request: %w", err))
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, apperrors.NewProviderError(op, "", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.sellerToken)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.ErrorContext(ctx, "provider request failed",
			slog.String("operation", op),
			slog.Duration("latency", time.Since(start)),
			slog.String("error", err.Error()))
		return nil, apperrors.NewProviderError(op, "", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, apperrors.NewProviderError(op, "", fmt.Errorf("read response: %w", err))
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, apperrors.NewProviderError(op,
			fmt.Sprintf("unparseable response (status %d)", resp.StatusCode), err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 || !env.Success {
		c.logger.WarnContext(ctx, "provider rejected operation",
			slog.String("operation", op),
			slog.Int("status", resp.StatusCode),
			slog.String("provider_message", env.Message),
			slog.Duration("latency", time.Since(start)))
		return nil, apperrors.NewProviderError(op, env.Message, nil)
	}

	return &env, nil
}

// operationName derives a stable operation label for logs and errors
func operationName(method, path string) string {
	switch {
	case method == http.MethodPost && strings.HasSuffix(path, "/reset"):
		return "reset-hwid"
	case method == http.MethodPatch:
		return "patch-expiry"
	case method == http.MethodDelete:
		return "delete-credential"
	case method == http.MethodGet:
		return "get-credential"
	default:
		return "create-credential"
	}
}

// MaskKey masks a license key for safe logging
func MaskKey(key string) string {
	if len(key) <= 8 {
		return "****"
	}
	return key[:4] + "****" + key[len(key)-4:]
}
