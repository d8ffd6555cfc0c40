// Package credstore provides the client for the credential service, the
// external key-value collaborator holding encrypted vendor credentials
// and provider configuration records.
//
// Credentials are decrypted on demand, immediately before plugin
// initialization. Plaintext is never persisted and never appears in API
// responses; callers learn presence only via Configured.
package credstore

import (
	"context"
	"crypto/cipher"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/farelink/flightgw/internal/domain"
	"github.com/farelink/flightgw/internal/infra/resilience"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/crypto/chacha20poly1305"
)

var tracer = otel.Tracer("credstore")

// Client wraps HTTP calls to the credential service.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiToken   string
	aead       cipher.AEAD
	cb         *gobreaker.CircuitBreaker
	cfg        resilience.Config
	logger     *zap.Logger
}

// New creates a credential service client. masterKey must be the
// 32-byte key the service's blobs were sealed with.
func New(httpClient *http.Client, baseURL, apiToken string, masterKey []byte, cb *gobreaker.CircuitBreaker, cfg resilience.Config, logger *zap.Logger) (*Client, error) {
	aead, err := chacha20poly1305.NewX(masterKey)
	if err != nil {
		return nil, fmt.Errorf("credstore: bad master key: %w", err)
	}
	return &Client{
		httpClient: httpClient,
		baseURL:    baseURL,
		apiToken:   apiToken,
		aead:       aead,
		cb:         cb,
		cfg:        cfg,
		logger:     logger,
	}, nil
}

// doRequest executes an authenticated GET against the credential service.
func (c *Client) doRequest(ctx context.Context, path string) ([]byte, error) {
	url := fmt.Sprintf("%s/v1/%s", c.baseURL, path)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", c.apiToken))
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("credstore: request failed",
			zap.String("path", path),
			zap.Error(err),
		)
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil // no data
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Warn("credstore: non-2xx response",
			zap.String("path", path),
			zap.Int("status", resp.StatusCode),
		)
		return nil, fmt.Errorf("credential service returned status %d", resp.StatusCode)
	}
	return body, nil
}

// fetch runs doRequest under the circuit breaker with retries.
func (c *Client) fetch(ctx context.Context, path string) ([]byte, error) {
	result, err := c.cb.Execute(func() (any, error) {
		var body []byte
		err := resilience.RetryWithBackoff(ctx, c.cfg, func() error {
			var innerErr error
			body, innerErr = c.doRequest(ctx, path)
			return innerErr
		})
		if err != nil {
			return nil, err
		}
		return body, nil
	})
	if err != nil {
		return nil, err
	}
	if result == nil {
		return nil, nil
	}
	return result.([]byte), nil
}

type credentialBlob struct {
	Ciphertext string `json:"ciphertext"`
}

// Credentials fetches and decrypts the named provider's credentials.
// Implements port.CredentialSource.
func (c *Client) Credentials(ctx context.Context, providerName string) (domain.Credentials, error) {
	ctx, span := tracer.Start(ctx, "Credstore.Credentials")
	defer span.End()
	span.SetAttributes(attribute.String("provider.name", providerName))

	body, err := c.fetch(ctx, fmt.Sprintf("credentials/%s", providerName))
	if err != nil {
		return domain.Credentials{}, &domain.ErrConfiguration{Provider: providerName, Reason: fmt.Sprintf("credential fetch failed: %v", err)}
	}
	if body == nil {
		return domain.Credentials{}, &domain.ErrConfiguration{Provider: providerName, Reason: "no credentials configured"}
	}

	var blob credentialBlob
	if err := json.Unmarshal(body, &blob); err != nil {
		return domain.Credentials{}, &domain.ErrConfiguration{Provider: providerName, Reason: "malformed credential blob"}
	}

	creds, err := c.decrypt(providerName, blob.Ciphertext)
	if err != nil {
		return domain.Credentials{}, &domain.ErrConfiguration{Provider: providerName, Reason: err.Error()}
	}
	return creds, nil
}

// Configured reports credential presence without exposing the material.
func (c *Client) Configured(ctx context.Context, providerName string) bool {
	body, err := c.fetch(ctx, fmt.Sprintf("credentials/%s", providerName))
	return err == nil && body != nil
}

// ListProviderRecords loads the persisted provider configuration rows.
// Implements port.ConfigSource.
func (c *Client) ListProviderRecords(ctx context.Context) ([]domain.ProviderRecord, error) {
	ctx, span := tracer.Start(ctx, "Credstore.ListProviderRecords")
	defer span.End()

	body, err := c.fetch(ctx, "providers")
	if err != nil {
		return nil, err
	}
	if body == nil {
		return nil, nil
	}

	var records []domain.ProviderRecord
	if err := json.Unmarshal(body, &records); err != nil {
		return nil, fmt.Errorf("credstore: malformed provider records: %w", err)
	}
	return records, nil
}

// decrypt opens a base64 nonce||ciphertext blob sealed with the master
// key, binding the provider name as associated data.
func (c *Client) decrypt(providerName, ciphertext string) (domain.Credentials, error) {
	raw, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return domain.Credentials{}, fmt.Errorf("credential blob is not valid base64")
	}
	if len(raw) < c.aead.NonceSize() {
		return domain.Credentials{}, fmt.Errorf("credential blob too short")
	}

	nonce, sealed := raw[:c.aead.NonceSize()], raw[c.aead.NonceSize():]
	plain, err := c.aead.Open(nil, nonce, sealed, []byte(providerName))
	if err != nil {
		return domain.Credentials{}, fmt.Errorf("credential decryption failed")
	}

	var creds domain.Credentials
	if err := json.Unmarshal(plain, &creds); err != nil {
		return domain.Credentials{}, fmt.Errorf("decrypted credentials are malformed")
	}
	return creds, nil
}
