// internal/adapters/catalog/client.go
package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/ammerola/stockflow/internal/core/domain"
	"github.com/ammerola/stockflow/internal/core/ports"
)

// Config holds product service connection settings
type Config struct {
	BaseURL        string
	RequestTimeout time.Duration
	MaxRetries     int
}

// Client reads products from the product service over HTTP
type Client struct {
	baseURL    string
	httpClient *http.Client
	maxRetries uint64
	logger     *slog.Logger
}

var _ ports.ProductCatalog = (*Client)(nil)

// NewClient creates a catalog client
func NewClient(cfg Config, logger *slog.Logger) *Client {
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	retries := cfg.MaxRetries
	if retries < 0 {
		retries = 0
	}

	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		maxRetries: uint64(retries),
		logger:     logger.With(slog.String("client", "catalog")),
	}
}

// ListProducts returns every product known to the catalog
func (c *Client) ListProducts(ctx context.Context) ([]*domain.Product, error) {
	var products []*domain.Product
	if err := c.getJSON(ctx, "/api/products", &products); err != nil {
		return nil, err
	}
	return products, nil
}

// GetProduct returns one product, or a not-found error
func (c *Client) GetProduct(ctx context.Context, id int64) (*domain.Product, error) {
	var product domain.Product
	if err := c.getJSON(ctx, fmt.Sprintf("/api/products/%d", id), &product); err != nil {
		if isNotFound(err) {
			return nil, domain.NewNotFoundError("product", id)
		}
		return nil, err
	}
	return &product, nil
}

type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("catalog returned %d: %s", e.code, e.body)
}

func isNotFound(err error) bool {
	var se *statusError
	return errors.As(err, &se) && se.code == http.StatusNotFound
}

// getJSON performs GET with exponential backoff. 5xx responses and transport
// errors are retried; 4xx responses are permanent.
func (c *Client) getJSON(ctx context.Context, path string, dest any) error {
	url := c.baseURL + path

	operation := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("failed to build request: %w", err))
		}
		req.Header.Set("Accept", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			return fmt.Errorf("failed to call catalog: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			se := &statusError{code: resp.StatusCode, body: strings.TrimSpace(string(body))}
			if resp.StatusCode < 500 {
				return backoff.Permanent(se)
			}
			return se
		}

		if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
			return backoff.Permanent(fmt.Errorf("failed to decode catalog response: %w", err))
		}
		return nil
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 100 * time.Millisecond
	policy.MaxInterval = time.Second

	notify := func(err error, wait time.Duration) {
		c.logger.WarnContext(ctx, "catalog request failed, retrying",
			slog.String("path", path),
			slog.String("error", err.Error()),
			slog.Duration("wait", wait))
	}

	err := backoff.RetryNotify(operation,
		backoff.WithContext(backoff.WithMaxRetries(policy, c.maxRetries), ctx),
		notify)
	if err != nil {
		return fmt.Errorf("catalog %s: %w", path, err)
	}
	return nil
}
