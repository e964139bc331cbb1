// Package treasury executes fund transfers through the custody service's
// REST API.
package treasury

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/lendingcore/internal/domain"
)

// ClientConfig holds the custody service connection parameters.
type ClientConfig struct {
	BaseURL              string
	ApiKey               string
	PlatformAccount      string
	RequestTimeout       time.Duration
	DryRun               bool
	MaxTransferPerMinute int
}

// Client is the HTTP transfer executor. In dry-run mode it acknowledges
// transfers locally without contacting the custody service.
type Client struct {
	cfg        ClientConfig
	httpClient *http.Client
	logger     *slog.Logger

	mu     sync.Mutex
	window []time.Time
}

var _ domain.TransferExecutor = (*Client)(nil)

// NewClient creates a transfer client.
func NewClient(cfg ClientConfig, logger *slog.Logger) *Client {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 10 * time.Second
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	return &Client{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: cfg.RequestTimeout,
		},
		logger: logger.With(slog.String("component", "treasury")),
	}
}

type transferRequest struct {
	From           string  `json:"from"`
	To             string  `json:"to"`
	Amount         float64 `json:"amount"`
	IdempotencyKey string  `json:"idempotency_key"`
}

type transferResponse struct {
	TransactionRef string `json:"transaction_ref"`
	Status         string `json:"status"`
}

// ExecuteTransfer moves funds between two accounts and returns the custody
// service's transaction reference.
func (c *Client) ExecuteTransfer(ctx context.Context, from, to string, amount float64) (domain.TransferReceipt, error) {
	if amount <= 0 {
		return domain.TransferReceipt{}, fmt.Errorf("treasury: execute transfer: amount must be positive, got %v", amount)
	}
	// One-sided transfers settle against the platform omnibus account.
	if from == "" {
		from = c.cfg.PlatformAccount
	}
	if to == "" {
		to = c.cfg.PlatformAccount
	}
	if from == "" || to == "" {
		return domain.TransferReceipt{}, fmt.Errorf("treasury: execute transfer: from and to accounts are required")
	}

	if err := c.reserve(); err != nil {
		return domain.TransferReceipt{}, fmt.Errorf("treasury: execute transfer: %w", err)
	}

	idempotencyKey := uuid.NewString()

	if c.cfg.DryRun {
		ref := "dry-run-" + idempotencyKey
		c.logger.Info("dry-run transfer",
			slog.String("from", from),
			slog.String("to", to),
			slog.Float64("amount", amount),
			slog.String("transaction_ref", ref))
		return domain.TransferReceipt{TransactionRef: ref}, nil
	}

	body, err := json.Marshal(transferRequest{
		From:           from,
		To:             to,
		Amount:         amount,
		IdempotencyKey: idempotencyKey,
	})
	if err != nil {
		return domain.TransferReceipt{}, fmt.Errorf("treasury: execute transfer: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/transfers", bytes.NewReader(body))
	if err != nil {
		return domain.TransferReceipt{}, fmt.Errorf("treasury: execute transfer: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-Key", c.cfg.ApiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.TransferReceipt{}, fmt.Errorf("treasury: execute transfer: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return domain.TransferReceipt{}, fmt.Errorf("treasury: execute transfer: unexpected status %d: %s", resp.StatusCode, string(msg))
	}

	var payload transferResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return domain.TransferReceipt{}, fmt.Errorf("treasury: execute transfer: decode response: %w", err)
	}
	if payload.TransactionRef == "" {
		return domain.TransferReceipt{}, fmt.Errorf("treasury: execute transfer: response missing transaction_ref")
	}

	c.logger.Info("transfer executed",
		slog.String("from", from),
		slog.String("to", to),
		slog.Float64("amount", amount),
		slog.String("transaction_ref", payload.TransactionRef))

	return domain.TransferReceipt{TransactionRef: payload.TransactionRef}, nil
}

// reserve enforces the per-minute transfer ceiling with a sliding window.
func (c *Client) reserve() error {
	if c.cfg.MaxTransferPerMinute <= 0 {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	cutoff := time.Now().Add(-time.Minute)
	kept := c.window[:0]
	for _, t := range c.window {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	c.window = kept

	if len(c.window) >= c.cfg.MaxTransferPerMinute {
		return fmt.Errorf("transfer rate limit of %d/min reached", c.cfg.MaxTransferPerMinute)
	}

	c.window = append(c.window, time.Now())
	return nil
}
