package escrow

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"path"
	"time"

	domainErrors "github.com/polkiloo/jobber/internal/domain/errors"
	"github.com/polkiloo/jobber/internal/domain/model"
	"github.com/polkiloo/jobber/internal/metrics"
)

// Client exposes the escrow gateway operations used by the orchestrator.
type Client interface {
	CreateOrder(ctx context.Context, req CreateRequest) (*Order, error)
	GetOrder(ctx context.Context, escrowOrderID string) (*Order, error)
	ConfirmPayment(ctx context.Context, escrowOrderID, transactionHash string, blockNumber uint64) (*Order, error)
	MarkDelivered(ctx context.Context, escrowOrderID string) (*Order, error)
	CompleteOrder(ctx context.Context, escrowOrderID string) (*Order, error)
	CancelOrder(ctx context.Context, escrowOrderID, reason string) (*Order, error)
	OpenDispute(ctx context.Context, escrowOrderID, reason string) (*Order, error)
	ResolveDispute(ctx context.Context, escrowOrderID, outcome string) (*Order, error)
}

// CreateRequest is the payload of POST /orders.
type CreateRequest struct {
	JobberOrderID string `json:"jobberOrderId"`
	BuyerAddress  string `json:"buyerAddress"`
	SellerAddress string `json:"sellerAddress"`
	TokenAddress  string `json:"tokenAddress"`
	TokenSymbol   string `json:"tokenSymbol"`
	Amount        string `json:"amount"`
	ChainID       int64  `json:"chainId"`
	AutoRelease   bool   `json:"autoRelease"`
}

// Order mirrors the escrow record returned by the gateway.
type Order struct {
	OrderID         string             `json:"orderId"`
	JobberOrderID   string             `json:"jobberOrderId,omitempty"`
	Status          model.EscrowStatus `json:"status"`
	Amount          string             `json:"amount,omitempty"`
	PlatformFee     string             `json:"platformFee,omitempty"`
	TransactionHash string             `json:"transactionHash,omitempty"`
	BlockNumber     uint64             `json:"blockNumber,omitempty"`
}

// envelope mirrors the gateway response wrapper.
type envelope struct {
	Message     string          `json:"message"`
	Success     *bool           `json:"success,omitempty"`
	Data        json.RawMessage `json:"data,omitempty"`
	CryptoOrder json.RawMessage `json:"cryptoOrder,omitempty"`
}

// HTTPClient implements Client via the gateway REST API.
type HTTPClient struct {
	baseURL    *url.URL
	token      string
	timeout    time.Duration
	httpClient *http.Client
	logger     *slog.Logger
	metrics    *metrics.Metrics
}

// NewHTTPClient creates an escrow client with a per-call timeout.
func NewHTTPClient(baseURL, token string, timeout time.Duration, logger *slog.Logger, m *metrics.Metrics) (*HTTPClient, error) {
	parsed, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse escrow url: %w", err)
	}
	if !parsed.IsAbs() {
		return nil, fmt.Errorf("escrow url must be absolute")
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPClient{
		baseURL:    parsed,
		token:      token,
		timeout:    timeout,
		httpClient: &http.Client{},
		logger:     logger,
		metrics:    m,
	}, nil
}

func (c *HTTPClient) CreateOrder(ctx context.Context, req CreateRequest) (*Order, error) {
	order, err := c.do(ctx, "create", http.MethodPost, "orders", req)
	if err != nil {
		return nil, err
	}
	if order.OrderID == "" {
		return nil, fmt.Errorf("escrow create returned no order id: %w", domainErrors.ErrGateway)
	}
	return order, nil
}

func (c *HTTPClient) GetOrder(ctx context.Context, escrowOrderID string) (*Order, error) {
	return c.do(ctx, "get", http.MethodGet, path.Join("orders", escrowOrderID), nil)
}

func (c *HTTPClient) ConfirmPayment(ctx context.Context, escrowOrderID, transactionHash string, blockNumber uint64) (*Order, error) {
	body := map[string]any{"transactionHash": transactionHash, "blockNumber": blockNumber}
	return c.do(ctx, "confirm_payment", http.MethodPut, path.Join("orders", escrowOrderID, "confirm-payment"), body)
}

func (c *HTTPClient) MarkDelivered(ctx context.Context, escrowOrderID string) (*Order, error) {
	return c.do(ctx, "deliver", http.MethodPut, path.Join("orders", escrowOrderID, "delivered"), struct{}{})
}

func (c *HTTPClient) CompleteOrder(ctx context.Context, escrowOrderID string) (*Order, error) {
	return c.do(ctx, "complete", http.MethodPut, path.Join("orders", escrowOrderID, "complete"), struct{}{})
}

func (c *HTTPClient) CancelOrder(ctx context.Context, escrowOrderID, reason string) (*Order, error) {
	return c.do(ctx, "cancel", http.MethodPut, path.Join("orders", escrowOrderID, "cancel"), map[string]string{"reason": reason})
}

func (c *HTTPClient) OpenDispute(ctx context.Context, escrowOrderID, reason string) (*Order, error) {
	return c.do(ctx, "dispute", http.MethodPut, path.Join("orders", escrowOrderID, "dispute"), map[string]string{"reason": reason})
}

func (c *HTTPClient) ResolveDispute(ctx context.Context, escrowOrderID, outcome string) (*Order, error) {
	return c.do(ctx, "resolve_dispute", http.MethodPut, path.Join("orders", escrowOrderID, "resolve-dispute"), map[string]string{"outcome": outcome})
}

func (c *HTTPClient) do(ctx context.Context, operation, method, resource string, payload any) (*Order, error) {
	started := time.Now()
	defer func() {
		c.metrics.EscrowRequestDuration.WithLabelValues(operation).Observe(time.Since(started).Seconds())
	}()

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	endpoint := *c.baseURL
	endpoint.Path = path.Join(endpoint.Path, resource)

	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode escrow %s request: %w", operation, err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint.String(), body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if isTimeout(ctx, err) {
			return nil, fmt.Errorf("escrow %s: %w", operation, domainErrors.ErrGatewayTimeout)
		}
		return nil, fmt.Errorf("escrow %s: %v: %w", operation, err, domainErrors.ErrGateway)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		if isTimeout(ctx, err) {
			return nil, fmt.Errorf("escrow %s: %w", operation, domainErrors.ErrGatewayTimeout)
		}
		return nil, fmt.Errorf("escrow %s: read body: %v: %w", operation, err, domainErrors.ErrGateway)
	}

	var env envelope
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &env); err != nil && resp.StatusCode < 300 {
			return nil, fmt.Errorf("escrow %s: decode response: %v: %w", operation, err, domainErrors.ErrGateway)
		}
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("escrow %s: %s: %w", operation, env.Message, domainErrors.ErrNotFound)
	case resp.StatusCode >= 300 || (env.Success != nil && !*env.Success):
		c.logger.Error("escrow request failed",
			slog.String("operation", operation),
			slog.Int("status", resp.StatusCode),
			slog.String("message", env.Message))
		return nil, fmt.Errorf("escrow %s rejected (%s): %s: %w", operation, resp.Status, env.Message, domainErrors.ErrGateway)
	}

	data := env.Data
	if len(data) == 0 {
		data = env.CryptoOrder
	}
	var order Order
	if len(data) > 0 {
		if err := json.Unmarshal(data, &order); err != nil {
			return nil, fmt.Errorf("escrow %s: decode order: %v: %w", operation, err, domainErrors.ErrGateway)
		}
	}
	return &order, nil
}

func isTimeout(ctx context.Context, err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
