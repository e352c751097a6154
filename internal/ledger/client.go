package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/marcinparda/actual/internal/fault"
)

// API is the ledger surface consumed by the receipt pipeline.
type API interface {
	// Ready reports whether the ledger has bootstrapped. Every receipt
	// operation is gated on it.
	Ready(ctx context.Context) error

	// Accounts returns the read-only account directory.
	Accounts(ctx context.Context) ([]Account, error)

	// Categories returns the read-only category directory.
	Categories(ctx context.Context) ([]Category, error)

	// Payees returns the read-only payee directory.
	Payees(ctx context.Context) ([]Payee, error)

	// CreatePayee creates a payee and returns its generated id.
	CreatePayee(ctx context.Context, name string) (string, error)

	// AddTransactions submits all drafts as a single atomic batch. A
	// partially failed batch is never retried here; failure surfaces whole.
	AddTransactions(ctx context.Context, transactions []Transaction) error
}

// envelope is the uniform ledger response wrapper. A response is a failure
// when EITHER the transport status is non-2xx or Status != "ok".
type envelope struct {
	Status  string          `json:"status"`
	Data    json.RawMessage `json:"data,omitempty"`
	Message string          `json:"message,omitempty"`
	Reason  string          `json:"reason,omitempty"`
}

// Client implements API over HTTP.
type Client struct {
	baseURL string
	client  *http.Client
}

// NewClient creates a ledger client for the given base URL.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// call performs one request and decodes the envelope's data into out when
// out is non-nil.
func (c *Client) call(ctx context.Context, method, path string, body any, out any) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshaling request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fault.Wrap(fault.KindProcessing, fmt.Sprintf("calling ledger %s %s", method, path), err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fault.Wrap(fault.KindProcessing, "reading ledger response", err)
	}

	var env envelope
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &env); err != nil {
			return fault.Wrap(fault.KindProcessing, "decoding ledger response", err)
		}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 || env.Status != "ok" {
		msg := env.Message
		if msg == "" {
			msg = env.Reason
		}
		if msg == "" {
			msg = fmt.Sprintf("status %d", resp.StatusCode)
		}
		return fault.Errorf(fault.KindProcessing, "ledger %s %s failed: %s", method, path, msg)
	}

	if out != nil {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return fault.Wrap(fault.KindProcessing, "decoding ledger data", err)
		}
	}
	return nil
}

// Ready probes the ledger's readiness endpoint.
func (c *Client) Ready(ctx context.Context) error {
	if err := c.call(ctx, http.MethodGet, "/health", nil, nil); err != nil {
		return fault.Wrap(fault.KindUnavailable, "ledger is not ready", err)
	}
	return nil
}

// Accounts returns the read-only account directory.
func (c *Client) Accounts(ctx context.Context) ([]Account, error) {
	var accounts []Account
	if err := c.call(ctx, http.MethodGet, "/accounts", nil, &accounts); err != nil {
		return nil, err
	}
	return accounts, nil
}

// Categories returns the read-only category directory.
func (c *Client) Categories(ctx context.Context) ([]Category, error) {
	var categories []Category
	if err := c.call(ctx, http.MethodGet, "/categories", nil, &categories); err != nil {
		return nil, err
	}
	return categories, nil
}

// Payees returns the read-only payee directory.
func (c *Client) Payees(ctx context.Context) ([]Payee, error) {
	var payees []Payee
	if err := c.call(ctx, http.MethodGet, "/payees", nil, &payees); err != nil {
		return nil, err
	}
	return payees, nil
}

// CreatePayee creates a payee with the given name and returns its id.
func (c *Client) CreatePayee(ctx context.Context, name string) (string, error) {
	var created struct {
		ID string `json:"id"`
	}
	body := map[string]string{"name": name}
	if err := c.call(ctx, http.MethodPost, "/payees", body, &created); err != nil {
		return "", err
	}
	return created.ID, nil
}

// AddTransactions submits the drafts as a single atomic batch.
func (c *Client) AddTransactions(ctx context.Context, transactions []Transaction) error {
	body := map[string]any{"transactions": transactions}
	return c.call(ctx, http.MethodPost, "/transactions", body, nil)
}
