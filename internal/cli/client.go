package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

type Client struct {
	BaseURL string
	HTTP    *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTP: &http.Client{
			// Orders block on the confirmation modal.
			Timeout: 5 * time.Minute,
		},
	}
}

// APIError carries the status and message of a non-2xx response.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api status %d: %s", e.Status, e.Message)
}

func (c *Client) Dashboard(ctx context.Context) (map[string]any, error) {
	return c.Do(ctx, http.MethodGet, "/v1/dashboard", nil)
}

func (c *Client) ListStocks(ctx context.Context) (map[string]any, error) {
	return c.Do(ctx, http.MethodGet, "/v1/stocks", nil)
}

func (c *Client) StockDetail(ctx context.Context, id string) (map[string]any, error) {
	return c.Do(ctx, http.MethodGet, "/v1/stocks/"+url.PathEscape(id), nil)
}

func (c *Client) PlaceOrder(ctx context.Context, id, side string, qty int64) (map[string]any, error) {
	return c.Do(ctx, http.MethodPost, "/v1/orders", map[string]any{
		"instrument_id": id,
		"side":          side,
		"quantity":      qty,
	})
}

func (c *Client) Ledger(ctx context.Context) (map[string]any, error) {
	return c.Do(ctx, http.MethodGet, "/v1/ledger", nil)
}

func (c *Client) TakeLoan(ctx context.Context, amount int64) (map[string]any, error) {
	return c.Do(ctx, http.MethodPost, "/v1/loans/take", map[string]any{"amount": amount})
}

func (c *Client) RepayLoan(ctx context.Context, amount int64) (map[string]any, error) {
	return c.Do(ctx, http.MethodPost, "/v1/loans/repay", map[string]any{"amount": amount})
}

func (c *Client) SetRepaymentPlan(ctx context.Context, amount int64) (map[string]any, error) {
	return c.Do(ctx, http.MethodPost, "/v1/loans/plan", map[string]any{"amount": amount})
}

// Budget adjusts the monthly income or expense line. kind is "income" or
// "expense".
func (c *Client) Budget(ctx context.Context, kind string, amount int64, remove bool) (map[string]any, error) {
	return c.Do(ctx, http.MethodPost, "/v1/budget/"+url.PathEscape(kind), map[string]any{
		"amount": amount,
		"remove": remove,
	})
}

func (c *Client) SetSpeed(ctx context.Context, multiplier float64) (map[string]any, error) {
	return c.Do(ctx, http.MethodPost, "/v1/clock/speed", map[string]any{"multiplier": multiplier})
}

func (c *Client) Pause(ctx context.Context) (map[string]any, error) {
	return c.Do(ctx, http.MethodPost, "/v1/clock/pause", nil)
}

func (c *Client) Reset(ctx context.Context) (map[string]any, error) {
	return c.Do(ctx, http.MethodPost, "/v1/reset", nil)
}

func (c *Client) Resume(ctx context.Context) (map[string]any, error) {
	return c.Do(ctx, http.MethodPost, "/v1/clock/resume", nil)
}

func (c *Client) Achievements(ctx context.Context) (map[string]any, error) {
	return c.Do(ctx, http.MethodGet, "/v1/achievements", nil)
}

func (c *Client) TriggerEvent(ctx context.Context, id string) (map[string]any, error) {
	return c.Do(ctx, http.MethodPost, "/v1/events/"+url.PathEscape(id)+"/trigger", nil)
}

// ActiveModal returns nil without error when nothing is on screen.
func (c *Client) ActiveModal(ctx context.Context) (map[string]any, error) {
	return c.Do(ctx, http.MethodGet, "/v1/modals/active", nil)
}

func (c *Client) RespondModal(ctx context.Context, id string, answer bool) (map[string]any, error) {
	return c.Do(ctx, http.MethodPost, "/v1/modals/"+url.PathEscape(id)+"/respond", map[string]any{"answer": answer})
}

func (c *Client) Journal(ctx context.Context, limit int) (map[string]any, error) {
	return c.Do(ctx, http.MethodGet, fmt.Sprintf("/v1/journal?limit=%d", limit), nil)
}

func (c *Client) Do(ctx context.Context, method, path string, body map[string]any) (map[string]any, error) {
	var out map[string]any
	var in any
	if body != nil {
		in = body
	}
	err := c.jsonRequest(ctx, method, path, in, &out)
	return out, err
}

func (c *Client) jsonRequest(ctx context.Context, method, path string, in any, out any) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &APIError{Status: resp.StatusCode, Message: errorMessage(raw)}
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func errorMessage(raw []byte) string {
	var body struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(raw, &body); err == nil && body.Error != "" {
		return body.Error
	}
	return strings.TrimSpace(string(raw))
}
