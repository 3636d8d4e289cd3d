package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/dropDatabas3/paygate/internal/observability/logger"
)

// HTTPClient implements Client against the processor's REST API.
type HTTPClient struct {
	BaseURL string
	APIKey  string
	HTTP    *http.Client
}

func NewHTTPClient(baseURL, apiKey string, timeout time.Duration) *HTTPClient {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &HTTPClient{
		BaseURL: strings.TrimRight(baseURL, "/"),
		APIKey:  apiKey,
		HTTP:    &http.Client{Timeout: timeout},
	}
}

func (c *HTTPClient) do(ctx context.Context, op, method, path string, body any, out any) error {
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return &Error{Op: op, Msg: err.Error()}
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, rd)
	if err != nil {
		return &Error{Op: op, Msg: err.Error()}
	}
	req.Header.Set("Authorization", "Bearer "+c.APIKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return &Error{Op: op, Msg: sanitize(err.Error(), c.APIKey)}
	}
	defer resp.Body.Close()

	b, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if resp.StatusCode/100 != 2 {
		logger.Named("payment").Warn("processor call failed",
			logger.Op(op), logger.Status(resp.StatusCode))
		return &Error{Op: op, Status: resp.StatusCode, Msg: sanitize(string(b), c.APIKey)}
	}
	if out != nil {
		if err := json.Unmarshal(b, out); err != nil {
			return &Error{Op: op, Status: resp.StatusCode, Msg: "malformed response body"}
		}
	}
	return nil
}

// sanitize keeps processor errors verbatim minus secrets.
func sanitize(s, secret string) string {
	if secret == "" {
		return s
	}
	return strings.ReplaceAll(s, secret, "[redacted]")
}

func (c *HTTPClient) CreateCheckout(ctx context.Context, req CheckoutRequest) (*CheckoutSession, error) {
	payload := map[string]any{
		"amount":      req.AmountMinorUnits,
		"currency":    req.Currency,
		"description": req.Description,
		"metadata": map[string]string{
			"entitlement_id": req.EntitlementID,
			"tenant_id":      req.TenantID,
		},
	}
	var out struct {
		ID          string `json:"id"`
		RedirectURL string `json:"redirect_url"`
	}
	if err := c.do(ctx, "create_checkout", http.MethodPost, "/v1/checkout_sessions", payload, &out); err != nil {
		return nil, err
	}
	return &CheckoutSession{SessionRef: out.ID, RedirectURL: out.RedirectURL}, nil
}

func (c *HTTPClient) Refund(ctx context.Context, paymentRef string, amountMinorUnits int64, reason string) (string, error) {
	payload := map[string]any{
		"payment_ref": paymentRef,
		"amount":      amountMinorUnits,
		"reason":      reason,
	}
	var out struct {
		ID string `json:"id"`
	}
	if err := c.do(ctx, "refund", http.MethodPost, "/v1/refunds", payload, &out); err != nil {
		return "", err
	}
	if out.ID == "" {
		return "", &Error{Op: "refund", Msg: "processor returned no refund id"}
	}
	return out.ID, nil
}

func (c *HTTPClient) Status(ctx context.Context, sessionRef string) (*CheckoutStatus, error) {
	var out struct {
		Status     string `json:"status"`
		PaymentRef string `json:"payment_ref"`
	}
	path := fmt.Sprintf("/v1/checkout_sessions/%s", sessionRef)
	if err := c.do(ctx, "checkout_status", http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	switch out.Status {
	case "completed", "paid":
		return &CheckoutStatus{State: CheckoutCompleted, PaymentRef: out.PaymentRef}, nil
	case "expired", "canceled":
		return &CheckoutStatus{State: CheckoutExpired}, nil
	default:
		return &CheckoutStatus{State: CheckoutPending}, nil
	}
}
