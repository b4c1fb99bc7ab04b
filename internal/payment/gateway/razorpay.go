package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	DefaultBaseURL = "https://api.razorpay.com"
	DefaultTimeout = 12 * time.Second

	opCreateOrder = "create_order"
)

type RazorpayConfig struct {
	KeyID     string
	KeySecret string
	BaseURL   string
	Timeout   time.Duration
}

type razorpayOrderRequest struct {
	Amount   int64             `json:"amount"`
	Currency string            `json:"currency"`
	Receipt  string            `json:"receipt"`
	Notes    map[string]string `json:"notes,omitempty"`
}

type razorpayOrder struct {
	ID       string `json:"id"`
	Entity   string `json:"entity"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Receipt  string `json:"receipt"`
	Status   string `json:"status"`
}

type razorpayErrorResponse struct {
	Error struct {
		Code        string `json:"code"`
		Description string `json:"description"`
	} `json:"error"`
}

type razorpayClient struct {
	keyID     string
	keySecret string
	baseURL   string
	client    *http.Client
}

// NewRazorpay returns a Client for the Razorpay orders API.
func NewRazorpay(cfg RazorpayConfig) Client {
	return newRazorpayClient(cfg, nil)
}

func newRazorpayClient(cfg RazorpayConfig, httpClient *http.Client) *razorpayClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &razorpayClient{
		keyID:     strings.TrimSpace(cfg.KeyID),
		keySecret: strings.TrimSpace(cfg.KeySecret),
		baseURL:   baseURL,
		client:    httpClient,
	}
}

func (c *razorpayClient) CreateOrder(ctx context.Context, req CreateOrderRequest) (*RemoteOrder, error) {
	if c.keyID == "" || c.keySecret == "" {
		return nil, &Error{Op: opCreateOrder, Message: "credentials not configured"}
	}
	if req.Amount <= 0 {
		return nil, &Error{Op: opCreateOrder, Message: "amount must be positive"}
	}

	body, err := json.Marshal(razorpayOrderRequest{
		Amount:   req.Amount,
		Currency: req.Currency.String(),
		Receipt:  req.Receipt,
		Notes:    req.Notes,
	})
	if err != nil {
		return nil, &Error{Op: opCreateOrder, Err: err}
	}

	var out razorpayOrder
	if err := c.do(ctx, http.MethodPost, "/v1/orders", body, &out); err != nil {
		return nil, err
	}
	if strings.TrimSpace(out.ID) == "" {
		return nil, &Error{Op: opCreateOrder, Message: "response missing order id"}
	}

	return &RemoteOrder{
		ID:       out.ID,
		Amount:   out.Amount,
		Currency: out.Currency,
		Receipt:  out.Receipt,
		Status:   out.Status,
	}, nil
}

func (c *razorpayClient) do(ctx context.Context, method, path string, body []byte, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return &Error{Op: opCreateOrder, Err: err}
	}
	req.SetBasicAuth(c.keyID, c.keySecret)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return &Error{Op: opCreateOrder, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return &Error{Op: opCreateOrder, StatusCode: resp.StatusCode, Err: err}
	}

	if resp.StatusCode >= http.StatusBadRequest {
		var gwErr razorpayErrorResponse
		if err := json.Unmarshal(raw, &gwErr); err != nil {
			return &Error{Op: opCreateOrder, StatusCode: resp.StatusCode, Message: "razorpay_request_failed"}
		}
		message := strings.TrimSpace(gwErr.Error.Description)
		if message == "" {
			message = "razorpay_request_failed"
		}
		return &Error{
			Op:         opCreateOrder,
			StatusCode: resp.StatusCode,
			Code:       strings.TrimSpace(gwErr.Error.Code),
			Message:    message,
		}
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return &Error{Op: opCreateOrder, StatusCode: resp.StatusCode, Err: errors.Join(errors.New("razorpay_response_invalid"), err)}
	}
	return nil
}
