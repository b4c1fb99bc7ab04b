package domain

import (
	"encoding/json"
	"strings"
)

// Envelope is the subset of a Razorpay webhook body the service reads.
type Envelope struct {
	Entity    string   `json:"entity"`
	AccountID string   `json:"account_id"`
	Event     string   `json:"event"`
	Contains  []string `json:"contains"`
	Payload   struct {
		Payment *struct {
			Entity PaymentEntity `json:"entity"`
		} `json:"payment"`
		Order *struct {
			Entity OrderEntity `json:"entity"`
		} `json:"order"`
	} `json:"payload"`
	CreatedAt int64 `json:"created_at"`
}

type PaymentEntity struct {
	ID          string          `json:"id"`
	OrderID     string          `json:"order_id"`
	Method      string          `json:"method"`
	Status      string          `json:"status"`
	Amount      int64           `json:"amount"`
	Currency    string          `json:"currency"`
	Notes       json.RawMessage `json:"notes"`
	ErrorCode   string          `json:"error_code"`
	ErrorReason string          `json:"error_reason"`
}

type OrderEntity struct {
	ID      string          `json:"id"`
	Receipt string          `json:"receipt"`
	Status  string          `json:"status"`
	Amount  int64           `json:"amount"`
	Notes   json.RawMessage `json:"notes"`
}

// Payment returns the payment entity or a zero value.
func (e Envelope) Payment() PaymentEntity {
	if e.Payload.Payment == nil {
		return PaymentEntity{}
	}
	return e.Payload.Payment.Entity
}

func (e Envelope) Order() OrderEntity {
	if e.Payload.Order == nil {
		return OrderEntity{}
	}
	return e.Payload.Order.Entity
}

// GatewayOrderID prefers the order entity and falls back to the payment's order reference.
func (e Envelope) GatewayOrderID() string {
	if id := strings.TrimSpace(e.Order().ID); id != "" {
		return id
	}
	return strings.TrimSpace(e.Payment().OrderID)
}

// LocalOrderID reads the orderId note written at order creation. The receipt
// carries the same value.
func (e Envelope) LocalOrderID() string {
	if id := noteValue(e.Payment().Notes, "orderId"); id != "" {
		return id
	}
	if id := noteValue(e.Order().Notes, "orderId"); id != "" {
		return id
	}
	return strings.TrimSpace(e.Order().Receipt)
}

// noteValue tolerates notes sent as an empty JSON array.
func noteValue(raw json.RawMessage, key string) string {
	if len(raw) == 0 {
		return ""
	}
	var notes map[string]any
	if err := json.Unmarshal(raw, &notes); err != nil {
		return ""
	}
	v, ok := notes[key].(string)
	if !ok {
		return ""
	}
	return strings.TrimSpace(v)
}
