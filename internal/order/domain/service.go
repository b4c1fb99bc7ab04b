package domain

import (
	"context"
	"errors"
)

type Service interface {
	// CreateOrder persists a pending order and then creates its gateway
	// order. When only the gateway step fails, the response still carries
	// the persisted order alongside the error.
	CreateOrder(ctx context.Context, req CreateOrderRequest) (*CreateOrderResponse, error)
	RetryGatewayOrder(ctx context.Context, orderID string) (*CreateOrderResponse, error)
	ConfirmPayment(ctx context.Context, req ConfirmRequest) (*ConfirmResult, error)
	GetOrder(ctx context.Context, orderID string) (*Order, error)
	ListAwaitingFulfillment(ctx context.Context, limit int) ([]Order, error)
	AdvanceDelivery(ctx context.Context, orderID string, to DeliveryStatus) (*Order, error)
}

type CreateOrderRequest struct {
	ProductID     string
	CustomerEmail string
	GameUID       string
	Currency      string
}

type CreateOrderResponse struct {
	Order *Order
	// KeyID is the public gateway key the checkout widget needs.
	KeyID string
}

// ConfirmRequest carries one confirmation signal. Client confirmations name
// the order by OrderID and must present a signature; webhook confirmations
// name it by GatewayOrderID and arrive already authenticated.
type ConfirmRequest struct {
	Source           Source
	OrderID          string
	GatewayOrderID   string
	GatewayPaymentID string
	Signature        string
	PaymentMethod    string
}

type ConfirmResult struct {
	Order        *Order
	Transitioned bool
	AlreadyPaid  bool
}

var (
	ErrNotFound               = errors.New("not_found")
	ErrConflict               = errors.New("conflict")
	ErrDuplicateOrder         = errors.New("duplicate_order")
	ErrGatewayOrderAlreadySet = errors.New("gateway_order_already_set")
	ErrUnauthenticated        = errors.New("unauthenticated")
	ErrInvalidTransition      = errors.New("invalid_transition")
	ErrInvalidSource          = errors.New("invalid_source")
	ErrInvalidOrderID         = errors.New("invalid_order_id")
	ErrInvalidProductID       = errors.New("invalid_product_id")
	ErrInvalidCustomerEmail   = errors.New("invalid_customer_email")
	ErrInvalidGameUID         = errors.New("invalid_game_uid")
	ErrInvalidPaymentID       = errors.New("invalid_gateway_payment_id")
	ErrInvalidLimit           = errors.New("invalid_limit")
)
