package gateway

import (
	"context"
	"errors"
	"fmt"

	"github.com/smallbiznis/topup/internal/payment/amount"
)

// ErrGateway is matched by every failure returned from a Client.
var ErrGateway = errors.New("gateway_error")

// Client creates remote orders on the payment gateway. It holds no local state.
type Client interface {
	CreateOrder(ctx context.Context, req CreateOrderRequest) (*RemoteOrder, error)
}

type CreateOrderRequest struct {
	Amount   int64
	Currency amount.Currency
	Receipt  string
	Notes    map[string]string
}

type RemoteOrder struct {
	ID       string
	Amount   int64
	Currency string
	Receipt  string
	Status   string
}

// Error describes a failed gateway call.
type Error struct {
	Op         string
	StatusCode int
	Code       string
	Message    string
	Err        error
}

func (e *Error) Error() string {
	switch {
	case e.StatusCode != 0 && e.Message != "":
		return fmt.Sprintf("gateway %s: status %d: %s", e.Op, e.StatusCode, e.Message)
	case e.StatusCode != 0:
		return fmt.Sprintf("gateway %s: status %d", e.Op, e.StatusCode)
	case e.Err != nil:
		return fmt.Sprintf("gateway %s: %v", e.Op, e.Err)
	default:
		return fmt.Sprintf("gateway %s failed", e.Op)
	}
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool { return target == ErrGateway }
