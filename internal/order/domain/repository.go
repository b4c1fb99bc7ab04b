package domain

import (
	"context"
	"time"

	"gorm.io/gorm"
)

// Mutation is applied atomically by CompareAndUpdate. Nil fields are left
// untouched.
type Mutation struct {
	Status           Status
	DeliveryStatus   *DeliveryStatus
	GatewayPaymentID *string
	GatewaySignature *string
	PaymentMethod    *string
	WebhookConfirmed *bool
	PaidAt           *time.Time
	UpdatedAt        time.Time
}

// Annotation fills in details on an order that is already paid. Existing
// values are never overwritten.
type Annotation struct {
	WebhookConfirmed bool
	GatewayPaymentID *string
	GatewaySignature *string
	PaymentMethod    *string
	UpdatedAt        time.Time
}

type Repository interface {
	Create(ctx context.Context, db *gorm.DB, order *Order) error
	FindByOrderID(ctx context.Context, db *gorm.DB, orderID string) (*Order, error)
	FindByGatewayOrderID(ctx context.Context, db *gorm.DB, gatewayOrderID string) (*Order, error)
	// CompareAndUpdate applies m only while the row still has status expected.
	// It returns ErrConflict when the status moved and ErrNotFound when the
	// row does not exist.
	CompareAndUpdate(ctx context.Context, db *gorm.DB, orderID string, expected Status, m Mutation) error
	AttachGatewayOrderID(ctx context.Context, db *gorm.DB, orderID, gatewayOrderID string, now time.Time) error
	AnnotatePaid(ctx context.Context, db *gorm.DB, orderID string, a Annotation) (bool, error)
	AdvanceDelivery(ctx context.Context, db *gorm.DB, orderID string, from, to DeliveryStatus, now time.Time) error
	ListAwaitingFulfillment(ctx context.Context, db *gorm.DB, limit int) ([]Order, error)
}
