package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusPending  Status = "pending"
	StatusPaid     Status = "paid"
	StatusFailed   Status = "failed"
	StatusRefunded Status = "refunded"
)

type DeliveryStatus string

const (
	DeliveryPending    DeliveryStatus = "pending"
	DeliveryProcessing DeliveryStatus = "processing"
	DeliveryCompleted  DeliveryStatus = "completed"
	DeliveryFailed     DeliveryStatus = "failed"
)

// Source identifies which signal drove a confirmation.
type Source string

const (
	SourceClient  Source = "client"
	SourceWebhook Source = "webhook"
)

func (s Source) Valid() bool {
	return s == SourceClient || s == SourceWebhook
}

// Order is one purchase attempt. Product fields are a snapshot taken at
// creation and are never recomputed from the catalog.
type Order struct {
	ID               int64           `json:"id" gorm:"primaryKey"`
	OrderID          string          `json:"order_id" gorm:"column:order_id;size:64;not null;uniqueIndex:ux_orders_order_id"`
	GatewayOrderID   *string         `json:"gateway_order_id,omitempty" gorm:"column:gateway_order_id;size:64;uniqueIndex:ux_orders_gateway_order_id"`
	GatewayPaymentID *string         `json:"gateway_payment_id,omitempty" gorm:"column:gateway_payment_id;type:text"`
	GatewaySignature *string         `json:"-" gorm:"column:gateway_signature;type:text"`
	PaymentMethod    *string         `json:"payment_method,omitempty" gorm:"column:payment_method;type:text"`
	ProductID        int64           `json:"product_id" gorm:"column:product_id;not null"`
	ProductName      string          `json:"product_name" gorm:"column:product_name;type:text;not null"`
	ProductCoins     int64           `json:"product_coins" gorm:"column:product_coins;not null"`
	ProductPriceINR  decimal.Decimal `json:"product_price_inr" gorm:"column:product_price_inr;type:numeric(12,2);not null"`
	ProductPriceUSD  decimal.Decimal `json:"product_price_usd" gorm:"column:product_price_usd;type:numeric(12,2);not null"`
	CustomerEmail    string          `json:"customer_email" gorm:"column:customer_email;type:text;not null"`
	GameUID          string          `json:"game_uid" gorm:"column:game_uid;type:text;not null"`
	AmountMinor      int64           `json:"amount_minor" gorm:"column:amount_minor;not null"`
	Currency         string          `json:"currency" gorm:"column:currency;size:3;not null"`
	Status           Status          `json:"status" gorm:"column:status;size:16;not null;index:ix_orders_fulfillment,priority:1"`
	DeliveryStatus   DeliveryStatus  `json:"delivery_status" gorm:"column:delivery_status;size:16;not null;index:ix_orders_fulfillment,priority:2"`
	WebhookConfirmed bool            `json:"webhook_confirmed" gorm:"column:webhook_confirmed;not null"`
	PaidAt           *time.Time      `json:"paid_at,omitempty" gorm:"column:paid_at"`
	DeliveredAt      *time.Time      `json:"delivered_at,omitempty" gorm:"column:delivered_at"`
	CreatedAt        time.Time       `json:"created_at" gorm:"not null"`
	UpdatedAt        time.Time       `json:"updated_at" gorm:"not null"`
}

func (Order) TableName() string { return "orders" }

func (o *Order) HasGatewayOrder() bool {
	return o.GatewayOrderID != nil && *o.GatewayOrderID != ""
}
