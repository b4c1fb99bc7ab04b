package repository

import (
	"context"
	"strings"
	"time"

	"github.com/smallbiznis/topup/internal/order/domain"
	"github.com/smallbiznis/topup/pkg/db"
	"gorm.io/gorm"
)

const orderColumns = `id, order_id, gateway_order_id, gateway_payment_id, gateway_signature, payment_method,
	product_id, product_name, product_coins, product_price_inr, product_price_usd,
	customer_email, game_uid, amount_minor, currency, status, delivery_status,
	webhook_confirmed, paid_at, delivered_at, created_at, updated_at`

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Create(ctx context.Context, conn *gorm.DB, order *domain.Order) error {
	err := conn.WithContext(ctx).Exec(
		`INSERT INTO orders (`+orderColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		order.ID,
		order.OrderID,
		order.GatewayOrderID,
		order.GatewayPaymentID,
		order.GatewaySignature,
		order.PaymentMethod,
		order.ProductID,
		order.ProductName,
		order.ProductCoins,
		order.ProductPriceINR,
		order.ProductPriceUSD,
		order.CustomerEmail,
		order.GameUID,
		order.AmountMinor,
		order.Currency,
		order.Status,
		order.DeliveryStatus,
		order.WebhookConfirmed,
		order.PaidAt,
		order.DeliveredAt,
		order.CreatedAt,
		order.UpdatedAt,
	).Error
	if db.IsDuplicateKeyErr(err) {
		return domain.ErrDuplicateOrder
	}
	return err
}

func (r *repo) FindByOrderID(ctx context.Context, conn *gorm.DB, orderID string) (*domain.Order, error) {
	return r.findOne(ctx, conn, `order_id = ?`, orderID)
}

func (r *repo) FindByGatewayOrderID(ctx context.Context, conn *gorm.DB, gatewayOrderID string) (*domain.Order, error) {
	return r.findOne(ctx, conn, `gateway_order_id = ?`, gatewayOrderID)
}

func (r *repo) findOne(ctx context.Context, conn *gorm.DB, where string, arg any) (*domain.Order, error) {
	var o domain.Order
	err := conn.WithContext(ctx).Raw(
		`SELECT `+orderColumns+` FROM orders WHERE `+where,
		arg,
	).Scan(&o).Error
	if err != nil {
		return nil, err
	}
	if o.ID == 0 {
		return nil, nil
	}
	return &o, nil
}

func (r *repo) CompareAndUpdate(ctx context.Context, conn *gorm.DB, orderID string, expected domain.Status, m domain.Mutation) error {
	if !domain.CanTransition(expected, m.Status) {
		return domain.ErrInvalidTransition
	}

	sets := []string{"status = ?", "updated_at = ?"}
	args := []any{m.Status, m.UpdatedAt}
	if m.DeliveryStatus != nil {
		sets = append(sets, "delivery_status = ?")
		args = append(args, *m.DeliveryStatus)
	}
	if m.GatewayPaymentID != nil {
		sets = append(sets, "gateway_payment_id = ?")
		args = append(args, *m.GatewayPaymentID)
	}
	if m.GatewaySignature != nil {
		sets = append(sets, "gateway_signature = ?")
		args = append(args, *m.GatewaySignature)
	}
	if m.PaymentMethod != nil {
		sets = append(sets, "payment_method = ?")
		args = append(args, *m.PaymentMethod)
	}
	if m.WebhookConfirmed != nil {
		sets = append(sets, "webhook_confirmed = ?")
		args = append(args, *m.WebhookConfirmed)
	}
	if m.PaidAt != nil {
		sets = append(sets, "paid_at = ?")
		args = append(args, *m.PaidAt)
	}
	args = append(args, orderID, expected)

	result := conn.WithContext(ctx).Exec(
		`UPDATE orders SET `+strings.Join(sets, ", ")+` WHERE order_id = ? AND status = ?`,
		args...,
	)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected > 0 {
		return nil
	}

	current, err := r.FindByOrderID(ctx, conn, orderID)
	if err != nil {
		return err
	}
	if current == nil {
		return domain.ErrNotFound
	}
	return domain.ErrConflict
}

func (r *repo) AttachGatewayOrderID(ctx context.Context, conn *gorm.DB, orderID, gatewayOrderID string, now time.Time) error {
	result := conn.WithContext(ctx).Exec(
		`UPDATE orders SET gateway_order_id = ?, updated_at = ?
		 WHERE order_id = ? AND gateway_order_id IS NULL AND status = ?`,
		gatewayOrderID,
		now,
		orderID,
		domain.StatusPending,
	)
	if result.Error != nil {
		if db.IsDuplicateKeyErr(result.Error) {
			return domain.ErrGatewayOrderAlreadySet
		}
		return result.Error
	}
	if result.RowsAffected > 0 {
		return nil
	}

	current, err := r.FindByOrderID(ctx, conn, orderID)
	if err != nil {
		return err
	}
	switch {
	case current == nil:
		return domain.ErrNotFound
	case current.HasGatewayOrder():
		return domain.ErrGatewayOrderAlreadySet
	default:
		return domain.ErrInvalidTransition
	}
}

func (r *repo) AnnotatePaid(ctx context.Context, conn *gorm.DB, orderID string, a domain.Annotation) (bool, error) {
	sets := []string{"updated_at = ?"}
	args := []any{a.UpdatedAt}
	pending := []string{}
	if a.WebhookConfirmed {
		sets = append(sets, "webhook_confirmed = ?")
		args = append(args, true)
		pending = append(pending, "webhook_confirmed = ?")
	}
	if a.GatewayPaymentID != nil {
		sets = append(sets, "gateway_payment_id = COALESCE(gateway_payment_id, ?)")
		args = append(args, *a.GatewayPaymentID)
		pending = append(pending, "gateway_payment_id IS NULL")
	}
	if a.GatewaySignature != nil {
		sets = append(sets, "gateway_signature = COALESCE(gateway_signature, ?)")
		args = append(args, *a.GatewaySignature)
		pending = append(pending, "gateway_signature IS NULL")
	}
	if a.PaymentMethod != nil {
		sets = append(sets, "payment_method = COALESCE(payment_method, ?)")
		args = append(args, *a.PaymentMethod)
		pending = append(pending, "payment_method IS NULL")
	}
	if len(pending) == 0 {
		return false, nil
	}

	args = append(args, orderID, domain.StatusPaid)
	if a.WebhookConfirmed {
		args = append(args, false)
	}

	// The row is only touched when at least one value is still missing.
	result := conn.WithContext(ctx).Exec(
		`UPDATE orders SET `+strings.Join(sets, ", ")+
			` WHERE order_id = ? AND status = ? AND (`+strings.Join(pending, " OR ")+`)`,
		args...,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repo) AdvanceDelivery(ctx context.Context, conn *gorm.DB, orderID string, from, to domain.DeliveryStatus, now time.Time) error {
	if !domain.CanAdvanceDelivery(from, to) {
		return domain.ErrInvalidTransition
	}

	var deliveredAt *time.Time
	if to == domain.DeliveryCompleted {
		deliveredAt = &now
	}

	result := conn.WithContext(ctx).Exec(
		`UPDATE orders SET delivery_status = ?, delivered_at = COALESCE(?, delivered_at), updated_at = ?
		 WHERE order_id = ? AND status = ? AND delivery_status = ?`,
		to,
		deliveredAt,
		now,
		orderID,
		domain.StatusPaid,
		from,
	)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected > 0 {
		return nil
	}

	current, err := r.FindByOrderID(ctx, conn, orderID)
	if err != nil {
		return err
	}
	if current == nil {
		return domain.ErrNotFound
	}
	return domain.ErrConflict
}

func (r *repo) ListAwaitingFulfillment(ctx context.Context, conn *gorm.DB, limit int) ([]domain.Order, error) {
	var items []domain.Order
	err := conn.WithContext(ctx).Raw(
		`SELECT `+orderColumns+` FROM orders
		 WHERE status = ? AND delivery_status = ?
		 ORDER BY paid_at ASC, id ASC
		 LIMIT ?`,
		domain.StatusPaid,
		domain.DeliveryProcessing,
		limit,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}
