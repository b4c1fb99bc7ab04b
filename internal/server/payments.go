package server

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/topup/internal/observability/logger"
	orderdomain "github.com/smallbiznis/topup/internal/order/domain"
	"github.com/smallbiznis/topup/internal/payment/amount"
	productdomain "github.com/smallbiznis/topup/internal/product/domain"
	"go.uber.org/zap"
)

const maxWebhookBody = 1 << 20

// flexibleID accepts both `"101"` and `101` so numeric catalog ids survive
// clients that send them unquoted.
type flexibleID string

func (f *flexibleID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*f = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = flexibleID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*f = flexibleID(n.String())
	return nil
}

type createOrderRequest struct {
	ProductID     flexibleID `json:"productId"`
	CustomerEmail string     `json:"customerEmail"`
	GameUID       string     `json:"gameUID"`
	Currency      string     `json:"currency"`
}

type orderProductView struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Coins int64  `json:"coins"`
}

type createOrderResponse struct {
	Success        bool             `json:"success"`
	OrderID        string           `json:"orderId"`
	GatewayOrderID string           `json:"gatewayOrderId"`
	Amount         int64            `json:"amount"`
	Currency       string           `json:"currency"`
	KeyID          string           `json:"keyId"`
	Product        orderProductView `json:"product"`
	CustomerEmail  string           `json:"customerEmail"`
	GameUID        string           `json:"gameUID"`
}

type verifyPaymentRequest struct {
	OrderID          string `json:"orderId"`
	GatewayOrderID   string `json:"gatewayOrderId"`
	GatewayPaymentID string `json:"gatewayPaymentId"`
	Signature        string `json:"signature"`

	// Field names posted by the Razorpay checkout handler.
	RazorpayOrderID   string `json:"razorpay_order_id"`
	RazorpayPaymentID string `json:"razorpay_payment_id"`
	RazorpaySignature string `json:"razorpay_signature"`
}

func (r verifyPaymentRequest) normalize() orderdomain.ConfirmRequest {
	return orderdomain.ConfirmRequest{
		Source:           orderdomain.SourceClient,
		OrderID:          strings.TrimSpace(r.OrderID),
		GatewayOrderID:   firstNonEmpty(r.GatewayOrderID, r.RazorpayOrderID),
		GatewayPaymentID: firstNonEmpty(r.GatewayPaymentID, r.RazorpayPaymentID),
		Signature:        firstNonEmpty(r.Signature, r.RazorpaySignature),
	}
}

type verifiedOrderView struct {
	ID          string `json:"id"`
	Status      string `json:"status"`
	ProductName string `json:"productName"`
	Coins       int64  `json:"coins"`
	GameUID     string `json:"gameUID"`
}

type verifyPaymentResponse struct {
	Success bool              `json:"success"`
	Message string            `json:"message"`
	Order   verifiedOrderView `json:"order"`
}

type orderView struct {
	ID             string          `json:"id"`
	Status         string          `json:"status"`
	DeliveryStatus string          `json:"deliveryStatus"`
	ProductName    string          `json:"productName"`
	Coins          int64           `json:"coins"`
	Amount         int64           `json:"amount"`
	DisplayAmount  decimal.Decimal `json:"displayAmount"`
	Currency       string          `json:"currency"`
	GameUID        string          `json:"gameUID"`
	CustomerEmail  string          `json:"customerEmail"`
	CreatedAt      time.Time       `json:"createdAt"`
}

type productView struct {
	ID          int64           `json:"id,string"`
	Code        string          `json:"code"`
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Coins       int64           `json:"coins"`
	PriceINR    decimal.Decimal `json:"priceINR"`
	PriceUSD    decimal.Decimal `json:"priceUSD"`
	Popular     bool            `json:"popular"`
	Badge       string          `json:"badge,omitempty"`
	ImageURL    string          `json:"imageUrl,omitempty"`
	GameType    string          `json:"gameType"`
}

func (s *Server) ListProducts(c *gin.Context) {
	products, err := s.productSvc.List(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	out := make([]productView, 0, len(products))
	for _, p := range products {
		out = append(out, toProductView(p))
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "products": out})
}

func (s *Server) CreateOrder(c *gin.Context) {
	var req createOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	productID := strings.TrimSpace(string(req.ProductID))
	switch {
	case productID == "":
		AbortWithError(c, newValidationError("productId", "required", "productId is required"))
		return
	case strings.TrimSpace(req.CustomerEmail) == "":
		AbortWithError(c, newValidationError("customerEmail", "required", "customerEmail is required"))
		return
	case strings.TrimSpace(req.GameUID) == "":
		AbortWithError(c, newValidationError("gameUID", "required", "gameUID is required"))
		return
	}

	currency := strings.TrimSpace(req.Currency)
	if currency == "" {
		currency = string(amount.CurrencyINR)
	}

	resp, err := s.orderSvc.CreateOrder(c.Request.Context(), orderdomain.CreateOrderRequest{
		ProductID:     productID,
		CustomerEmail: req.CustomerEmail,
		GameUID:       req.GameUID,
		Currency:      currency,
	})
	if err != nil {
		if resp != nil && resp.Order != nil {
			c.Set("order_id", resp.Order.OrderID)
			abortWithOrderError(c, resp.Order.OrderID, err)
			return
		}
		AbortWithError(c, err)
		return
	}

	c.Set("order_id", resp.Order.OrderID)
	c.JSON(http.StatusOK, toCreateOrderResponse(resp))
}

func (s *Server) RetryGatewayOrder(c *gin.Context) {
	orderID := strings.TrimSpace(c.Param("orderId"))
	if orderID == "" {
		AbortWithError(c, orderdomain.ErrInvalidOrderID)
		return
	}
	c.Set("order_id", orderID)

	resp, err := s.orderSvc.RetryGatewayOrder(c.Request.Context(), orderID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, toCreateOrderResponse(resp))
}

func (s *Server) VerifyPayment(c *gin.Context) {
	var req verifyPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	confirm := req.normalize()
	switch {
	case confirm.GatewayOrderID == "":
		AbortWithError(c, newValidationError("gatewayOrderId", "required", "gatewayOrderId is required"))
		return
	case confirm.GatewayPaymentID == "":
		AbortWithError(c, newValidationError("gatewayPaymentId", "required", "gatewayPaymentId is required"))
		return
	case confirm.Signature == "":
		AbortWithError(c, newValidationError("signature", "required", "signature is required"))
		return
	}
	if confirm.OrderID != "" {
		c.Set("order_id", confirm.OrderID)
	}

	result, err := s.orderSvc.ConfirmPayment(c.Request.Context(), confirm)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	message := "Payment verified successfully"
	if result.AlreadyPaid {
		message = "Payment already verified"
	}
	order := result.Order
	c.JSON(http.StatusOK, verifyPaymentResponse{
		Success: true,
		Message: message,
		Order: verifiedOrderView{
			ID:          order.OrderID,
			Status:      string(order.Status),
			ProductName: order.ProductName,
			Coins:       order.ProductCoins,
			GameUID:     order.GameUID,
		},
	})
}

// HandleWebhook reads the raw body before anything else touches it; the
// signature covers those exact bytes.
func (s *Server) HandleWebhook(c *gin.Context) {
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	if err := s.webhookSvc.Ingest(c.Request.Context(), payload, c.Request.Header); err != nil {
		logger.WithContext(c.Request.Context(), s.log).Warn("webhook not acknowledged", zap.Error(err))
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"received": true})
}

func (s *Server) GetOrder(c *gin.Context) {
	orderID := strings.TrimSpace(c.Param("orderId"))
	if orderID == "" {
		AbortWithError(c, orderdomain.ErrInvalidOrderID)
		return
	}
	c.Set("order_id", orderID)

	order, err := s.orderSvc.GetOrder(c.Request.Context(), orderID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"order": orderView{
			ID:             order.OrderID,
			Status:         string(order.Status),
			DeliveryStatus: string(order.DeliveryStatus),
			ProductName:    order.ProductName,
			Coins:          order.ProductCoins,
			Amount:         order.AmountMinor,
			DisplayAmount:  amount.FromMinorUnits(order.AmountMinor, amount.Currency(order.Currency)),
			Currency:       order.Currency,
			GameUID:        order.GameUID,
			CustomerEmail:  order.CustomerEmail,
			CreatedAt:      order.CreatedAt,
		},
	})
}

func toCreateOrderResponse(resp *orderdomain.CreateOrderResponse) createOrderResponse {
	order := resp.Order
	gatewayOrderID := ""
	if order.GatewayOrderID != nil {
		gatewayOrderID = *order.GatewayOrderID
	}
	return createOrderResponse{
		Success:        true,
		OrderID:        order.OrderID,
		GatewayOrderID: gatewayOrderID,
		Amount:         order.AmountMinor,
		Currency:       order.Currency,
		KeyID:          resp.KeyID,
		Product: orderProductView{
			ID:    order.ProductID,
			Name:  order.ProductName,
			Coins: order.ProductCoins,
		},
		CustomerEmail: order.CustomerEmail,
		GameUID:       order.GameUID,
	}
}

func toProductView(p productdomain.Product) productView {
	return productView{
		ID:          p.ID,
		Code:        p.Code,
		Name:        p.Name,
		Description: deref(p.Description),
		Coins:       p.Coins,
		PriceINR:    p.PriceINR,
		PriceUSD:    p.PriceUSD,
		Popular:     p.Popular,
		Badge:       deref(p.Badge),
		ImageURL:    deref(p.ImageURL),
		GameType:    p.GameType,
	}
}

func deref(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
