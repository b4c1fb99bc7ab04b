package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// keyed holds one shared secret. Client and webhook verifiers embed it as
// distinct types so the two secrets cannot be swapped by accident.
type keyed struct {
	secret []byte
}

func (k keyed) sign(payload []byte) string {
	mac := hmac.New(sha256.New, k.secret)
	_, _ = mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

func (k keyed) verify(payload []byte, presented string) bool {
	if len(k.secret) == 0 {
		return false
	}
	presented = strings.TrimSpace(presented)
	if presented == "" {
		return false
	}
	got, err := hex.DecodeString(strings.ToLower(presented))
	if err != nil || len(got) != sha256.Size {
		return false
	}

	mac := hmac.New(sha256.New, k.secret)
	_, _ = mac.Write(payload)
	return hmac.Equal(got, mac.Sum(nil))
}

// ClientVerifier checks the checkout confirmation signature, computed with
// the gateway key secret over "<gatewayOrderId>|<gatewayPaymentId>".
type ClientVerifier struct {
	keyed
}

func NewClientVerifier(keySecret string) *ClientVerifier {
	return &ClientVerifier{keyed{secret: []byte(keySecret)}}
}

// ClientPayload builds the canonical confirmation payload.
func ClientPayload(gatewayOrderID, gatewayPaymentID string) []byte {
	return []byte(gatewayOrderID + "|" + gatewayPaymentID)
}

func (v *ClientVerifier) Sign(gatewayOrderID, gatewayPaymentID string) string {
	return v.sign(ClientPayload(gatewayOrderID, gatewayPaymentID))
}

// VerifyConfirmation reports whether signature authenticates the order/payment pair.
func (v *ClientVerifier) VerifyConfirmation(gatewayOrderID, gatewayPaymentID, signature string) bool {
	if v == nil {
		return false
	}
	if strings.TrimSpace(gatewayOrderID) == "" || strings.TrimSpace(gatewayPaymentID) == "" {
		return false
	}
	return v.verify(ClientPayload(gatewayOrderID, gatewayPaymentID), signature)
}

// WebhookVerifier checks webhook deliveries. The MAC always covers the raw
// request body exactly as received.
type WebhookVerifier struct {
	keyed
}

func NewWebhookVerifier(webhookSecret string) *WebhookVerifier {
	return &WebhookVerifier{keyed{secret: []byte(webhookSecret)}}
}

func (v *WebhookVerifier) Sign(body []byte) string {
	return v.sign(body)
}

func (v *WebhookVerifier) Verify(body []byte, presented string) bool {
	if v == nil || len(body) == 0 {
		return false
	}
	return v.verify(body, presented)
}
