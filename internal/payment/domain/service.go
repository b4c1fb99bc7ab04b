package domain

import (
	"context"
	"errors"
	"net/http"
)

type WebhookService interface {
	// Ingest authenticates and applies one webhook delivery. A nil error
	// means the delivery may be acknowledged.
	Ingest(ctx context.Context, payload []byte, headers http.Header) error
}

var (
	ErrInvalidSignature = errors.New("invalid_signature")
	ErrInvalidPayload   = errors.New("invalid_payload")
)
