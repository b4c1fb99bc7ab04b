package payment

import (
	"github.com/smallbiznis/topup/internal/config"
	"github.com/smallbiznis/topup/internal/payment/gateway"
	"github.com/smallbiznis/topup/internal/payment/repository"
	"github.com/smallbiznis/topup/internal/payment/signature"
	"github.com/smallbiznis/topup/internal/payment/webhook"
	"go.uber.org/fx"
)

var Module = fx.Module("payment.service",
	fx.Provide(repository.Provide),
	fx.Provide(func(cfg config.Config) gateway.Client {
		return gateway.NewRazorpay(gateway.RazorpayConfig{
			KeyID:     cfg.Razorpay.KeyID,
			KeySecret: cfg.Razorpay.KeySecret,
			BaseURL:   cfg.Razorpay.BaseURL,
			Timeout:   cfg.Razorpay.Timeout,
		})
	}),
	fx.Provide(func(cfg config.Config) *signature.ClientVerifier {
		return signature.NewClientVerifier(cfg.Razorpay.KeySecret)
	}),
	fx.Provide(func(cfg config.Config) *signature.WebhookVerifier {
		return signature.NewWebhookVerifier(cfg.Razorpay.WebhookSecret)
	}),
	fx.Provide(webhook.NewService),
)
