package payment

import (
	"time"

	"github.com/conectalocal/vitrina/internal/config"
	"github.com/conectalocal/vitrina/internal/providers/payment/crypto"
	providerdomain "github.com/conectalocal/vitrina/internal/providers/payment/domain"
	"github.com/conectalocal/vitrina/internal/providers/payment/paypal"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("providers.payment",
	fx.Provide(
		newOrderVerifier,
		newChainVerifier,
	),
)

func newOrderVerifier(cfg config.Config, log *zap.Logger) providerdomain.OrderVerifier {
	return paypal.NewClient(paypal.Config{
		BaseURL:      cfg.PayPal.BaseURL,
		ClientID:     cfg.PayPal.ClientID,
		ClientSecret: cfg.PayPal.ClientSecret,
		Timeout:      time.Duration(cfg.PayPal.TimeoutSec) * time.Second,
	}, log)
}

func newChainVerifier(cfg config.Config, log *zap.Logger) providerdomain.ChainVerifier {
	return crypto.NewClient(crypto.Config{
		BaseURL: cfg.Chain.BaseURL,
		APIKey:  cfg.Chain.APIKey,
		Timeout: time.Duration(cfg.Chain.TimeoutSec) * time.Second,
	}, log)
}
