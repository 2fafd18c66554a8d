package payment

import (
	"github.com/smallbiznis/eventreg/internal/payment/adapters"
	"github.com/smallbiznis/eventreg/internal/payment/adapters/manual"
	"github.com/smallbiznis/eventreg/internal/payment/adapters/midtrans"
	"github.com/smallbiznis/eventreg/internal/payment/adapters/stripe"
	"github.com/smallbiznis/eventreg/internal/payment/adapters/wallet"
	"github.com/smallbiznis/eventreg/internal/payment/repository"
	paymentservice "github.com/smallbiznis/eventreg/internal/payment/service"
	"github.com/smallbiznis/eventreg/internal/payment/webhook"
	paymentproviderdomain "github.com/smallbiznis/eventreg/internal/paymentprovider/domain"
	"go.uber.org/fx"
)

var Module = fx.Module("payment.service",
	fx.Provide(repository.Provide),
	fx.Provide(NewRegistry),
	fx.Provide(func(r *adapters.Registry) paymentproviderdomain.ProviderCatalog { return r }),
	fx.Provide(paymentservice.NewGateways),
	fx.Provide(webhook.NewService),
)

func NewRegistry() *adapters.Registry {
	return adapters.NewRegistry(
		stripe.NewFactory(),
		midtrans.NewFactory(),
		wallet.NewFactory(),
		manual.NewFactory(),
	)
}
