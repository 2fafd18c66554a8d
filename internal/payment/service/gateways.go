package service

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/smallbiznis/eventreg/internal/clock"
	"github.com/smallbiznis/eventreg/internal/payment/adapters"
	paymentdomain "github.com/smallbiznis/eventreg/internal/payment/domain"
	paymentproviderdomain "github.com/smallbiznis/eventreg/internal/paymentprovider/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type GatewaysParams struct {
	fx.In

	Log       *zap.Logger
	Adapters  *adapters.Registry
	Providers paymentproviderdomain.Service
	Clock     clock.Clock `optional:"true"`
}

// Gateways builds adapters from the organizer's stored configuration.
type Gateways struct {
	log       *zap.Logger
	adapters  *adapters.Registry
	providers paymentproviderdomain.Service
	clock     clock.Clock
}

func NewGateways(p GatewaysParams) paymentdomain.Gateways {
	c := p.Clock
	if c == nil {
		c = clock.SystemClock{}
	}
	return &Gateways{
		log:       p.Log.Named("payment.gateways"),
		adapters:  p.Adapters,
		providers: p.Providers,
		clock:     c,
	}
}

func (g *Gateways) ProviderExists(provider string) bool {
	return g.adapters.ProviderExists(provider)
}

func (g *Gateways) Gateway(ctx context.Context, organizerID uuid.UUID, provider string) (paymentdomain.Gateway, error) {
	if !g.adapters.ProviderExists(provider) {
		return nil, paymentdomain.ErrProviderNotFound
	}
	cfg, err := g.providers.ActiveConfig(ctx, organizerID, provider)
	if err != nil {
		if errors.Is(err, paymentproviderdomain.ErrNotFound) {
			return nil, paymentdomain.ErrProviderNotFound
		}
		return nil, err
	}
	return g.adapters.NewAdapter(provider, paymentdomain.AdapterConfig{
		OrganizerID: organizerID,
		Provider:    cfg.Provider,
		Config:      cfg.Config,
		Clock:       g.clock,
	})
}
