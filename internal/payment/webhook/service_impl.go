package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/smallbiznis/eventreg/internal/clock"
	"github.com/smallbiznis/eventreg/internal/payment/adapters"
	paymentdomain "github.com/smallbiznis/eventreg/internal/payment/domain"
	paymentproviderdomain "github.com/smallbiznis/eventreg/internal/paymentprovider/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Log       *zap.Logger
	Adapters  *adapters.Registry
	Providers paymentproviderdomain.Service
	Processor paymentdomain.EventProcessor
	Clock     clock.Clock `optional:"true"`
}

type Service struct {
	log       *zap.Logger
	adapters  *adapters.Registry
	providers paymentproviderdomain.Service
	processor paymentdomain.EventProcessor
	clock     clock.Clock
}

func NewService(p Params) paymentdomain.Service {
	c := p.Clock
	if c == nil {
		c = clock.SystemClock{}
	}
	return &Service{
		log:       p.Log.Named("payment.webhook"),
		adapters:  p.Adapters,
		providers: p.Providers,
		processor: p.Processor,
		clock:     c,
	}
}

// IngestWebhook finds the organizer config whose secret verifies the payload,
// parses the event and hands it to the settlement processor. Ignored event
// types are acknowledged without effect.
func (s *Service) IngestWebhook(ctx context.Context, provider string, payload []byte, headers http.Header) error {
	provider = strings.ToLower(strings.TrimSpace(provider))
	if provider == "" {
		return paymentdomain.ErrInvalidProvider
	}
	if s.adapters == nil || !s.adapters.ProviderExists(provider) {
		return paymentdomain.ErrProviderNotFound
	}
	if provider == paymentdomain.ProviderManual {
		return paymentdomain.ErrCallbackUnsupported
	}
	if !json.Valid(payload) {
		return paymentdomain.ErrInvalidPayload
	}

	configs, err := s.providers.ActiveConfigs(ctx, provider)
	if err != nil {
		return err
	}
	if len(configs) == 0 {
		return paymentdomain.ErrProviderNotFound
	}

	event, err := s.matchAdapter(ctx, provider, payload, headers, configs)
	if err != nil {
		if errors.Is(err, paymentdomain.ErrEventIgnored) {
			s.log.Debug("payment webhook ignored", zap.String("provider", provider))
			return nil
		}
		return err
	}

	if s.processor == nil {
		return errors.New("payment_processor_unavailable")
	}
	if event.RawPayload == nil {
		event.RawPayload = payload
	}
	return s.processor.ProcessEvent(ctx, event)
}

func (s *Service) matchAdapter(
	ctx context.Context,
	provider string,
	payload []byte,
	headers http.Header,
	configs []paymentproviderdomain.DecryptedConfig,
) (*paymentdomain.PaymentEvent, error) {
	var configErr error
	for _, cfg := range configs {
		adapter, err := s.adapters.NewAdapter(provider, paymentdomain.AdapterConfig{
			OrganizerID: cfg.OrganizerID,
			Provider:    provider,
			Config:      cfg.Config,
			Clock:       s.clock,
		})
		if err != nil {
			configErr = err
			continue
		}

		if err := adapter.Verify(ctx, payload, headers); err != nil {
			if errors.Is(err, paymentdomain.ErrInvalidSignature) {
				continue
			}
			return nil, err
		}

		event, err := adapter.Parse(ctx, payload)
		if err != nil {
			return nil, err
		}
		event.Provider = provider
		event.OrganizerID = cfg.OrganizerID
		return event, nil
	}

	if configErr != nil {
		s.log.Warn("payment webhook matched no usable config", zap.String("provider", provider), zap.Error(configErr))
	}
	return nil, paymentdomain.ErrInvalidSignature
}
