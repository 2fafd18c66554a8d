package settlement

import (
	paymentdomain "github.com/smallbiznis/eventreg/internal/payment/domain"
	"github.com/smallbiznis/eventreg/internal/settlement/domain"
	"github.com/smallbiznis/eventreg/internal/settlement/repository"
	"github.com/smallbiznis/eventreg/internal/settlement/service"
	"go.uber.org/fx"
)

var Module = fx.Module("settlement.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
	fx.Provide(service.NewPayoutService),
	fx.Provide(func(s domain.Service) paymentdomain.EventProcessor { return s }),
)
