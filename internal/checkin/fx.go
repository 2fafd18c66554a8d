package checkin

import (
	"github.com/smallbiznis/eventreg/internal/checkin/repository"
	"github.com/smallbiznis/eventreg/internal/checkin/service"
	"go.uber.org/fx"
)

var Module = fx.Module("checkin.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
