package main

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/eventreg/internal/clock"
	"github.com/smallbiznis/eventreg/internal/config"
	"github.com/smallbiznis/eventreg/internal/observability"
	"github.com/smallbiznis/eventreg/internal/scheduler"
	"github.com/smallbiznis/eventreg/internal/server"
	"github.com/smallbiznis/eventreg/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,

		// Domain services required by the jobs; no HTTP server
		server.DomainModules,
		fx.Provide(scheduler.ProvideConfig),
		fx.Provide(scheduler.New),

		fx.Invoke(StartScheduler),
	)
	app.Run()
}

func RegisterSnowflake(cfg config.Config) (*snowflake.Node, error) {
	return snowflake.NewNode(cfg.SnowflakeNode)
}

// StartScheduler always runs the loop; SCHEDULER_ENABLED only gates the
// in-process scheduler of the all-in-one binary.
func StartScheduler(lc fx.Lifecycle, s *scheduler.Scheduler) {
	ctx, cancel := context.WithCancel(context.Background())
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go s.RunForever(ctx)
			return nil
		},
		OnStop: func(context.Context) error {
			cancel()
			return nil
		},
	})
}
