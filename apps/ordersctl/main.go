package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/eventreg/internal/clock"
	"github.com/smallbiznis/eventreg/internal/config"
	"github.com/smallbiznis/eventreg/internal/observability"
	"github.com/smallbiznis/eventreg/internal/server"
	settlementdomain "github.com/smallbiznis/eventreg/internal/settlement/domain"
	"github.com/smallbiznis/eventreg/pkg/db"
	"go.uber.org/fx"
)

func main() {
	if err := newRootCmd(runWithSettlement).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func RegisterSnowflake(cfg config.Config) (*snowflake.Node, error) {
	return snowflake.NewNode(cfg.SnowflakeNode)
}

// runWithSettlement boots the domain graph without the HTTP server, hands the
// settlement service to fn and stops the app so pending notifications flush.
func runWithSettlement(ctx context.Context, fn func(context.Context, settlementdomain.Service) error) error {
	var svc settlementdomain.Service
	app := fx.New(
		fx.NopLogger,
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		server.DomainModules,
		fx.Populate(&svc),
	)

	startCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := app.Start(startCtx); err != nil {
		return fmt.Errorf("start: %w", err)
	}

	runErr := fn(ctx, svc)

	stopCtx, stopCancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer stopCancel()
	if err := app.Stop(stopCtx); err != nil && runErr == nil {
		return fmt.Errorf("stop: %w", err)
	}
	return runErr
}
