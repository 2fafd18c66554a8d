package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/eventreg/internal/clock"
	"github.com/smallbiznis/eventreg/internal/config"
	"github.com/smallbiznis/eventreg/internal/migration"
	"github.com/smallbiznis/eventreg/internal/observability"
	"github.com/smallbiznis/eventreg/internal/scheduler"
	"github.com/smallbiznis/eventreg/internal/server"
	"github.com/smallbiznis/eventreg/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		// Core Infrastructure
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		migration.Module,

		// HTTP surface with every domain service
		server.Module,

		// Expiry sweep and provider polling in-process
		scheduler.Module,
	)
	app.Run()
}

func RegisterSnowflake(cfg config.Config) (*snowflake.Node, error) {
	return snowflake.NewNode(cfg.SnowflakeNode)
}
