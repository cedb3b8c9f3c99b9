package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/entitlehq/entitled/internal/logger"
	"github.com/entitlehq/entitled/internal/server"
	"github.com/entitlehq/entitled/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		fx.Provide(RegisterSnowflake),
		logger.Module,
		db.Module,
		server.Module,
	)
	app.Run()
}

func RegisterSnowflake() (*snowflake.Node, error) {
	return snowflake.NewNode(1)
}
