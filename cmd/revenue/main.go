package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/chapterly/revenue/internal/clock"
	"github.com/chapterly/revenue/internal/config"
	"github.com/chapterly/revenue/internal/migration"
	"github.com/chapterly/revenue/internal/observability"
	"github.com/chapterly/revenue/internal/server"
	"github.com/chapterly/revenue/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		migration.Module,
		server.Module,
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}
