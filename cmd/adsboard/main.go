package main

import (
	"github.com/adsboard/adsboard/internal/amazon"
	"github.com/adsboard/adsboard/internal/audit"
	"github.com/adsboard/adsboard/internal/clock"
	"github.com/adsboard/adsboard/internal/config"
	"github.com/adsboard/adsboard/internal/credential"
	"github.com/adsboard/adsboard/internal/crypto"
	"github.com/adsboard/adsboard/internal/migration"
	"github.com/adsboard/adsboard/internal/observability"
	"github.com/adsboard/adsboard/internal/ratelimit"
	"github.com/adsboard/adsboard/internal/scheduler"
	"github.com/adsboard/adsboard/internal/server"
	"github.com/adsboard/adsboard/pkg/db"
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		crypto.Module,
		migration.Module,

		audit.Module,
		credential.Module,
		ratelimit.Module,
		amazon.Module,
		scheduler.Module,
		server.Module,
	)
	app.Run()
}

func RegisterSnowflake() (*snowflake.Node, error) {
	return snowflake.NewNode(1)
}
