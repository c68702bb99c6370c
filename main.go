package main

import (
	"embed"
	"log/slog"
	"os"
	"time"

	"github.com/lmittmann/tint"
	"github.com/wailsapp/wails/v2"
	"github.com/wailsapp/wails/v2/pkg/options"
	"github.com/wailsapp/wails/v2/pkg/options/assetserver"

	"screenguide/internal/config"
)

//go:embed all:frontend/dist
var assets embed.FS

func main() {
	if err := config.LoadDotEnv(".env"); err != nil {
		slog.Warn("could not load .env", "err", err)
	}

	logger := slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      config.ParseLogLevel(os.Getenv("SCREENGUIDE_LOG_LEVEL")),
		TimeFormat: time.Kitchen,
	}))
	slog.SetDefault(logger)

	app := NewApp(logger)
	err := wails.Run(&options.App{
		Title:     "Screen Guide",
		Width:     960,
		Height:    720,
		MinWidth:  640,
		MinHeight: 480,
		AssetServer: &assetserver.Options{
			Assets: assets,
		},
		OnStartup:  app.startup,
		OnShutdown: app.shutdown,
		Bind: []interface{}{
			app,
		},
	})
	if err != nil {
		logger.Error("application exited", "err", err)
		os.Exit(1)
	}
}
