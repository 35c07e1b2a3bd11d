package main

import (
	"log/slog"
	"os"

	"github.com/7FIl/CS-Bot/config"
	"github.com/7FIl/CS-Bot/handler"
)

func main() {
	config.LoadEnv()
	if err := config.RequireEnv("SLACK_BOT_TOKEN", "SLACK_APP_TOKEN", "SUPPORT_CHANNEL_ID"); err != nil {
		slog.Error("missing configuration", slog.Any("err", err))
		os.Exit(1)
	}

	settingsPath := os.Getenv("BOT_SETTINGS_FILE")
	if settingsPath == "" {
		settingsPath = config.DefaultSettingsPath
	}
	settings, err := config.NewSettingsFile(settingsPath)
	if err != nil {
		slog.Error("failed to load bot settings", slog.Any("err", err))
		os.Exit(1)
	}

	h, err := handler.NewHandler(settings)
	if err != nil {
		slog.Error("NewHandler failed", slog.Any("err", err))
		os.Exit(1)
	}

	slog.Info("Bot started", slog.String("driver", os.Getenv("DB_DRIVER")))
	if err := h.Handle(); err != nil {
		slog.Error("Bot stopped", slog.Any("err", err))
		os.Exit(1)
	}
}
