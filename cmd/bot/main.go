package main

import (
	"log"

	"github.com/joho/godotenv"

	"github.com/dkurbatov/coursebot/core/cmd"
	"github.com/dkurbatov/coursebot/internal/bot"
)

func main() {
	// Optional .env for local runs; real deployments use the environment.
	_ = godotenv.Load()

	err := cmd.Run(cmd.Options{
		DefaultConfigPath: "config.yaml",
		LoadConfig: func(path string) (cmd.ConfigCarrier, error) {
			return bot.Load(path)
		},
		Bootstrap: func(cfg cmd.ConfigCarrier) (cmd.TelegramApp, error) {
			app, err := bot.Bootstrap(cfg)
			if err != nil {
				return nil, err
			}
			return app, nil
		},
	})
	if err != nil {
		log.Fatalf("bot: %v", err)
	}
}
