package main

import (
	"campaign-engine/internal/app/server"
	"campaign-engine/internal/config"
)

func main() {
	cfg := config.Load()
	config.SetupLogging(cfg.Server.LogLevel)
	server.Run(cfg)
}
