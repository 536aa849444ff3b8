package app

import (
	"strings"

	"github.com/yasgmp/gmpauthz/pkg/logger"
)

// ConfigureLogging initialises the global logger from the server section, defaulting to info level.
func ConfigureLogging(cfg ServerConfig) error {
	level := strings.TrimSpace(cfg.LogLevel)
	if level == "" {
		level = "info"
	}
	return logger.Init(level, strings.TrimSpace(cfg.LogFormat))
}
