package config

import (
	"os"
	"strings"
)

// GetEnv retrieves an environment variable or returns a default value if not found
func GetEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// GetEnvAsSlice retrieves a separated environment variable as a slice, dropping
// empty items, or returns a default value if not found
func GetEnvAsSlice(key, sep string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	parts := strings.Split(value, sep)
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// applyBotEnvironment maps the bot's conventional variable names onto the
// config. They only fill values the structured keys left empty, except the
// comma separated lists which viper cannot split.
func applyBotEnvironment(cfg *Config) {
	if cfg.Telegram.BotToken == "" {
		cfg.Telegram.BotToken = GetEnv("TELEGRAM_BOT_TOKEN", "")
	}
	if cfg.Server.IngestKey == "" {
		cfg.Server.IngestKey = GetEnv("ADMIN_API_KEY", "")
	}
	if port := GetEnv("PORT", ""); port != "" && os.Getenv("SERVER_PORT") == "" {
		cfg.Server.Port = port
	}
	cfg.Admin.TelegramIDs = GetEnvAsSlice("ADMIN_USER_IDS", ",", cfg.Admin.TelegramIDs)
	cfg.Kafka.Brokers = GetEnvAsSlice("KAFKA_BROKERS", ",", cfg.Kafka.Brokers)
	cfg.Server.AllowedHosts = GetEnvAsSlice("ALLOWED_HOSTS", ",", cfg.Server.AllowedHosts)
}
