package config

import (
	"errors"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	Server    ServerConfig
	MongoDB   MongoDBConfig
	JWT       JWTConfig
	Telegram  TelegramConfig
	Delivery  DeliveryConfig
	Kafka     KafkaConfig
	Scheduler SchedulerConfig
	Referral  ReferralConfig
	Affiliate AffiliateConfig
	Discount  DiscountConfig
	Analytics AnalyticsConfig
	Welcome   WelcomeConfig
	Admin     AdminConfig
	LogLevel  string
}

// ServerConfig holds server-specific configuration
type ServerConfig struct {
	Port         string
	AllowedHosts []string
	IngestKey    string
}

// MongoDBConfig holds MongoDB-specific configuration
type MongoDBConfig struct {
	URI      string
	Database string
}

// JWTConfig holds JWT-specific configuration
type JWTConfig struct {
	Secret    string
	ExpiresIn int // seconds
}

// TelegramConfig holds Bot API delivery configuration
type TelegramConfig struct {
	BotToken        string
	MockDelivery    bool
	ParseMode       string
	DeliveryTimeout time.Duration
	MessageDelay    time.Duration
}

// DeliveryConfig controls per-recipient failure handling during campaign sends
type DeliveryConfig struct {
	MaxConsecutiveFailures int
}

// KafkaConfig holds the inbound event consumer configuration
type KafkaConfig struct {
	Enabled      bool
	Brokers      []string
	InboundTopic string
	DLQTopic     string
	GroupID      string
}

// SchedulerConfig holds cron specs for the named jobs
type SchedulerConfig struct {
	Timezone           string
	DispatchSpec       string
	MaintenanceSpec    string
	SegmentSpec        string
	DailyAnalysisSpec  string
	WeeklyAnalysisSpec string
}

// ReferralConfig holds the user-to-user referral reward policy
type ReferralConfig struct {
	ExpiryDays   int
	ReferrerRate float64
	ReferrerCap  float64
	ReferredRate float64
	ReferredCap  float64
}

// AffiliateConfig holds the affiliate payout policy
type AffiliateConfig struct {
	PayoutThreshold float64
}

// DiscountConfig holds discount code defaults
type DiscountConfig struct {
	Prefix            string
	Length            int
	ExpiryDays        int
	DefaultPercentage float64
}

// AnalyticsConfig holds retention and experiment optimisation settings
type AnalyticsConfig struct {
	RetentionDays                  int
	WindowDays                     int
	AutoOptimize                   bool
	MinSampleSize                  int
	PromotedSplit                  int
	CompletedCampaignRetentionDays int
}

// WelcomeConfig controls the welcome campaign created for new subscribers
type WelcomeConfig struct {
	Enabled    bool
	Percentage float64
	Delay      time.Duration
}

// AdminConfig lists bot administrators notified about campaign runs
type AdminConfig struct {
	TelegramIDs []string
}

// Load loads configuration from an optional .env file, an optional config.yaml
// in path, and environment variables (SERVER_PORT, MONGODB_URI, ...).
func Load(path string) (*Config, error) {
	// A missing .env file is fine, the environment may already be populated
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if path != "" {
		v.AddConfigPath(path)
	}
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}
	applyBotEnvironment(&config)

	return &config, nil
}

// setDefaults sets default values for configuration
func setDefaults(v *viper.Viper) {
	v.SetDefault("Server.Port", "4000")
	v.SetDefault("Server.AllowedHosts", []string{"localhost:3000"})
	v.SetDefault("Server.IngestKey", "")
	v.SetDefault("MongoDB.URI", "mongodb://localhost:27017")
	v.SetDefault("MongoDB.Database", "telegram-marketing")
	v.SetDefault("JWT.Secret", "")
	v.SetDefault("JWT.ExpiresIn", 24*60*60) // 24 hours
	v.SetDefault("LogLevel", "info")

	v.SetDefault("Telegram.BotToken", "")
	v.SetDefault("Telegram.MockDelivery", true)
	v.SetDefault("Telegram.ParseMode", "HTML")
	v.SetDefault("Telegram.DeliveryTimeout", 10*time.Second)
	v.SetDefault("Telegram.MessageDelay", 100*time.Millisecond)
	v.SetDefault("Delivery.MaxConsecutiveFailures", 3)

	v.SetDefault("Kafka.Enabled", false)
	v.SetDefault("Kafka.Brokers", []string{"localhost:9092"})
	v.SetDefault("Kafka.InboundTopic", "marketing.events.inbound")
	v.SetDefault("Kafka.DLQTopic", "marketing.events.dlq")
	v.SetDefault("Kafka.GroupID", "telegram-marketing-backend")

	v.SetDefault("Scheduler.Timezone", "UTC")
	v.SetDefault("Scheduler.DispatchSpec", "* * * * *")
	v.SetDefault("Scheduler.MaintenanceSpec", "0 2 * * *")
	v.SetDefault("Scheduler.SegmentSpec", "0 3 * * 0")
	v.SetDefault("Scheduler.DailyAnalysisSpec", "0 9 * * *")
	v.SetDefault("Scheduler.WeeklyAnalysisSpec", "0 0 * * 0")

	v.SetDefault("Referral.ExpiryDays", 30)
	v.SetDefault("Referral.ReferrerRate", 0.10)
	v.SetDefault("Referral.ReferrerCap", 50)
	v.SetDefault("Referral.ReferredRate", 0.05)
	v.SetDefault("Referral.ReferredCap", 25)
	v.SetDefault("Affiliate.PayoutThreshold", 100)

	v.SetDefault("Discount.Prefix", "DIGI")
	v.SetDefault("Discount.Length", 8)
	v.SetDefault("Discount.ExpiryDays", 7)
	v.SetDefault("Discount.DefaultPercentage", 10)

	v.SetDefault("Analytics.RetentionDays", 90)
	v.SetDefault("Analytics.WindowDays", 7)
	v.SetDefault("Analytics.AutoOptimize", true)
	v.SetDefault("Analytics.MinSampleSize", 50)
	v.SetDefault("Analytics.PromotedSplit", 80)
	v.SetDefault("Analytics.CompletedCampaignRetentionDays", 30)

	v.SetDefault("Welcome.Enabled", true)
	v.SetDefault("Welcome.Percentage", 15)
	v.SetDefault("Welcome.Delay", 5*time.Minute)

	v.SetDefault("Admin.TelegramIDs", []string{})
}
