package config

import (
	"log"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Env         string `mapstructure:"GO_ENV"`
	Port        string `mapstructure:"PORT"`
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	JWTSecret   string `mapstructure:"JWT_SECRET"`
	FrontendURL string `mapstructure:"FRONTEND_URL"`

	// Redis (push fan-out across instances, send rate limit, token blacklist)
	RedisAddr     string `mapstructure:"REDIS_ADDR"`
	RedisPassword string `mapstructure:"REDIS_PASSWORD"`
	PushChannel   string `mapstructure:"PUSH_CHANNEL"`

	// Sends allowed per user per SendRateWindow
	SendRateLimit  int           `mapstructure:"SEND_RATE_LIMIT"`
	SendRateWindow time.Duration `mapstructure:"SEND_RATE_WINDOW"`

	// Client core (cmd/supportctl)
	APIBaseURL          string        `mapstructure:"API_BASE_URL"`
	PushURL             string        `mapstructure:"PUSH_URL"`
	ReconnectInitial    time.Duration `mapstructure:"PUSH_RECONNECT_INITIAL"`
	ReconnectMax        time.Duration `mapstructure:"PUSH_RECONNECT_MAX"`
	RequestTimeout      time.Duration `mapstructure:"REQUEST_TIMEOUT"`
	DirectoryRefreshGap time.Duration `mapstructure:"DIRECTORY_REFRESH_GAP"`
}

var AppConfig *Config

func setDefaults(v *viper.Viper) {
	v.SetDefault("GO_ENV", "development")
	v.SetDefault("PORT", "8080")
	v.SetDefault("REDIS_ADDR", "localhost:6379")
	v.SetDefault("PUSH_CHANNEL", "autocare:push")
	v.SetDefault("SEND_RATE_LIMIT", 30)
	v.SetDefault("SEND_RATE_WINDOW", time.Minute)
	v.SetDefault("API_BASE_URL", "http://localhost:8080/api")
	v.SetDefault("PUSH_URL", "ws://localhost:8080/api/ws")
	v.SetDefault("PUSH_RECONNECT_INITIAL", 500*time.Millisecond)
	v.SetDefault("PUSH_RECONNECT_MAX", 30*time.Second)
	v.SetDefault("REQUEST_TIMEOUT", 10*time.Second)
	v.SetDefault("DIRECTORY_REFRESH_GAP", 250*time.Millisecond)
}

func LoadConfig() {
	v := viper.New()
	setDefaults(v)
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		log.Println("No .env file found, relying on environment variables")
	}

	// AutomaticEnv only resolves keys viper already knows about.
	for _, key := range []string{"DATABASE_URL", "JWT_SECRET", "FRONTEND_URL", "REDIS_PASSWORD"} {
		_ = v.BindEnv(key)
	}

	if err := v.Unmarshal(&AppConfig); err != nil {
		log.Fatalf("Unable to decode config: %v", err)
	}
}
