package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config carries the full server configuration. Values come from
// config.yaml when present and can be overridden with CHAT_* environment
// variables (CHAT_ADDR, CHAT_DATABASE_URL and so on).
type Config struct {
	Addr          string        `mapstructure:"addr"`
	DatabaseURL   string        `mapstructure:"database_url"`
	RedisAddr     string        `mapstructure:"redis_addr"`
	MeiliHost     string        `mapstructure:"meili_host"`
	MeiliAPIKey   string        `mapstructure:"meili_api_key"`
	JWTSecret     string        `mapstructure:"jwt_secret"`
	TokenTTL      time.Duration `mapstructure:"token_ttl"`
	RoomCacheTTL  time.Duration `mapstructure:"room_cache_ttl"`
	ClientTimeout time.Duration `mapstructure:"client_timeout"`
}

func Load() (*Config, error) {
	v := viper.New()

	v.SetDefault("addr", ":8080")
	v.SetDefault("redis_addr", "localhost:6379")
	v.SetDefault("meili_host", "")
	v.SetDefault("token_ttl", 24*time.Hour)
	v.SetDefault("room_cache_ttl", time.Minute)
	v.SetDefault("client_timeout", 60*time.Second)

	v.SetEnvPrefix("CHAT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// AutomaticEnv only resolves keys viper already knows about.
	for _, key := range []string{"database_url", "meili_api_key", "jwt_secret"} {
		if err := v.BindEnv(key); err != nil {
			return nil, err
		}
	}

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		// The file is optional; environment variables alone are enough.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("database_url is required (set CHAT_DATABASE_URL)")
	}
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("jwt_secret is required (set CHAT_JWT_SECRET)")
	}
	return cfg, nil
}
