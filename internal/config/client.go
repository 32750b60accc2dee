package config

import (
	"time"

	pkgconfig "github.com/weiawesome/wes-io-chat/pkg/config"
	"github.com/weiawesome/wes-io-chat/pkg/log"
)

// ClientConfig configures cmd/chat-client.
type ClientConfig struct {
	ServerURL string     `mapstructure:"server_url"`
	User      UserConfig `mapstructure:"user"`
	Reconnect ReconnectConfig
	Typing    TypingConfig
	CachePath string `mapstructure:"cache_path"`
	Log       log.Config
}

type UserConfig struct {
	ID       string
	Username string
	Avatar   string
}

type ReconnectConfig struct {
	BaseDelay   time.Duration `mapstructure:"base_delay"`
	MaxDelay    time.Duration `mapstructure:"max_delay"`
	MaxAttempts int           `mapstructure:"max_attempts"`
}

type TypingConfig struct {
	Timeout time.Duration
}

func LoadClient() (*ClientConfig, error) {
	v, err := pkgconfig.Load("./config", "client", "CHAT")
	if err != nil {
		return nil, err
	}

	v.SetDefault("server_url", "ws://localhost:8080/ws")
	v.SetDefault("user.id", "")
	v.SetDefault("user.username", "")
	v.SetDefault("user.avatar", "")
	v.SetDefault("reconnect.base_delay", "1s")
	v.SetDefault("reconnect.max_delay", "30s")
	v.SetDefault("reconnect.max_attempts", 5)
	v.SetDefault("typing.timeout", "3s")
	v.SetDefault("cache_path", "chat-cache.db")
	v.SetDefault("log.level", "warn")
	v.SetDefault("log.pretty", true)
	v.SetDefault("log.service_name", "chat-client")

	var cfg ClientConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	cfg.Reconnect.BaseDelay = pkgconfig.Duration(v, "reconnect.base_delay", time.Second)
	cfg.Reconnect.MaxDelay = pkgconfig.Duration(v, "reconnect.max_delay", 30*time.Second)
	cfg.Typing.Timeout = pkgconfig.Duration(v, "typing.timeout", 3*time.Second)

	return &cfg, nil
}
