package config

import (
	"time"

	"github.com/weiawesome/wes-io-chat/internal/idgen"
	pkgconfig "github.com/weiawesome/wes-io-chat/pkg/config"
	"github.com/weiawesome/wes-io-chat/pkg/log"
)

type Config struct {
	Server    ServerConfig
	WebSocket WebSocketConfig
	History   HistoryConfig
	Notify    NotifyConfig
	Log       log.Config
}

type ServerConfig struct {
	Host            string
	Port            int
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type WebSocketConfig struct {
	PingInterval   time.Duration `mapstructure:"ping_interval"`
	PongWait       time.Duration `mapstructure:"pong_wait"`
	WriteWait      time.Duration `mapstructure:"write_wait"`
	MaxMessageSize int64         `mapstructure:"max_message_size"`
	SendBufferSize int           `mapstructure:"send_buffer_size"`
}

type HistoryConfig struct {
	Capacity int
	ID       idgen.Config `mapstructure:"id"`
}

type NotifyConfig struct {
	Driver    string // none | redis | kafka
	QueueSize int    `mapstructure:"queue_size"`
	Redis     RedisConfig
	Kafka     KafkaConfig
}

type RedisConfig struct {
	Address  string
	Password string
	DB       int
	Channel  string
}

type KafkaConfig struct {
	Brokers    string
	Topic      string
	Partitions int
}

func Load() (*Config, error) {
	v, err := pkgconfig.Load("./config", "config", "")
	if err != nil {
		return nil, err
	}

	// Set defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.shutdown_timeout", "10s")
	v.SetDefault("websocket.ping_interval", "30s")
	v.SetDefault("websocket.pong_wait", "60s")
	v.SetDefault("websocket.write_wait", "10s")
	v.SetDefault("websocket.max_message_size", 4096)
	v.SetDefault("websocket.send_buffer_size", 256)
	v.SetDefault("history.capacity", 100)
	v.SetDefault("history.id.strategy", idgen.StrategySnowflake)
	v.SetDefault("history.id.machine_id", 1)
	v.SetDefault("history.id.epoch_ms", idgen.DefaultEpochMs)
	v.SetDefault("notify.driver", "none")
	v.SetDefault("notify.queue_size", 1024)
	v.SetDefault("notify.redis.address", "localhost:6379")
	v.SetDefault("notify.redis.password", "")
	v.SetDefault("notify.redis.db", 0)
	v.SetDefault("notify.redis.channel", "chat:events")
	v.SetDefault("notify.kafka.brokers", "localhost:9092")
	v.SetDefault("notify.kafka.topic", "chat-events")
	v.SetDefault("notify.kafka.partitions", 1)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)
	v.SetDefault("log.service_name", "chat-server")

	// Override from environment
	v.BindEnv("server.port", "PORT")
	v.BindEnv("history.capacity", "HISTORY_CAPACITY")
	v.BindEnv("history.id.strategy", "ID_STRATEGY")
	v.BindEnv("history.id.machine_id", "MACHINE_ID")
	v.BindEnv("notify.driver", "NOTIFY_DRIVER")
	v.BindEnv("notify.redis.address", "REDIS_ADDRESS")
	v.BindEnv("notify.redis.password", "REDIS_PASSWORD")
	v.BindEnv("notify.kafka.brokers", "KAFKA_BROKERS")
	v.BindEnv("notify.kafka.topic", "KAFKA_TOPIC")
	v.BindEnv("log.level", "LOG_LEVEL")
	v.BindEnv("log.pretty", "LOG_PRETTY")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	// Parse durations
	cfg.Server.ShutdownTimeout = pkgconfig.Duration(v, "server.shutdown_timeout", 10*time.Second)
	cfg.WebSocket.PingInterval = pkgconfig.Duration(v, "websocket.ping_interval", 30*time.Second)
	cfg.WebSocket.PongWait = pkgconfig.Duration(v, "websocket.pong_wait", 60*time.Second)
	cfg.WebSocket.WriteWait = pkgconfig.Duration(v, "websocket.write_wait", 10*time.Second)

	return &cfg, nil
}
