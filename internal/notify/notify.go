package notify

import (
	"context"
	"fmt"

	"github.com/weiawesome/wes-io-chat/internal/config"
)

// Driver names accepted by New.
const (
	DriverNone  = "none"
	DriverRedis = "redis"
	DriverKafka = "kafka"
)

// New builds the publisher named by cfg.Driver, wrapped in Async unless it
// discards everything anyway.
func New(ctx context.Context, cfg config.NotifyConfig) (Publisher, error) {
	switch cfg.Driver {
	case "", DriverNone:
		return Nop{}, nil
	case DriverRedis:
		p, err := NewRedisPublisher(ctx, cfg.Redis.Address, cfg.Redis.Password, cfg.Redis.DB, cfg.Redis.Channel)
		if err != nil {
			return nil, err
		}
		return NewAsync(p, cfg.QueueSize), nil
	case DriverKafka:
		p, err := NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic, cfg.Kafka.Partitions)
		if err != nil {
			return nil, err
		}
		return NewAsync(p, cfg.QueueSize), nil
	default:
		return nil, fmt.Errorf("unknown notify driver %q", cfg.Driver)
	}
}
