// Package events builds the publisher that announces applied operations.
package events

import (
	"fmt"

	goredis "github.com/redis/go-redis/v9"

	"github.com/sheikh-saqib/client-ledger/internal/config"
	"github.com/sheikh-saqib/client-ledger/internal/events/kafka"
	"github.com/sheikh-saqib/client-ledger/internal/events/redis"
	interfaces "github.com/sheikh-saqib/client-ledger/internal/interfaces"
)

// NewPublisher returns the publisher selected by cfg.Driver, or nil for "none".
func NewPublisher(cfg config.EventsConfig) (interfaces.EventPublisher, error) {
	switch cfg.Driver {
	case "", "none":
		return nil, nil
	case "kafka":
		return kafka.NewPublisher(cfg.KafkaBrokers, cfg.KafkaTopic), nil
	case "redis":
		rdb := goredis.NewClient(&goredis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		})
		return redis.NewPublisher(rdb, cfg.RedisChannel), nil
	default:
		return nil, fmt.Errorf("unknown events driver %q", cfg.Driver)
	}
}
