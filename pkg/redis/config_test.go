package redis

import (
	"time"

	"github.com/angelmondragon/eventrsvp-backend/pkg/config"
)

func configWith(url, addr string) config.RedisConfig {
	return config.RedisConfig{
		URL:          url,
		Address:      addr,
		PoolSize:     10,
		MinIdleConns: 2,
		DialTimeout:  time.Second,
		ReadTimeout:  time.Second,
		WriteTimeout: time.Second,
	}
}
