package cache

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// New connects to Redis at addrs, a comma separated list. A single address
// yields a plain client, several a cluster client. The connection is pinged
// before it is returned.
func New(ctx context.Context, addrs string) (redis.UniversalClient, error) {
	opts := &redis.UniversalOptions{
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	}
	for _, addr := range strings.Split(addrs, ",") {
		if addr = strings.TrimSpace(addr); addr != "" {
			opts.Addrs = append(opts.Addrs, addr)
		}
	}
	if len(opts.Addrs) == 0 {
		return nil, fmt.Errorf("platform/cache: no redis address")
	}
	client := redis.NewUniversalClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("platform/cache: ping %s: %w", addrs, err)
	}
	return client, nil
}
