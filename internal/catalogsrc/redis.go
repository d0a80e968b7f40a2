package catalogsrc

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/redis/go-redis/v9"
)

const defaultRedisKey = "forgepool:catalog"

// RedisSource reads the library list from the members of a redis set.
type RedisSource struct {
	client redis.UniversalClient
	key    string
}

// NewRedisSource connects to the given redis URL and verifies the
// connection with a ping.
func NewRedisSource(addr, key string) (*RedisSource, error) {
	if key == "" {
		key = defaultRedisKey
	}
	opts, err := parseRedisURL(addr)
	if err != nil {
		return nil, err
	}
	c := redis.NewUniversalClient(opts)
	if err := c.Ping(context.Background()).Err(); err != nil {
		return nil, err
	}
	return &RedisSource{client: c, key: key}, nil
}

func (s *RedisSource) Fetch(ctx context.Context) ([]string, error) {
	return s.client.SMembers(ctx, s.key).Result()
}

func (s *RedisSource) Close() error {
	return s.client.Close()
}

// parseRedisURL parses addr into UniversalOptions. If no scheme is
// present, addr is treated as a plain host:port string.
func parseRedisURL(addr string) (*redis.UniversalOptions, error) {
	if !strings.Contains(addr, "://") {
		return &redis.UniversalOptions{Addrs: []string{addr}}, nil
	}

	u, err := url.Parse(addr)
	if err != nil {
		return nil, err
	}

	opts := &redis.UniversalOptions{}
	if u.User != nil {
		opts.Username = u.User.Username()
		if pw, ok := u.User.Password(); ok {
			opts.Password = pw
		}
	}
	opts.Addrs = strings.Split(u.Host, ",")

	switch u.Scheme {
	case "redis", "rediss":
		if u.Path != "" && u.Path != "/" {
			db, err := strconv.Atoi(strings.TrimPrefix(u.Path, "/"))
			if err != nil {
				return nil, fmt.Errorf("redis: invalid db: %v", err)
			}
			opts.DB = db
		}
		if u.Scheme == "rediss" {
			opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
		}
	default:
		return nil, fmt.Errorf("redis: unsupported scheme %q", u.Scheme)
	}
	return opts, nil
}
