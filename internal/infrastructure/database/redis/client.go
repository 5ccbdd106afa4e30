// Package redis wraps go-redis for the case engine: a closable client, a
// JSON cache with singleflight loading, a read-through fingerprint cache in
// front of the case repository and the search session store.
package redis

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"os"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/turtacn/casemind/internal/config"
	"github.com/turtacn/casemind/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/casemind/pkg/errors"
)

var (
	ErrClientClosed     = errors.New(errors.ErrCodeInternal, "redis client is closed")
	ErrConnectionFailed = errors.New(errors.ErrCodeDatabaseError, "redis connection failed")
)

// connectTimeout bounds the ping NewClient sends before handing out a client.
const connectTimeout = 5 * time.Second

// RedisConfig configures the cache and session store connection.  A
// non-empty MasterName selects a sentinel deployment.
type RedisConfig struct {
	Addr          string
	MasterName    string
	SentinelAddrs []string
	Password      string
	DB            int
	PoolSize      int
	MinIdleConns  int
	DialTimeout   time.Duration
	ReadTimeout   time.Duration
	WriteTimeout  time.Duration
	TLSCAFile     string
}

// ConfigFrom maps the application redis section.
func ConfigFrom(c config.RedisConfig) *RedisConfig {
	return &RedisConfig{
		Addr:          c.Addr,
		MasterName:    c.MasterName,
		SentinelAddrs: append([]string(nil), c.SentinelAddrs...),
		Password:      c.Password,
		DB:            c.DB,
		PoolSize:      c.PoolSize,
		MinIdleConns:  c.MinIdleConns,
		DialTimeout:   c.DialTimeout,
		ReadTimeout:   c.ReadTimeout,
		WriteTimeout:  c.WriteTimeout,
		TLSCAFile:     c.TLSCAFile,
	}
}

// universalOptions turns cfg into go-redis options.  go-redis builds a
// failover client when MasterName is set and a plain client otherwise.
func (cfg *RedisConfig) universalOptions() (*redis.UniversalOptions, error) {
	addrs := []string{cfg.Addr}
	if cfg.MasterName != "" {
		if len(cfg.SentinelAddrs) == 0 {
			return nil, errors.InvalidParam("redis sentinel mode needs sentinel addresses").WithDetail(cfg.MasterName)
		}
		addrs = cfg.SentinelAddrs
	}
	opts := &redis.UniversalOptions{
		Addrs:        addrs,
		MasterName:   cfg.MasterName,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	if cfg.TLSCAFile != "" {
		pem, err := os.ReadFile(cfg.TLSCAFile)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeCacheError, "read redis CA certificate")
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, errors.New(errors.ErrCodeCacheError, "redis CA certificate is not PEM").WithDetail(cfg.TLSCAFile)
		}
		opts.TLSConfig = &tls.Config{RootCAs: pool, MinVersion: tls.VersionTLS12}
	}
	return opts, nil
}

// Client is the connection shared by the cache and the session store.  After
// Close every command fails with ErrClientClosed.
type Client struct {
	rdb    redis.UniversalClient
	logger logging.Logger
	closed atomic.Bool
}

// NewClient connects and pings the server.
func NewClient(cfg *RedisConfig, logger logging.Logger) (*Client, error) {
	opts, err := cfg.universalOptions()
	if err != nil {
		return nil, err
	}
	c := wrap(redis.NewUniversalClient(opts), logger)

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()
	if err := c.Ping(ctx); err != nil {
		_ = c.rdb.Close()
		return nil, ErrConnectionFailed.WithCause(err).WithDetail(cfg.Addr)
	}

	c.logger.Info("redis connected",
		logging.String("addr", cfg.Addr),
		logging.String("master", cfg.MasterName),
		logging.Int("db", cfg.DB))
	return c, nil
}

// wrap adopts an existing go-redis connection.
func wrap(rdb redis.UniversalClient, logger logging.Logger) *Client {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Client{rdb: rdb, logger: logger.Named("redis")}
}

// Ping checks the connection; the health endpoint calls it.
func (c *Client) Ping(ctx context.Context) error {
	if c.closed.Load() {
		return ErrClientClosed
	}
	return c.rdb.Ping(ctx).Err()
}

// Close releases the pool.  Later calls are no-ops.
func (c *Client) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	if err := c.rdb.Close(); err != nil {
		c.logger.Error("redis close failed", logging.Err(err))
		return err
	}
	c.logger.Info("redis connection closed")
	return nil
}

// Get reads key.
func (c *Client) Get(ctx context.Context, key string) *redis.StringCmd {
	if c.closed.Load() {
		cmd := redis.NewStringCmd(ctx)
		cmd.SetErr(ErrClientClosed)
		return cmd
	}
	return c.rdb.Get(ctx, key)
}

// Set writes key with a TTL; zero keeps it forever.
func (c *Client) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) *redis.StatusCmd {
	if c.closed.Load() {
		cmd := redis.NewStatusCmd(ctx)
		cmd.SetErr(ErrClientClosed)
		return cmd
	}
	return c.rdb.Set(ctx, key, value, ttl)
}

// Del removes keys and reports how many existed.
func (c *Client) Del(ctx context.Context, keys ...string) *redis.IntCmd {
	if c.closed.Load() {
		return closedIntCmd(ctx)
	}
	return c.rdb.Del(ctx, keys...)
}

// Exists counts how many of keys exist.
func (c *Client) Exists(ctx context.Context, keys ...string) *redis.IntCmd {
	if c.closed.Load() {
		return closedIntCmd(ctx)
	}
	return c.rdb.Exists(ctx, keys...)
}

// Scan walks keys matching match from cursor.
func (c *Client) Scan(ctx context.Context, cursor uint64, match string, count int64) *redis.ScanCmd {
	if c.closed.Load() {
		cmd := redis.NewScanCmd(ctx, nil)
		cmd.SetErr(ErrClientClosed)
		return cmd
	}
	return c.rdb.Scan(ctx, cursor, match, count)
}

func closedIntCmd(ctx context.Context) *redis.IntCmd {
	cmd := redis.NewIntCmd(ctx)
	cmd.SetErr(ErrClientClosed)
	return cmd
}

//Personal.AI order the ending
