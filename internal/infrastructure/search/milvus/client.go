// Package milvus is an alternative case vector index on Milvus.  It keeps one
// entity per case with a facts and a metadata vector and answers cosine
// nearest-neighbour queries.
package milvus

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/keepalive"

	"github.com/turtacn/casemind/internal/config"
	"github.com/turtacn/casemind/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/casemind/pkg/errors"
)

// dialFunc opens an SDK connection.  Tests replace dial.
type dialFunc func(ctx context.Context, conf client.Config) (client.Client, error)

var dial dialFunc = client.NewClient

var (
	ErrInvalidConfig    = errors.New(errors.ErrCodeValidation, "invalid milvus configuration")
	ErrConnectionFailed = errors.New(errors.ErrCodeServiceUnavailable, "milvus connection failed")
	ErrUnhealthy        = errors.New(errors.ErrCodeServiceUnavailable, "milvus unhealthy")
)

// reconnectAfter consecutive failed health checks trigger a fresh connection.
const reconnectAfter = 3

// ClientConfig configures the connection to the case vector store.
type ClientConfig struct {
	Address          string
	Username         string
	Password         string
	DBName           string
	TLSCertPath      string
	TLSServerName    string
	ConnectTimeout   time.Duration
	HealthInterval   time.Duration
	KeepAlive        time.Duration
	KeepAliveTimeout time.Duration
}

// ConfigFrom maps the application milvus section.
func ConfigFrom(c config.MilvusConfig) ClientConfig {
	return ClientConfig{
		Address:  c.Addr,
		Username: c.Username,
		Password: c.Password,
		DBName:   c.DBName,
	}
}

func (cfg *ClientConfig) applyDefaults() {
	if cfg.DBName == "" {
		cfg.DBName = "default"
	}
	if cfg.ConnectTimeout == 0 {
		cfg.ConnectTimeout = 10 * time.Second
	}
	if cfg.HealthInterval == 0 {
		cfg.HealthInterval = 30 * time.Second
	}
	if cfg.KeepAlive == 0 {
		cfg.KeepAlive = time.Minute
	}
	if cfg.KeepAliveTimeout == 0 {
		cfg.KeepAliveTimeout = 20 * time.Second
	}
}

// Client owns the SDK connection used by CaseIndex and CollectionManager and
// keeps it alive in the background.
type Client struct {
	mu      sync.RWMutex
	sdk     client.Client
	config  ClientConfig
	logger  logging.Logger
	healthy atomic.Bool
	version atomic.Value
	cancel  context.CancelFunc
	closed  atomic.Bool
}

// NewClient connects, verifies the server answers health checks and starts
// the background watcher.
func NewClient(cfg ClientConfig, logger logging.Logger) (*Client, error) {
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	if logger == nil {
		logger = logging.NewNopLogger()
	}

	ctx, cancel := context.WithCancel(context.Background())
	sdk, err := open(ctx, cfg)
	if err != nil {
		cancel()
		return nil, errors.Wrap(err, errors.ErrCodeServiceUnavailable, "dial milvus").WithDetail(cfg.Address)
	}
	c := &Client{sdk: sdk, config: cfg, logger: logger.Named("milvus"), cancel: cancel}

	if err := c.CheckHealth(ctx); err != nil {
		_ = c.Close()
		return nil, ErrConnectionFailed
	}
	c.recordVersion(ctx)

	go c.watch(ctx)

	c.logger.Info("milvus connected",
		logging.String("address", cfg.Address),
		logging.String("db", cfg.DBName),
		logging.String("server_version", c.ServerVersion()))
	return c, nil
}

func open(ctx context.Context, cfg ClientConfig) (client.Client, error) {
	creds := insecure.NewCredentials()
	if cfg.TLSCertPath != "" {
		pem, err := os.ReadFile(cfg.TLSCertPath)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeValidation, "read milvus CA certificate")
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, errors.New(errors.ErrCodeValidation, "milvus CA certificate is not PEM")
		}
		creds = credentials.NewTLS(&tls.Config{ServerName: cfg.TLSServerName, RootCAs: pool, MinVersion: tls.VersionTLS12})
	}

	dialCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()
	return dial(dialCtx, client.Config{
		Address:       cfg.Address,
		Username:      cfg.Username,
		Password:      cfg.Password,
		DBName:        cfg.DBName,
		EnableTLSAuth: cfg.TLSCertPath != "",
		DialOptions: []grpc.DialOption{
			grpc.WithTransportCredentials(creds),
			grpc.WithKeepaliveParams(keepalive.ClientParameters{
				Time:                cfg.KeepAlive,
				Timeout:             cfg.KeepAliveTimeout,
				PermitWithoutStream: true,
			}),
		},
	})
}

// CheckHealth asks the server for its state and records the answer.
func (c *Client) CheckHealth(ctx context.Context) error {
	sdk := c.GetMilvusClient()
	if sdk == nil {
		c.healthy.Store(false)
		return ErrConnectionFailed
	}
	state, err := sdk.CheckHealth(ctx)
	if err != nil || (state != nil && !state.IsHealthy) {
		c.healthy.Store(false)
		fields := []logging.Field{logging.String("address", c.config.Address)}
		if err != nil {
			fields = append(fields, logging.Err(err))
		} else {
			fields = append(fields, logging.Strings("reasons", state.Reasons))
		}
		c.logger.Warn("milvus health check failed", fields...)
		return ErrUnhealthy
	}
	c.healthy.Store(true)
	return nil
}

// IsHealthy reports the outcome of the last health check.
func (c *Client) IsHealthy() bool { return c.healthy.Load() }

// ServerVersion is the version the server reported at the last connect, or
// "" when it could not be read.
func (c *Client) ServerVersion() string {
	v, _ := c.version.Load().(string)
	return v
}

func (c *Client) recordVersion(ctx context.Context) {
	v, err := c.GetMilvusClient().GetVersion(ctx)
	if err != nil {
		c.logger.Debug("milvus server version unavailable", logging.Err(err))
		return
	}
	c.version.Store(v)
}

// GetMilvusClient returns the current SDK connection.
func (c *Client) GetMilvusClient() client.Client {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sdk
}

// Close stops the watcher and closes the connection.  Later calls are no-ops.
func (c *Client) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	c.cancel()
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sdk != nil {
		_ = c.sdk.Close()
	}
	c.logger.Info("milvus connection closed")
	return nil
}

// watch health-checks the server every HealthInterval and reconnects after
// reconnectAfter consecutive failures.
func (c *Client) watch(ctx context.Context) {
	ticker := time.NewTicker(c.config.HealthInterval)
	defer ticker.Stop()

	failures := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		wasHealthy := c.IsHealthy()
		if err := c.CheckHealth(ctx); err == nil {
			if !wasHealthy {
				c.logger.Info("milvus recovered", logging.Int("failed_checks", failures))
			}
			failures = 0
			continue
		}
		failures++
		if failures < reconnectAfter {
			continue
		}
		if err := c.reconnect(ctx); err != nil {
			c.logger.Error("milvus reconnect failed", logging.Err(err), logging.Int("failed_checks", failures))
			continue
		}
		failures = 0
	}
}

func (c *Client) reconnect(ctx context.Context) error {
	sdk, err := open(ctx, c.config)
	if err != nil {
		return err
	}
	c.mu.Lock()
	old := c.sdk
	c.sdk = sdk
	c.mu.Unlock()
	if old != nil {
		_ = old.Close()
	}
	c.recordVersion(ctx)
	c.logger.Warn("milvus reconnected", logging.String("server_version", c.ServerVersion()))
	return nil
}

// ValidateConfig checks the settings NewClient cannot default.
func ValidateConfig(cfg ClientConfig) error {
	if cfg.Address == "" {
		return ErrInvalidConfig.WithDetail("address is required")
	}
	if _, _, err := net.SplitHostPort(cfg.Address); err != nil {
		return errors.New(errors.ErrCodeValidation, "milvus address must be host:port").WithDetail(cfg.Address)
	}
	if cfg.ConnectTimeout < 0 || cfg.HealthInterval < 0 {
		return ErrInvalidConfig.WithDetail("timeouts must not be negative")
	}
	if cfg.TLSServerName != "" && cfg.TLSCertPath == "" {
		return ErrInvalidConfig.WithDetail("tls server name needs a CA certificate path")
	}
	return nil
}

//Personal.AI order the ending
