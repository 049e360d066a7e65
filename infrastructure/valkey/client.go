// Package valkey connects the media cache to a Valkey server. Every key the
// cache writes lives under one prefix so a deployment can share a database.
package valkey

import (
	"context"
	"fmt"
	"strings"
	"time"

	valkeylib "github.com/valkey-io/valkey-go"
)

const (
	// DefaultConnectTimeout bounds the ping done while connecting.
	DefaultConnectTimeout = 5 * time.Second

	scanBatch   = 200
	deleteBatch = 500
)

type Config struct {
	Address        string
	Password       string
	DB             int
	KeyPrefix      string
	ConnectTimeout time.Duration
}

// Client is the handle shared by the Valkey entry store. Whoever creates it
// closes it; stores built on top never do.
type Client struct {
	inner     valkeylib.Client
	keyPrefix string
}

// NewClient dials cfg.Address and pings it. The ping gives up at whichever
// comes first of ctx and the connect timeout.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.Address == "" {
		return nil, fmt.Errorf("valkey address is required")
	}
	opts := valkeylib.ClientOption{
		InitAddress: []string{cfg.Address},
		SelectDB:    cfg.DB,
		Password:    cfg.Password,
	}

	inner, err := valkeylib.NewClient(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to create valkey client: %w", err)
	}

	timeout := cfg.ConnectTimeout
	if timeout <= 0 {
		timeout = DefaultConnectTimeout
	}
	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := inner.Do(pingCtx, inner.B().Ping().Build()).Error(); err != nil {
		inner.Close()
		return nil, fmt.Errorf("failed to ping valkey at %s (timeout: %v): %w", cfg.Address, timeout, err)
	}

	return &Client{inner: inner, keyPrefix: normalizePrefix(cfg.KeyPrefix)}, nil
}

func normalizePrefix(prefix string) string {
	if prefix != "" && !strings.HasSuffix(prefix, ":") {
		prefix += ":"
	}
	return prefix
}

func (c *Client) Inner() valkeylib.Client {
	return c.inner
}

func (c *Client) Close() error {
	if c.inner != nil {
		c.inner.Close()
	}
	return nil
}

// Key joins parts under the prefix: Key("media", "entry", "abc") with prefix
// "mediacache" is "mediacache:media:entry:abc".
func (c *Client) Key(parts ...string) string {
	if len(parts) == 0 {
		return strings.TrimSuffix(c.keyPrefix, ":")
	}
	return c.keyPrefix + strings.Join(parts, ":")
}

// ScanKeys walks the keyspace with SCAN and returns every key matching pattern.
func (c *Client) ScanKeys(ctx context.Context, pattern string) ([]string, error) {
	var (
		keys   []string
		cursor uint64
	)
	for {
		cmd := c.inner.B().Scan().Cursor(cursor).Match(pattern).Count(scanBatch).Build()
		result, err := c.inner.Do(ctx, cmd).AsScanEntry()
		if err != nil {
			return nil, fmt.Errorf("failed to scan %q: %w", pattern, err)
		}
		keys = append(keys, result.Elements...)
		cursor = result.Cursor
		if cursor == 0 {
			return keys, nil
		}
	}
}

// DeleteKeys removes keys in DEL batches. It stops at the first failing batch.
func (c *Client) DeleteKeys(ctx context.Context, keys []string) error {
	for start := 0; start < len(keys); start += deleteBatch {
		end := min(start+deleteBatch, len(keys))
		cmd := c.inner.B().Del().Key(keys[start:end]...).Build()
		if err := c.inner.Do(ctx, cmd).Error(); err != nil {
			return fmt.Errorf("failed to delete %d keys: %w", end-start, err)
		}
	}
	return nil
}

func IsNil(err error) bool {
	return valkeylib.IsValkeyNil(err)
}
