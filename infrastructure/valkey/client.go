package valkey

import (
	"context"
	"fmt"
	"strings"
	"time"

	valkeylib "github.com/valkey-io/valkey-go"
)

const dialTimeout = 5 * time.Second

// Config locates the valkey server shared by every publisher instance.
type Config struct {
	Address   string
	Password  string
	DB        int
	KeyPrefix string
	// DialTimeout bounds the startup ping. Zero means five seconds.
	DialTimeout time.Duration
}

// Client is the pub/sub connection used for cross-instance job and sweeper signals.
type Client struct {
	inner  valkeylib.Client
	prefix string
}

// NewClient connects and pings once; a server that does not answer within
// the dial timeout is reported as an error so callers can fall back to
// in-process signals.
func NewClient(cfg Config) (*Client, error) {
	inner, err := valkeylib.NewClient(valkeylib.ClientOption{
		InitAddress: []string{cfg.Address},
		Password:    cfg.Password,
		SelectDB:    cfg.DB,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create valkey client: %w", err)
	}

	timeout := cfg.DialTimeout
	if timeout <= 0 {
		timeout = dialTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := inner.Do(ctx, inner.B().Ping().Build()).Error(); err != nil {
		inner.Close()
		return nil, fmt.Errorf("failed to ping valkey at %s: %w", cfg.Address, err)
	}
	return &Client{inner: inner, prefix: channelPrefix(cfg.KeyPrefix)}, nil
}

func channelPrefix(prefix string) string {
	prefix = strings.TrimSpace(prefix)
	if prefix != "" && !strings.HasSuffix(prefix, ":") {
		prefix += ":"
	}
	return prefix
}

func (c *Client) Close() {
	if c.inner != nil {
		c.inner.Close()
	}
}

// Channel joins parts under the configured prefix:
// Channel("jobs", "pub_1", "status") -> "azpub:jobs:pub_1:status".
func (c *Client) Channel(parts ...string) string {
	return c.prefix + strings.Join(parts, ":")
}

// Ping backs the valkey entry of the health endpoint.
func (c *Client) Ping(ctx context.Context) error {
	return c.inner.Do(ctx, c.inner.B().Ping().Build()).Error()
}

// Publish sends message to every subscriber of channel.
func (c *Client) Publish(ctx context.Context, channel, message string) error {
	return c.inner.Do(ctx, c.inner.B().Publish().Channel(channel).Message(message).Build()).Error()
}

// Subscribe calls fn for each message on channel until ctx is done or the
// connection drops. It blocks; a cancelled ctx is not reported as an error.
func (c *Client) Subscribe(ctx context.Context, channel string, fn func(message string)) error {
	err := c.inner.Receive(ctx, c.inner.B().Subscribe().Channel(channel).Build(), func(msg valkeylib.PubSubMessage) {
		fn(msg.Message)
	})
	if ctx.Err() != nil {
		return nil
	}
	return err
}
