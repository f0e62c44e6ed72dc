package kvcache

import (
	"context"
	"fmt"
	"strings"
	"time"

	valkeylib "github.com/valkey-io/valkey-go"
)

// Valkey backs the Cache with a Valkey server, letting several bridge
// processes share group metadata and similar short-lived state.
type Valkey struct {
	inner     valkeylib.Client
	keyPrefix string
}

type ValkeyConfig struct {
	Address   string
	Password  string
	DB        int
	KeyPrefix string
}

// NewValkey connects and pings the server before returning.
func NewValkey(cfg ValkeyConfig) (*Valkey, error) {
	opts := valkeylib.ClientOption{
		InitAddress: []string{cfg.Address},
		SelectDB:    cfg.DB,
	}
	if cfg.Password != "" {
		opts.Password = cfg.Password
	}

	inner, err := valkeylib.NewClient(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to create valkey client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := inner.Do(ctx, inner.B().Ping().Build()).Error(); err != nil {
		inner.Close()
		return nil, fmt.Errorf("failed to ping valkey: %w", err)
	}

	prefix := cfg.KeyPrefix
	if prefix != "" && !strings.HasSuffix(prefix, ":") {
		prefix += ":"
	}

	return &Valkey{inner: inner, keyPrefix: prefix}, nil
}

func (v *Valkey) Get(ctx context.Context, key string) (string, error) {
	res, err := v.inner.Do(ctx, v.inner.B().Get().Key(v.keyPrefix+key).Build()).ToString()
	if err != nil {
		if valkeylib.IsValkeyNil(err) {
			return "", ErrNotFound
		}
		return "", err
	}
	return res, nil
}

func (v *Valkey) Set(ctx context.Context, key, value string, ttlSeconds int64) error {
	b := v.inner.B().Set().Key(v.keyPrefix + key).Value(value)
	if ttlSeconds > 0 {
		return v.inner.Do(ctx, b.Ex(time.Duration(ttlSeconds)*time.Second).Build()).Error()
	}
	return v.inner.Do(ctx, b.Build()).Error()
}

func (v *Valkey) Delete(ctx context.Context, key string) error {
	return v.inner.Do(ctx, v.inner.B().Del().Key(v.keyPrefix+key).Build()).Error()
}

// Close shuts the underlying connection down.
func (v *Valkey) Close() {
	if v.inner != nil {
		v.inner.Close()
	}
}
