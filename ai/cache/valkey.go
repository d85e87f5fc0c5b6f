package cache

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/valkey-io/valkey-go"
)

// ValkeyStore persists cached vectors in a Valkey-compatible database.
type ValkeyStore struct {
	client valkey.Client
	prefix string
	ttl    time.Duration
}

// NewValkeyStore constructs a store backed by client. Entries expire
// after ttl; zero keeps them forever.
func NewValkeyStore(client valkey.Client, prefix string, ttl time.Duration) *ValkeyStore {
	if prefix == "" {
		prefix = "chainlab"
	}
	return &ValkeyStore{client: client, prefix: prefix, ttl: ttl}
}

// Dial connects to addr, which is either host:port or a redis:// URL, and
// pings the server.
func Dial(ctx context.Context, addr string, ttl time.Duration) (*ValkeyStore, error) {
	var (
		opt valkey.ClientOption
		err error
	)
	if strings.Contains(addr, "://") {
		opt, err = valkey.ParseURL(addr)
		if err != nil {
			return nil, fmt.Errorf("invalid cache address: %w", err)
		}
	} else {
		opt = valkey.ClientOption{InitAddress: []string{addr}}
	}

	client, err := valkey.NewClient(opt)
	if err != nil {
		return nil, err
	}
	if err := client.Do(ctx, client.B().Ping().Build()).Error(); err != nil {
		client.Close()
		return nil, fmt.Errorf("cache ping failed: %w", err)
	}
	return NewValkeyStore(client, "chainlab", ttl), nil
}

func (s *ValkeyStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	cmd := s.client.B().Get().Key(s.key(key)).Build()
	data, err := s.client.Do(ctx, cmd).AsBytes()
	if err != nil {
		if valkey.IsValkeyNil(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return data, true, nil
}

func (s *ValkeyStore) Set(ctx context.Context, key string, value []byte) error {
	builder := s.client.B().Set().Key(s.key(key)).Value(valkey.BinaryString(value))
	var cmd valkey.Completed
	if s.ttl > 0 {
		ttl := s.ttl
		if ttl < time.Second {
			ttl = time.Second
		}
		cmd = builder.Ex(ttl).Build()
	} else {
		cmd = builder.Build()
	}
	return s.client.Do(ctx, cmd).Error()
}

func (s *ValkeyStore) Close() error {
	s.client.Close()
	return nil
}

func (s *ValkeyStore) key(k string) string {
	return s.prefix + ":" + k
}

var _ Store = (*ValkeyStore)(nil)
