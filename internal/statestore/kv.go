package statestore

import (
	"context"
	"fmt"
)

// KV is a durable key/value store.
type KV interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
	DeletePrefix(ctx context.Context, prefix string) error
	Close() error
}

// KVTier stores the payload under scope+key in a KV. Scope isolates one
// visitor's entries; Remove also drops every key under scope+prefix for each
// namespaced prefix.
type KVTier struct {
	ctx      context.Context
	kv       KV
	scope    string
	key      string
	prefixes []string
}

func NewKVTier(ctx context.Context, kv KV, scope, key string, prefixes []string) *KVTier {
	return &KVTier{ctx: ctx, kv: kv, scope: scope, key: key, prefixes: prefixes}
}

// VisitorScope returns the key scope for one visitor.
func VisitorScope(visitorID string) string {
	return "visitor/" + visitorID + "/"
}

func (t *KVTier) Name() string { return "durable" }

func (t *KVTier) Write(payload string) error {
	return t.kv.Set(t.ctx, t.scope+t.key, payload)
}

func (t *KVTier) Read() (string, bool, error) {
	return t.kv.Get(t.ctx, t.scope+t.key)
}

func (t *KVTier) Remove() error {
	if err := t.kv.Delete(t.ctx, t.scope+t.key); err != nil {
		return fmt.Errorf("delete %s: %w", t.key, err)
	}
	for _, p := range t.prefixes {
		if p == "" {
			continue
		}
		if err := t.kv.DeletePrefix(t.ctx, t.scope+p); err != nil {
			return fmt.Errorf("delete prefix %s: %w", p, err)
		}
	}
	return nil
}

// OpenKV opens the durable backend named by driver ("sqlite" or "file").
func OpenKV(driver, path string) (KV, error) {
	switch driver {
	case "", "sqlite":
		return NewSQLiteKV(path)
	case "file":
		return NewFileKV(path)
	default:
		return nil, fmt.Errorf("statestore: unknown kv driver %q", driver)
	}
}
