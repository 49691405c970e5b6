package stores

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	rules "github.com/temitayocharles/healthcare-naija"
)

// RedisDocumentStore keeps each document as a JSON blob under doc:{path}.
type RedisDocumentStore struct {
	client *redis.Client
	keyFmt string // format string, e.g. "doc:%s"
}

func NewRedisDocumentStore(client *redis.Client) *RedisDocumentStore {
	return &RedisDocumentStore{client: client, keyFmt: "doc:%s"}
}

func (r *RedisDocumentStore) key(path string) string {
	return fmt.Sprintf(r.keyFmt, path)
}

func (r *RedisDocumentStore) SetDocument(ctx context.Context, path string, fields map[string]any) error {
	b, err := json.Marshal(fields)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, r.key(path), b, 0).Err()
}

func (r *RedisDocumentStore) DeleteDocument(ctx context.Context, path string) error {
	return r.client.Del(ctx, r.key(path)).Err()
}

func (r *RedisDocumentStore) GetDocument(ctx context.Context, path string) (*rules.Snapshot, error) {
	b, err := r.client.Get(ctx, r.key(path)).Bytes()
	if errors.Is(err, redis.Nil) {
		return &rules.Snapshot{Path: path, Exists: false}, nil
	}
	if err != nil {
		return nil, err
	}
	var fields map[string]any
	if err := json.Unmarshal(b, &fields); err != nil {
		return nil, err
	}
	return &rules.Snapshot{Path: path, Exists: true, Fields: fields}, nil
}
