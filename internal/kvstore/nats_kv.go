// Package kvstore provides a NATS JetStream key-value implementation of the preference store.
package kvstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/book-expert/tts-pad/internal/core"
	"github.com/nats-io/nats.go"
)

// NatsKeyValueStore implements the core.KeyValueStore interface using a JetStream KV bucket.
type NatsKeyValueStore struct {
	bucket string
	kv     nats.KeyValue
}

var _ core.KeyValueStore = (*NatsKeyValueStore)(nil)

// New binds to the bucket, creating it on first use.
func New(jetstreamContext nats.JetStreamContext, bucketName string) (*NatsKeyValueStore, error) {
	kv, err := jetstreamContext.KeyValue(bucketName)
	if err != nil {
		if !errors.Is(err, nats.ErrBucketNotFound) {
			return nil, fmt.Errorf("failed to bind to key-value bucket '%s': %w", bucketName, err)
		}

		kv, err = jetstreamContext.CreateKeyValue(&nats.KeyValueConfig{
			Bucket:      bucketName,
			Description: fmt.Sprintf("Preferences for the %s bucket.", bucketName),
			History:     1,
			Storage:     nats.FileStorage,
			Replicas:    1,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create key-value bucket '%s': %w", bucketName, err)
		}
	}

	return &NatsKeyValueStore{
		bucket: bucketName,
		kv:     kv,
	}, nil
}

// Get returns the latest value of key, or core.ErrNotFound.
func (s *NatsKeyValueStore) Get(_ context.Context, key string) ([]byte, error) {
	entry, err := s.kv.Get(key)
	if err != nil {
		if errors.Is(err, nats.ErrKeyNotFound) {
			return nil, fmt.Errorf("key '%s' in bucket '%s': %w", key, s.bucket, core.ErrNotFound)
		}

		return nil, fmt.Errorf("failed to get key '%s' from bucket '%s': %w", key, s.bucket, err)
	}

	return entry.Value(), nil
}

// Put stores value under key.
func (s *NatsKeyValueStore) Put(_ context.Context, key string, value []byte) error {
	_, err := s.kv.Put(key, value)
	if err != nil {
		return fmt.Errorf("failed to put key '%s' to bucket '%s': %w", key, s.bucket, err)
	}

	return nil
}
