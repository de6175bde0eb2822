// Package objectstore archives generated audio in a NATS JetStream object store.
package objectstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// ErrObjectNotFound is returned by Download when the key has no object.
var ErrObjectNotFound = errors.New("object not found")

const (
	bucketDescription  = "Generated voice-lab audio, keyed by session folder and file name."
	errFmtBindFailed   = "failed to bind to existing object store bucket '%s': %w"
	errFmtCreateFailed = "failed to create object store bucket '%s': %w"
	errFmtGetFailed    = "failed to get object '%s' from bucket '%s': %w"
	errFmtPutFailed    = "failed to put object '%s' to bucket '%s': %w"
	errFmtListFailed   = "failed to list bucket '%s': %w"
)

// NatsObjectStore implements core.ObjectStore on a JetStream object bucket.
type NatsObjectStore struct {
	bucket string
	store  nats.ObjectStore
}

// New creates the bucket, or binds to it when it already exists.
func New(jetstreamContext nats.JetStreamContext, bucketName string) (*NatsObjectStore, error) {
	store, err := jetstreamContext.CreateObjectStore(&nats.ObjectStoreConfig{
		Bucket:      bucketName,
		Description: bucketDescription,
		Storage:     nats.FileStorage,
		Replicas:    1,
	})
	if err != nil {
		if !errors.Is(err, jetstream.ErrBucketExists) && !errors.Is(err, nats.ErrStreamNameAlreadyInUse) {
			return nil, fmt.Errorf(errFmtCreateFailed, bucketName, err)
		}

		store, err = jetstreamContext.ObjectStore(bucketName)
		if err != nil {
			return nil, fmt.Errorf(errFmtBindFailed, bucketName, err)
		}
	}

	return &NatsObjectStore{bucket: bucketName, store: store}, nil
}

// Download retrieves an archived object. A missing key yields ErrObjectNotFound.
func (n *NatsObjectStore) Download(ctx context.Context, key string) ([]byte, error) {
	obj, err := n.store.Get(key, nats.Context(ctx))
	if errors.Is(err, nats.ErrObjectNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrObjectNotFound, key)
	}

	if err != nil {
		return nil, fmt.Errorf(errFmtGetFailed, key, n.bucket, err)
	}

	data, readErr := io.ReadAll(obj)
	closeErr := obj.Close()

	if readErr != nil {
		return nil, fmt.Errorf("failed to read object '%s': %w", key, readErr)
	}

	if closeErr != nil {
		return data, fmt.Errorf("failed to close object '%s': %w", key, closeErr)
	}

	return data, nil
}

// Upload stores data under key, replacing any previous object.
func (n *NatsObjectStore) Upload(ctx context.Context, key string, data []byte) error {
	_, err := n.store.Put(&nats.ObjectMeta{Name: key}, bytes.NewReader(data), nats.Context(ctx))
	if err != nil {
		return fmt.Errorf(errFmtPutFailed, key, n.bucket, err)
	}

	return nil
}

// Keys lists the archived object names. An empty bucket yields no keys.
func (n *NatsObjectStore) Keys(ctx context.Context) ([]string, error) {
	infos, err := n.store.List(nats.Context(ctx))
	if errors.Is(err, nats.ErrNoObjectsFound) {
		return []string{}, nil
	}

	if err != nil {
		return nil, fmt.Errorf(errFmtListFailed, n.bucket, err)
	}

	keys := make([]string, 0, len(infos))

	for _, info := range infos {
		if !info.Deleted {
			keys = append(keys, info.Name)
		}
	}

	return keys, nil
}
