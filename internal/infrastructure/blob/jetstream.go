package blob

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// ObjectStore keeps blobs in a NATS JetStream object store bucket.
type ObjectStore struct {
	conn   *nats.Conn
	js     jetstream.JetStream
	bucket string
	store  jetstream.ObjectStore
}

// NewObjectStore connects to NATS and opens or creates bucket.
func NewObjectStore(ctx context.Context, url, bucket string) (*ObjectStore, error) {
	conn, err := nats.Connect(url, nats.Name("ec-store"))
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}
	js, err := jetstream.New(conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("create JetStream context: %w", err)
	}

	s := &ObjectStore{conn: conn, js: js, bucket: bucket}
	if err := s.open(ctx); err != nil {
		conn.Close()
		return nil, err
	}
	return s, nil
}

func (s *ObjectStore) open(ctx context.Context) error {
	store, err := s.js.ObjectStore(ctx, s.bucket)
	if err == nil {
		s.store = store
		return nil
	}
	store, err = s.js.CreateObjectStore(ctx, jetstream.ObjectStoreConfig{
		Bucket:      s.bucket,
		Description: "Product images",
	})
	if err != nil {
		return fmt.Errorf("create object store bucket: %w", err)
	}
	s.store = store
	return nil
}

func (s *ObjectStore) Store(ctx context.Context, data []byte, contentType string) (string, error) {
	if len(data) == 0 {
		return "", ErrEmpty
	}
	if contentType == "" {
		contentType = defaultContentType
	}
	ref := newReference(contentType)
	meta := jetstream.ObjectMeta{
		Name:    ref,
		Headers: nats.Header{"Content-Type": []string{contentType}},
	}
	if _, err := s.store.Put(ctx, meta, bytes.NewReader(data)); err != nil {
		return "", fmt.Errorf("store blob: %w", err)
	}
	return ref, nil
}

func (s *ObjectStore) Get(ctx context.Context, ref string) ([]byte, string, error) {
	if !validReference(ref) {
		return nil, "", ErrInvalidReference
	}
	result, err := s.store.Get(ctx, ref)
	if errors.Is(err, jetstream.ErrObjectNotFound) {
		return nil, "", ErrNotFound
	}
	if err != nil {
		return nil, "", fmt.Errorf("get blob: %w", err)
	}
	defer result.Close()

	data, err := io.ReadAll(result)
	if err != nil {
		return nil, "", fmt.Errorf("read blob: %w", err)
	}

	contentType := contentTypeOf(ref)
	if info, err := result.Info(); err == nil && info.Headers != nil {
		if ct := info.Headers.Get("Content-Type"); ct != "" {
			contentType = ct
		}
	}
	return data, contentType, nil
}

func (s *ObjectStore) Delete(ctx context.Context, ref string) error {
	if !validReference(ref) {
		return ErrInvalidReference
	}
	err := s.store.Delete(ctx, ref)
	if errors.Is(err, jetstream.ErrObjectNotFound) {
		return ErrNotFound
	}
	return err
}

// DeleteAll drops the bucket and creates it again.
func (s *ObjectStore) DeleteAll(ctx context.Context) error {
	if err := s.js.DeleteObjectStore(ctx, s.bucket); err != nil && !errors.Is(err, jetstream.ErrStreamNotFound) {
		return fmt.Errorf("delete bucket: %w", err)
	}
	return s.open(ctx)
}

func (s *ObjectStore) Close() {
	s.conn.Close()
}
