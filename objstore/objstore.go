// Package objstore exposes objects in an S3-compatible store as
// random-access host blobs. Every slice read is one ranged GET pinned to
// the object's ETag, so a replaced object fails reads instead of mixing
// bytes of two versions.
package objstore

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/VanDung-dev/colblob/host"
)

// Config holds object store configuration.
type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Region    string
	UseSSL    bool
	// ReadTimeout bounds each ranged GET.
	ReadTimeout time.Duration
	Logger      *slog.Logger
}

// DefaultConfig returns default configuration.
func DefaultConfig() *Config {
	return &Config{
		Endpoint:    "localhost:9000",
		Bucket:      "colblob",
		Region:      "us-east-1",
		ReadTimeout: time.Minute,
		Logger:      slog.Default(),
	}
}

// Store opens objects of one bucket.
type Store struct {
	client  *minio.Client
	bucket  string
	timeout time.Duration
	logger  *slog.Logger
}

// NewStore creates a store client. No request is made until Open.
func NewStore(cfg *Config) (*Store, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:        credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure:       cfg.UseSSL,
		Region:       cfg.Region,
		BucketLookup: minio.BucketLookupPath,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create object store client: %w", err)
	}

	return &Store{
		client:  client,
		bucket:  cfg.Bucket,
		timeout: cfg.ReadTimeout,
		logger:  logger.With("component", "objstore", "bucket", cfg.Bucket),
	}, nil
}

// Open stats key and returns it as a blob confined to loop.
func (s *Store) Open(ctx context.Context, loop *host.Loop, key string) (*ObjectBlob, error) {
	info, err := s.client.StatObject(ctx, s.bucket, key, minio.StatObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to stat %s/%s: %w", s.bucket, key, err)
	}

	s.logger.Debug("Opened object", "key", key, "size", info.Size, "etag", info.ETag)
	return &ObjectBlob{
		store: s,
		loop:  loop,
		key:   key,
		etag:  info.ETag,
		end:   uint64(info.Size),
	}, nil
}

// ObjectBlob is a byte range of one object version.
type ObjectBlob struct {
	store *Store
	loop  *host.Loop
	key   string
	etag  string
	start uint64
	end   uint64
}

var _ host.Sliceable = (*ObjectBlob)(nil)

func (b *ObjectBlob) Size() uint64 { return b.end - b.start }

func (b *ObjectBlob) Loop() *host.Loop { return b.loop }

// Key returns the object key.
func (b *ObjectBlob) Key() string { return b.key }

// ETag returns the version the blob is pinned to.
func (b *ObjectBlob) ETag() string { return b.etag }

func (b *ObjectBlob) Slice(start, end uint64) (host.Blob, error) {
	if start > end || end > b.Size() {
		return nil, fmt.Errorf("%w: [%d, %d) of %d", host.ErrInvalidSlice, start, end, b.Size())
	}
	return &ObjectBlob{
		store: b.store,
		loop:  b.loop,
		key:   b.key,
		etag:  b.etag,
		start: b.start + start,
		end:   b.start + end,
	}, nil
}

func (b *ObjectBlob) NewReader() host.BlobReader {
	return &objectReader{store: b.store, loop: b.loop}
}

type objectReader struct {
	store  *Store
	loop   *host.Loop
	onLoad func([]byte, error)
	used   bool
}

func (r *objectReader) OnLoad(fn func([]byte, error)) { r.onLoad = fn }

func (r *objectReader) ReadAll(blob host.Blob) error {
	if r.used {
		return host.ErrReaderUsed
	}
	ob, ok := blob.(*ObjectBlob)
	if !ok || ob.store != r.store {
		return host.ErrForeignBlob
	}
	r.used = true

	cb := r.onLoad
	go func() {
		data, err := r.store.readRange(ob)
		if cb == nil {
			return
		}
		_ = r.loop.Post(func() { cb(data, err) })
	}()
	return nil
}

// readRange fetches the bytes of b with one ranged GET.
func (s *Store) readRange(b *ObjectBlob) ([]byte, error) {
	if b.Size() == 0 {
		return []byte{}, nil
	}

	ctx := context.Background()
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	opts := minio.GetObjectOptions{}
	if err := opts.SetRange(int64(b.start), int64(b.end)-1); err != nil {
		return nil, err
	}
	if b.etag != "" {
		if err := opts.SetMatchETag(b.etag); err != nil {
			return nil, err
		}
	}

	obj, err := s.client.GetObject(ctx, s.bucket, b.key, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to get %s/%s: %w", s.bucket, b.key, err)
	}
	defer obj.Close()

	buf := make([]byte, b.Size())
	if _, err := io.ReadFull(obj, buf); err != nil {
		return nil, fmt.Errorf("failed to read %s/%s [%d, %d): %w", s.bucket, b.key, b.start, b.end, err)
	}
	return buf, nil
}
