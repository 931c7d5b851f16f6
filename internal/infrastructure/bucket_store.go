package infrastructure

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/yourusername/hotsync-go/internal/domain"
	"gocloud.dev/blob"
	_ "gocloud.dev/blob/fileblob"
	_ "gocloud.dev/blob/memblob"
	"gocloud.dev/gcerrors"
)

var errReadOnlyCache = errors.New("cache is read-only")

// BucketStore exposes pre-bundled package content as a read-only cache
type BucketStore struct {
	bucket *blob.Bucket
}

// NewBucketStore wraps an open bucket
func NewBucketStore(bucket *blob.Bucket) *BucketStore {
	return &BucketStore{bucket: bucket}
}

// OpenBucket opens a bucket URL (file://, mem://) scoped to a package prefix
func OpenBucket(ctx context.Context, bucketURL, pkg string) (*blob.Bucket, error) {
	bucket, err := blob.OpenBucket(ctx, bucketURL)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open bucket %q: %v", domain.ErrConfiguration, bucketURL, err)
	}
	return blob.PrefixedBucket(bucket, pkg+"/"), nil
}

// Has reports whether the bucket holds the bundle with the expected size
func (s *BucketStore) Has(bundle domain.BundleEntry) bool {
	attrs, err := s.bucket.Attributes(context.Background(), bundle.FileName)
	return err == nil && attrs.Size == bundle.Size
}

// Write is not supported
func (s *BucketStore) Write(ctx context.Context, bundle domain.BundleEntry, r io.Reader) error {
	return fmt.Errorf("failed to write %s: %w", bundle.FileName, errReadOnlyCache)
}

// Open reads a bundle from the bucket
func (s *BucketStore) Open(bundle domain.BundleEntry) (io.ReadCloser, error) {
	r, err := s.bucket.NewReader(context.Background(), bundle.FileName, nil)
	if gcerrors.Code(err) == gcerrors.NotFound {
		return nil, fmt.Errorf("%w: %s", domain.ErrNotCached, bundle.FileName)
	}
	if err != nil {
		return nil, err
	}
	return r, nil
}

// List returns every key in the bucket
func (s *BucketStore) List() ([]string, error) {
	var names []string
	iter := s.bucket.List(nil)
	for {
		obj, err := iter.Next(context.Background())
		if err == io.EOF {
			return names, nil
		}
		if err != nil {
			return nil, err
		}
		if !obj.IsDir {
			names = append(names, obj.Key)
		}
	}
}

// Remove is not supported
func (s *BucketStore) Remove(fileName string) error {
	return errReadOnlyCache
}

// RemoveAll is not supported
func (s *BucketStore) RemoveAll() error {
	return errReadOnlyCache
}

// ReadOnly returns true
func (s *BucketStore) ReadOnly() bool {
	return true
}

// Info sums the sizes of every object in the bucket
func (s *BucketStore) Info() (*domain.CacheInfo, error) {
	info := &domain.CacheInfo{}
	iter := s.bucket.List(nil)
	for {
		obj, err := iter.Next(context.Background())
		if err == io.EOF {
			return info, nil
		}
		if err != nil {
			return nil, err
		}
		if !obj.IsDir {
			info.FileCount++
			info.TotalSize += obj.Size
		}
	}
}

// LockShared is a no-op, nothing writes to the bucket
func (s *BucketStore) LockShared(ctx context.Context) (func(), error) {
	return func() {}, nil
}

// LockExclusive is a no-op, nothing writes to the bucket
func (s *BucketStore) LockExclusive(ctx context.Context) (func(), error) {
	return func() {}, nil
}

// Close closes the underlying bucket
func (s *BucketStore) Close() error {
	return s.bucket.Close()
}

// readBucketFile reads a whole key, mapping a missing key to ok=false
func readBucketFile(ctx context.Context, bucket *blob.Bucket, key string) (data []byte, ok bool, err error) {
	data, err = bucket.ReadAll(ctx, key)
	if gcerrors.Code(err) == gcerrors.NotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}
