package storage

import (
	"context"
	"errors"
	"fmt"
)

// ObjectStorage is bucket-aware blob storage addressed by hierarchical keys.
type ObjectStorage interface {
	// Put writes data under bucket/key, replacing any existing object
	Put(ctx context.Context, bucket, key string, data []byte, contentType string) error

	// Get reads the full object. Missing objects yield an error wrapping ErrNotFound
	Get(ctx context.Context, bucket, key string) ([]byte, error)

	// Exists checks if an object exists
	Exists(ctx context.Context, bucket, key string) (bool, error)

	// Delete removes an object
	Delete(ctx context.Context, bucket, key string) error

	// URL returns a link for an object, for reports
	URL(bucket, key string) string

	// EnsureBucket creates the bucket if it doesn't exist
	EnsureBucket(ctx context.Context, bucket string) error
}

var (
	ErrNotFound       = errors.New("object not found")
	ErrBucketNotFound = errors.New("bucket not found")
	ErrAccessDenied   = errors.New("access denied")
)

// Error wraps a backend failure with the operation and coordinates.
type Error struct {
	Op     string
	Bucket string
	Key    string
	Err    error
	Cause  error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("storage %s %s/%s: %v", e.Op, e.Bucket, e.Key, e.Err)
	if e.Cause != nil && e.Cause != e.Err {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *Error) Unwrap() []error {
	if e.Cause == nil || e.Cause == e.Err {
		return []error{e.Err}
	}
	return []error{e.Err, e.Cause}
}

// IsNotFound reports whether err indicates a missing object or bucket.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, ErrBucketNotFound)
}
