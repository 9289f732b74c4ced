package persistence

import (
	"errors"
	"fmt"
)

var (
	// ErrBlobNotFound indicates nothing is stored under the requested key.
	ErrBlobNotFound = errors.New("blob not found")

	// ErrInvalidKey indicates a key that the backend cannot store.
	ErrInvalidKey = errors.New("invalid blob key")
)

// BlobError wraps a backend failure with the operation and key involved.
type BlobError struct {
	Op  string // Operation being performed (e.g., "Get", "Put")
	Key string
	Err error
}

func (e *BlobError) Error() string {
	return fmt.Sprintf("%s operation failed for key %s: %v", e.Op, e.Key, e.Err)
}

func (e *BlobError) Unwrap() error {
	return e.Err
}

func (e *BlobError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

func NewBlobError(op, key string, err error) *BlobError {
	return &BlobError{
		Op:  op,
		Key: key,
		Err: err,
	}
}

// IsBlobNotFound checks if an error indicates a missing key.
func IsBlobNotFound(err error) bool {
	return errors.Is(err, ErrBlobNotFound)
}
