package storage

import (
	"context"
	"errors"
	"fmt"
)

// ErrNotFound is returned by KV.Get for keys that were never written.
var ErrNotFound = errors.New("key not found")

// KV is the byte-level key/value backend the Store writes through to.
type KV interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
}

// PersistenceError reports a failed write or read of a persisted key.
type PersistenceError struct {
	Op  string
	Key string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Key, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }
