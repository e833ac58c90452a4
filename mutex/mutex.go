// Package mutex serializes work on one aggregate or saga id across goroutines or, with the sql flavour, across processes.
package mutex

import (
	"context"
)

type MutexErr struct {
	error
}

func (e MutexErr) Unwrap() error {
	return e.error
}

func WithMutexErr(err error) error {
	return MutexErr{err}
}

// Lock is held until Release is called. Releasing twice is an error.
type Lock interface {
	Release(ctx context.Context) error
}

type Mutex interface {
	// Lock blocks until key is free or ctx is done.
	Lock(ctx context.Context, key string) (Lock, error)
}
