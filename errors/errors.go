// Package errors carries the error kinds shared by the stores, aggregates and sagas.
// A kind survives any amount of github.com/pkg/errors wrapping on top of it.
package errors

import (
	stdErrors "errors"

	pkgErrors "github.com/pkg/errors"
)

const (
	KindInvalidArgument = "invalid_argument"
	KindInvalidState    = "invalid_state"
	KindPersistence     = "persistence"
	KindDecode          = "decode"
	KindUnknown         = "unknown"
)

// InvalidArgumentErr marks malformed input: missing ids, blank names, deadlines in the past.
type InvalidArgumentErr struct {
	error
}

func (e InvalidArgumentErr) Unwrap() error {
	return e.error
}

// InvalidStateErr marks an intent that is well formed but not allowed in the current status.
type InvalidStateErr struct {
	error
}

func (e InvalidStateErr) Unwrap() error {
	return e.error
}

// PersistenceErr marks a failure of the underlying store.
type PersistenceErr struct {
	error
}

func (e PersistenceErr) Unwrap() error {
	return e.error
}

// DecodeErr marks a stored record that can't be turned back into an event.
type DecodeErr struct {
	error
}

func (e DecodeErr) Unwrap() error {
	return e.error
}

func WithInvalidArgumentErr(err error) error {
	return InvalidArgumentErr{err}
}

func WithInvalidStateErr(err error) error {
	return InvalidStateErr{err}
}

func WithPersistenceErr(err error) error {
	return PersistenceErr{err}
}

func WithDecodeErr(err error) error {
	return DecodeErr{err}
}

// InvalidArgument is a shortcut for WithInvalidArgumentErr(errors.Errorf(...)).
func InvalidArgument(format string, args ...interface{}) error {
	return WithInvalidArgumentErr(pkgErrors.Errorf(format, args...))
}

// InvalidState is a shortcut for WithInvalidStateErr(errors.Errorf(...)).
func InvalidState(format string, args ...interface{}) error {
	return WithInvalidStateErr(pkgErrors.Errorf(format, args...))
}

func IsInvalidArgument(err error) bool {
	var target InvalidArgumentErr
	return as(err, &target)
}

func IsInvalidState(err error) bool {
	var target InvalidStateErr
	return as(err, &target)
}

func IsPersistence(err error) bool {
	var target PersistenceErr
	return as(err, &target)
}

func IsDecode(err error) bool {
	var target DecodeErr
	return as(err, &target)
}

// Kind returns a stable name of the outermost kind found in the chain, KindUnknown otherwise.
func Kind(err error) string {
	for err != nil {
		switch err.(type) {
		case InvalidArgumentErr:
			return KindInvalidArgument
		case InvalidStateErr:
			return KindInvalidState
		case PersistenceErr:
			return KindPersistence
		case DecodeErr:
			return KindDecode
		}
		err = stdErrors.Unwrap(err)
	}

	return KindUnknown
}

// as walks both Unwrap and pkg/errors Cause chains. pkg/errors v0.9.1 wrappers implement Unwrap,
// the Cause fallback keeps older wrappers detectable too.
func as(err error, target interface{}) bool {
	if stdErrors.As(err, target) {
		return true
	}

	return stdErrors.As(pkgErrors.Cause(err), target)
}
