// services/errors.go
package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

var (
	// ErrInvalidActor is returned when a request carries no actor id.
	ErrInvalidActor = errors.New("actor id is required")
	// ErrInvalidGift is returned when an actor tries to gift a reward to itself.
	ErrInvalidGift = errors.New("gift target must differ from the acting actor")
	// ErrStoreUnavailable marks a transient failure of the backing store.
	ErrStoreUnavailable = errors.New("store unavailable")
	// ErrStoreTimeout marks a store call that exceeded its deadline.
	ErrStoreTimeout = errors.New("store timeout")
)

// StoreError wraps a failed store operation. It matches ErrStoreTimeout or
// ErrStoreUnavailable through errors.Is, depending on the cause.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

func (e *StoreError) Is(target error) bool {
	switch target {
	case ErrStoreTimeout:
		return errors.Is(e.Err, context.DeadlineExceeded)
	case ErrStoreUnavailable:
		return !errors.Is(e.Err, context.DeadlineExceeded)
	}
	return false
}

func storeError(op string, err error) error {
	if err == nil {
		return nil
	}
	return &StoreError{Op: op, Err: err}
}

// isDuplicateKey reports whether a concurrent claim for the same actor
// committed a record with the same natural key first.
func isDuplicateKey(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// isSerializationFailure reports a PostgreSQL SQLSTATE 40001. It says nothing
// about cooldown: predicate locks are coarse and unrelated actors can collide.
func isSerializationFailure(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "40001"
}
