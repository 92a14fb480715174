package database

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"testing"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
)

func TestClassifyError(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want ErrorClass
	}{
		{"nil", nil, ErrorClassPermanent},
		{"serialization", &pq.Error{Code: "40001"}, ErrorClassSerialization},
		{"deadlock", &pq.Error{Code: "40P01"}, ErrorClassDeadlock},
		{"lock not available", &pq.Error{Code: "55P03"}, ErrorClassTransient},
		{"unique violation", &pq.Error{Code: "23505"}, ErrorClassPermanent},
		{"wrapped deadlock", fmt.Errorf("update status: %w", &pq.Error{Code: "40P01"}), ErrorClassDeadlock},
		{"bad conn", driver.ErrBadConn, ErrorClassTransient},
		{"deadline", context.DeadlineExceeded, ErrorClassTransient},
		{"no rows", sql.ErrNoRows, ErrorClassPermanent},
		{"plain", errors.New("boom"), ErrorClassPermanent},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, ClassifyError(tc.err))
		})
	}
}

func TestPersistenceError(t *testing.T) {
	cause := &pq.Error{Code: "40001"}
	err := NewPersistenceError("create order", cause)

	assert.True(t, err.Retryable())
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "create order")

	var target *PersistenceError
	assert.True(t, errors.As(fmt.Errorf("checkout: %w", err), &target))

	assert.False(t, NewPersistenceError("create order", &pq.Error{Code: "23503"}).Retryable())
}

func TestIsForeignKeyViolation(t *testing.T) {
	assert.True(t, IsForeignKeyViolation(fmt.Errorf("insert: %w", &pq.Error{Code: "23503"})))
	assert.False(t, IsForeignKeyViolation(&pq.Error{Code: "23505"}))
	assert.False(t, IsForeignKeyViolation(errors.New("boom")))
}

func TestIsUniqueViolation(t *testing.T) {
	assert.True(t, IsUniqueViolation(fmt.Errorf("insert: %w", &pq.Error{Code: "23505"})))
	assert.False(t, IsUniqueViolation(&pq.Error{Code: "23503"}))
}

func TestLockTimeoutStaysRetryable(t *testing.T) {
	cause := &pq.Error{Code: "55P03"}
	assert.True(t, IsLockNotAvailable(cause))

	err := fmt.Errorf("lock order 1: %w: %w", ErrLockTimeout, cause)
	assert.ErrorIs(t, err, ErrLockTimeout)
	assert.True(t, IsRetryable(err))
}

func TestCommitErrorOutcome(t *testing.T) {
	lost := commitError(driver.ErrBadConn)
	assert.ErrorIs(t, lost, ErrCommitUncertain)
	assert.ErrorIs(t, lost, driver.ErrBadConn)
	assert.False(t, IsRetryable(lost))
	assert.False(t, NewPersistenceError("create order", lost).Retryable())

	rejected := commitError(&pq.Error{Code: "40001"})
	assert.NotErrorIs(t, rejected, ErrCommitUncertain)
	assert.True(t, IsRetryable(rejected))
}
