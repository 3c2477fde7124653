package database

import (
	"context"
	"database/sql"
	"fmt"
	"math/rand"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
)

type TxOptions struct {
	IsolationLevel sql.IsolationLevel
	ReadOnly       bool
	MaxRetries     int
}

var maxRetries atomic.Int64

func init() {
	maxRetries.Store(3)
}

// SetMaxRetries changes the retry budget used by the option constructors.
func SetMaxRetries(n int) {
	maxRetries.Store(int64(n))
}

func DefaultTxOptions() TxOptions {
	return TxOptions{
		IsolationLevel: sql.LevelReadCommitted,
		ReadOnly:       false,
		MaxRetries:     int(maxRetries.Load()),
	}
}

// SerializableTxOptions is used by every read-validate-write operation: a
// concurrent conflicting transaction aborts one side with 40001 and
// WithRetry runs it again against fresh data.
func SerializableTxOptions() TxOptions {
	return TxOptions{
		IsolationLevel: sql.LevelSerializable,
		MaxRetries:     int(maxRetries.Load()),
	}
}

func WithTransaction(ctx context.Context, db *sql.DB, opts TxOptions, fn func(*sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, &sql.TxOptions{
		Isolation: opts.IsolationLevel,
		ReadOnly:  opts.ReadOnly,
	})
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("rollback failed: %v (original error: %w)", rbErr, err)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}

	return nil
}

func WithRetry(ctx context.Context, db *sql.DB, opts TxOptions, fn func(*sql.Tx) error) error {
	var lastErr error
	backoff := 50 * time.Millisecond

	for attempt := 0; attempt <= opts.MaxRetries; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		tx, err := db.BeginTx(ctx, &sql.TxOptions{
			Isolation: opts.IsolationLevel,
			ReadOnly:  opts.ReadOnly,
		})
		if err != nil {
			return fmt.Errorf("begin transaction: %w", err)
		}

		stage := "execute"
		err = fn(tx)
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				return fmt.Errorf("rollback failed: %v (original error: %w)", rbErr, err)
			}
		} else if err = tx.Commit(); err != nil {
			stage = "commit"
		} else {
			return nil
		}

		switch ClassifyError(err) {
		case ErrorClassPermanent:
			if stage == "commit" {
				return fmt.Errorf("commit transaction: %w", err)
			}
			return err
		case ErrorClassPermission:
			return fmt.Errorf("%w: %v", ErrPermissionDenied, err)
		}

		if attempt == opts.MaxRetries {
			return fmt.Errorf("max retries (%d) exceeded on %s: %w", opts.MaxRetries, stage, err)
		}

		lastErr = err

		jitter := time.Duration(rand.Int63n(int64(backoff / 4)))
		sleepDuration := backoff + jitter

		logrus.WithFields(logrus.Fields{
			"attempt": attempt + 1,
			"stage":   stage,
			"backoff": sleepDuration,
		}).WithError(err).Debug("retrying conflicting transaction")

		select {
		case <-time.After(sleepDuration):
		case <-ctx.Done():
			return ctx.Err()
		}

		backoff *= 2
	}

	return lastErr
}
