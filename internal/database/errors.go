package database

import (
	"context"
	"errors"
	"strconv"

	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"

	"todo-api/pkg/logger"
)

// StoreError reports a failure of the relational store (unreachable, timed
// out, or statement rejected). Code carries the driver's native error code
// when there is one; it is informational only.
type StoreError struct {
	Op   string
	Code string
	Err  error
}

func (e *StoreError) Error() string {
	if e.Code != "" {
		return e.Op + ": " + e.Err.Error() + " (code " + e.Code + ")"
	}
	return e.Op + ": " + e.Err.Error()
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// Wrap turns a driver error into a *StoreError and logs it. nil stays nil and
// an existing StoreError is returned unchanged.
func Wrap(ctx context.Context, op string, err error) error {
	if err == nil {
		return nil
	}
	var se *StoreError
	if errors.As(err, &se) {
		return err
	}
	se = &StoreError{Op: op, Code: driverCode(err), Err: err}
	logger.Error(ctx, "Store operation failed", "op", op, "code", se.Code, "error", err)
	return se
}

func driverCode(err error) string {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code)
	}
	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		return strconv.Itoa(int(liteErr.ExtendedCode))
	}
	return ""
}
