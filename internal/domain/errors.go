package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrInvariantViolation marks a trade the position ledger refuses to apply.
	// The cursor is withheld so the trade stays visible for inspection.
	ErrInvariantViolation = errors.New("ledger invariant violation")

	// ErrAlreadyApplied is returned when a trade id is at or below the cursor.
	ErrAlreadyApplied = errors.New("trade already applied")

	// ErrInvalidTrade is returned for malformed trade log rows.
	ErrInvalidTrade = errors.New("invalid leader trade")

	// ErrTransientSource wraps feed and lookup failures that are retried later.
	ErrTransientSource = errors.New("transient source error")
)

// InvariantError carries the trade that triggered an invariant violation.
type InvariantError struct {
	TradeID int64
	Key     PositionKey
	Detail  string
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("%s: trade %d on %s: %s", ErrInvariantViolation, e.TradeID, e.Key, e.Detail)
}

func (e *InvariantError) Unwrap() error { return ErrInvariantViolation }
