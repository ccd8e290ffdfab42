package stats

import (
	"errors"
	"fmt"
)

var (
	// ErrInputNotFound is returned when the results file does not exist.
	ErrInputNotFound = errors.New("stats file not found")

	// ErrNoAggregateRow is returned when no row carries the aggregate sentinel.
	ErrNoAggregateRow = errors.New("no aggregate row")
)

// ParseError reports a results file that cannot be turned into a Record.
type ParseError struct {
	// Field is the column that failed, empty for row-level problems
	Field string

	// Row is the 1-based CSV line number, 0 when not tied to a row
	Row int

	// Value is the raw cell content
	Value string

	Err error
}

func (e *ParseError) Error() string {
	switch {
	case e.Field != "" && e.Row > 0:
		return fmt.Sprintf("parse error on line %d, field %q (value %q): %v", e.Row, e.Field, e.Value, e.Err)
	case e.Field != "":
		return fmt.Sprintf("parse error on field %q: %v", e.Field, e.Err)
	case e.Row > 0:
		return fmt.Sprintf("parse error on line %d: %v", e.Row, e.Err)
	default:
		return fmt.Sprintf("parse error: %v", e.Err)
	}
}

func (e *ParseError) Unwrap() error {
	return e.Err
}
