package cli

import (
	"errors"
	"fmt"

	"github.com/wesleyorama2/perfgate/internal/config"
	"github.com/wesleyorama2/perfgate/internal/report"
	"github.com/wesleyorama2/perfgate/internal/stats"
)

// Process exit codes.
const (
	ExitPassed  = 0
	ExitBreach  = 1
	ExitUsage   = 2
	ExitParse   = 3
	ExitIOError = 4
	ExitFatal   = 5
)

// ExitError carries a process exit status out of a command.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("exit status %d", e.Code)
	}
	return e.Err.Error()
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

func usageError(err error) error {
	return &ExitError{Code: ExitUsage, Err: err}
}

// errBreach signals a failed gate; its verdict line was already printed.
var errBreach = &ExitError{Code: ExitBreach}

// exitCode maps an error returned by a command to the process exit status.
// Only a failed gate exits with ExitBreach.
func exitCode(err error) int {
	if err == nil {
		return ExitPassed
	}

	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}

	var (
		parseErr  *stats.ParseError
		writeErr  *report.WriteError
		configErr *config.ValidationErrors
	)
	switch {
	case errors.As(err, &parseErr):
		return ExitParse
	case errors.As(err, &writeErr):
		return ExitIOError
	case errors.Is(err, stats.ErrInputNotFound),
		errors.Is(err, config.ErrConfigNotFound),
		errors.As(err, &configErr):
		return ExitUsage
	default:
		return ExitFatal
	}
}
