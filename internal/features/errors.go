package features

import (
	"fmt"
	"strings"
)

// InputError reports a bar series that violates the input contract:
// empty series, unordered or duplicate dates, non-positive prices,
// negative volume, or NaN cells. The pipeline fails fast on an
// InputError and produces no table.
type InputError struct {
	Symbol string
	Reason string
	Err    error
}

// Error implements the error interface.
func (e *InputError) Error() string {
	msg := fmt.Sprintf("invalid input series %q: %s", e.Symbol, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap supports errors.Is and errors.As chains.
func (e *InputError) Unwrap() error {
	return e.Err
}

func newInputError(symbol, reason string, err error) *InputError {
	return &InputError{Symbol: symbol, Reason: reason, Err: err}
}

// ComputationError records a failure inside one indicator's computation,
// usually a recovered panic or a backend call error. It is stored in the
// run diagnostics rather than returned: the failed indicator's columns
// are fully NaN and the pipeline continues.
type ComputationError struct {
	Indicator string   `json:"indicator"`
	Columns   []string `json:"columns"`
	Message   string   `json:"message"`
}

// Error implements the error interface.
func (e *ComputationError) Error() string {
	return fmt.Sprintf("indicator %s failed (columns %s): %s",
		e.Indicator, strings.Join(e.Columns, ","), e.Message)
}
