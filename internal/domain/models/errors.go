package models

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned by stores when nothing matches the query.
var ErrNotFound = errors.New("not found")

// MissingDataError reports an absent or too short input. Callers skip the
// dependent sub-computation when they can.
type MissingDataError struct {
	Component string
	Need      int
	Have      int
}

func (e *MissingDataError) Error() string {
	if e.Need == 0 && e.Have == 0 {
		return fmt.Sprintf("%s: missing data", e.Component)
	}
	return fmt.Sprintf("%s: need %d, have %d", e.Component, e.Need, e.Have)
}

// ConversionError reports a producer value that could not be used as-is.
// The fallback was substituted.
type ConversionError struct {
	SourceID string
	Field    string
	Value    string
}

func (e *ConversionError) Error() string {
	return fmt.Sprintf("source %s: cannot convert %s=%q", e.SourceID, e.Field, e.Value)
}

// InconsistentSignalError reports a producer whose own stop/target ordering
// contradicts its direction.
type InconsistentSignalError struct {
	SourceID   string
	Direction  Direction
	Entry      float64
	StopLoss   float64
	TakeProfit float64
}

func (e *InconsistentSignalError) Error() string {
	return fmt.Sprintf("source %s: inconsistent %s signal (entry=%g stop=%g target=%g)",
		e.SourceID, e.Direction, e.Entry, e.StopLoss, e.TakeProfit)
}

// ComputationError wraps an unexpected failure in resolution or risk math.
type ComputationError struct {
	Horizon Horizon
	Stage   string
	Inputs  map[string]float64
	Err     error
}

func (e *ComputationError) Error() string {
	return fmt.Sprintf("%s %s: %v (inputs=%v)", e.Horizon, e.Stage, e.Err, e.Inputs)
}

func (e *ComputationError) Unwrap() error { return e.Err }

// ErrorKind classifies err for metrics and HTTP mapping.
func ErrorKind(err error) string {
	var (
		md *MissingDataError
		cv *ConversionError
		is *InconsistentSignalError
		ce *ComputationError
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &md):
		return "missing_data"
	case errors.As(err, &is):
		return "inconsistent_signal"
	case errors.As(err, &cv):
		return "conversion"
	case errors.As(err, &ce):
		return "computation"
	default:
		return "other"
	}
}
