package delta

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrUnknownColumn is returned when a projection or filter names a
	// column the resolved schema does not have.
	ErrUnknownColumn = errors.New("unknown column")
	// ErrUnsupportedProtocol is returned for tables requiring a newer reader.
	ErrUnsupportedProtocol = errors.New("unsupported delta protocol")
	// ErrInvalidOptions is returned for contradictory resolve options.
	ErrInvalidOptions = errors.New("invalid resolve options")
	// ErrCorruptLog is returned when the log cannot be replayed.
	ErrCorruptLog = errors.New("corrupt delta log")
)

// NotFoundError reports a missing checkpoint or log artifact
type NotFoundError struct {
	Path string
	// Checkpoint is set when the missing artifact is a checkpoint.
	Checkpoint *int64
}

func (e *NotFoundError) Error() string {
	if e.Checkpoint != nil {
		return fmt.Sprintf("parquet file with the given checkpoint %d does not exist: file %s not found", *e.Checkpoint, e.Path)
	}
	return fmt.Sprintf("delta log artifact %s not found", e.Path)
}

// RangeError reports a version that cannot be reconstructed from the
// available history.
type RangeError struct {
	Requested  int64
	Checkpoint int64
	Min        int64
	Max        int64
	// At is set when the request named an instant rather than a version.
	At *time.Time
}

func (e *RangeError) Error() string {
	if e.At != nil {
		return fmt.Sprintf("cannot time travel delta table to %s, the first available commit is version %d",
			e.At.UTC().Format(time.RFC3339), e.Min)
	}
	return fmt.Sprintf("cannot time travel delta table to version %d, available versions for checkpoint %d are [%d, %d]",
		e.Requested, e.Checkpoint, e.Min, e.Max)
}

// EmptySourceError reports a table whose history never recorded a data file
type EmptySourceError struct {
	Location string
}

func (e *EmptySourceError) Error() string {
	return fmt.Sprintf("no parquet files found in %s", e.Location)
}

// IsNotFound reports whether err is or wraps a *NotFoundError
func IsNotFound(err error) bool {
	var target *NotFoundError
	return errors.As(err, &target)
}

// IsRange reports whether err is or wraps a *RangeError
func IsRange(err error) bool {
	var target *RangeError
	return errors.As(err, &target)
}

// IsEmptySource reports whether err is or wraps an *EmptySourceError
func IsEmptySource(err error) bool {
	var target *EmptySourceError
	return errors.As(err, &target)
}
