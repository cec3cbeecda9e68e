package intelligence

import (
	"errors"
	"fmt"
)

var (
	// ErrAllowanceExceeded matches every *AllowanceExceededError.
	ErrAllowanceExceeded = errors.New("intelligence: sample allowance exceeded")
	// ErrDataSourceUnavailable matches every *DataSourceError.
	ErrDataSourceUnavailable = errors.New("intelligence: data source unavailable")
	// ErrInvalidConfiguration is returned when tenant thresholds are nonsensical.
	ErrInvalidConfiguration = errors.New("intelligence: invalid configuration")
	// ErrReaderNotConfigured indicates the engine was built without a reader.
	ErrReaderNotConfigured = errors.New("intelligence: reader not configured")
	// ErrInvalidRequest indicates malformed caller input.
	ErrInvalidRequest = errors.New("intelligence: invalid request")
)

// AllowanceExceededError rejects a sample transfer that needs manager approval.
type AllowanceExceededError struct {
	Current   int64 `json:"current"`
	Requested int64 `json:"requested"`
	Limit     int64 `json:"limit"`
}

func (e *AllowanceExceededError) Error() string {
	return fmt.Sprintf("intelligence: sample allowance exceeded: current=%d requested=%d limit=%d", e.Current, e.Requested, e.Limit)
}

// Is lets errors.Is match ErrAllowanceExceeded.
func (e *AllowanceExceededError) Is(target error) bool {
	return target == ErrAllowanceExceeded
}

// DataSourceError wraps a failed read or write against the order history store.
type DataSourceError struct {
	Op  string
	Err error
}

func (e *DataSourceError) Error() string {
	return fmt.Sprintf("intelligence: data source unavailable: %s: %v", e.Op, e.Err)
}

func (e *DataSourceError) Unwrap() error {
	return e.Err
}

// Is lets errors.Is match ErrDataSourceUnavailable.
func (e *DataSourceError) Is(target error) bool {
	return target == ErrDataSourceUnavailable
}

// WrapDataSource tags err as a data-source failure for op. Nil stays nil and
// errors that are already tagged are returned untouched.
func WrapDataSource(op string, err error) error {
	if err == nil {
		return nil
	}
	var dsErr *DataSourceError
	if errors.As(err, &dsErr) {
		return err
	}
	return &DataSourceError{Op: op, Err: err}
}

func invalidConfig(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidConfiguration, fmt.Sprintf(format, args...))
}
