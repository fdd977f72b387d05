package extract

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// ErrTimeout indicates a navigation that exceeded its deadline.
type ErrTimeout struct {
	Err error
}

func (e ErrTimeout) Error() string {
	return fmt.Errorf("timeout: %w", e.Err).Error()
}

func (e ErrTimeout) Unwrap() error {
	return e.Err
}

// ErrConnection indicates a network connectivity failure.
type ErrConnection struct {
	Err error
}

func (e ErrConnection) Error() string {
	return fmt.Errorf("connection: %w", e.Err).Error()
}

func (e ErrConnection) Unwrap() error {
	return e.Err
}

// ErrBlocked indicates the marketplace served a block, CAPTCHA, or error
// page instead of results.
type ErrBlocked struct {
	Message string
}

func (e ErrBlocked) Error() string {
	return fmt.Sprintf("blocked: %s", e.Message)
}

// IsTimeout reports whether err represents a navigation timeout.
func IsTimeout(err error) bool {
	var timeout ErrTimeout
	if errors.As(err, &timeout) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// classifyNavError wraps transport-level failures into the package taxonomy.
func classifyNavError(err error) error {
	if err == nil {
		return nil
	}
	if IsTimeout(err) {
		return ErrTimeout{Err: err}
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return ErrConnection{Err: err}
	}
	return err
}
