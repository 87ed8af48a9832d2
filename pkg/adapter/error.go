package adapter

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// AdapterError wraps a provider failure with the HTTP status it carried.
type AdapterError struct {
	Provider  string
	Status    int
	Temporary bool
	Err       error
}

func (e *AdapterError) Error() string {
	if e == nil {
		return "adapter error"
	}
	msg := fmt.Sprintf("status %d", e.Status)
	if e.Err != nil {
		msg = e.Err.Error()
	}
	if e.Provider != "" {
		return e.Provider + " API error: " + msg
	}
	return msg
}

func (e *AdapterError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func providerError(provider string, status int, err error) *AdapterError {
	return &AdapterError{Provider: provider, Status: status, Err: err}
}

// StatusCode returns the provider status carried by err, or 0.
func StatusCode(err error) int {
	var adapterErr *AdapterError
	if errors.As(err, &adapterErr) {
		return adapterErr.Status
	}
	return 0
}

// IsTransient reports whether an error is safe to retry: timeouts, rate
// limiting, overload and server-side failures.
func IsTransient(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var adapterErr *AdapterError
	if !errors.As(err, &adapterErr) {
		return false
	}
	if adapterErr.Temporary {
		return true
	}
	switch status := adapterErr.Status; {
	case status == http.StatusRequestTimeout, status == http.StatusTooManyRequests:
		return true
	case status >= 500 && status <= 599:
		return true
	}
	return false
}
