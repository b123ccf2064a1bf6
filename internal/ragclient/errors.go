package ragclient

import (
	"fmt"
	"net/http"
)

// ServiceError is a response from the service that reports failure.
type ServiceError struct {
	StatusCode int
	Detail     string
}

func (e *ServiceError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("service returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("service returned status %d: %s", e.StatusCode, e.Detail)
}

// TransportError means no response was obtained from the service.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

func newStatusError(status int, detail string) *ServiceError {
	if detail == "" {
		detail = http.StatusText(status)
	}
	return &ServiceError{StatusCode: status, Detail: detail}
}
