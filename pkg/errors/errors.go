package errors

import (
	"errors"
	"fmt"
)

var (
	ErrEnrollmentNotFound = errors.New("enrollment not found")
	ErrDeviceInactive     = errors.New("device is inactive")
	ErrInvalidFileFormat  = errors.New("invalid file format")
	ErrInvalidTimestamp   = errors.New("invalid timestamp")
	ErrEmptyBatch         = errors.New("empty scan batch")
	ErrDirectoryAPIError  = errors.New("directory API error")
)

type NotFoundError struct {
	Resource string
	ID       interface{}
}

func (e NotFoundError) Error() string {
	return fmt.Sprintf("%s '%v' not found", e.Resource, e.ID)
}

func NewNotFoundError(resource string, id interface{}) error {
	return NotFoundError{Resource: resource, ID: id}
}

// IsNotFound reports whether err wraps a NotFoundError.
func IsNotFound(err error) bool {
	var nf NotFoundError
	return errors.As(err, &nf)
}

type DuplicateDeviceError struct {
	TenantID string
	DeviceID string
}

func (e DuplicateDeviceError) Error() string {
	return fmt.Sprintf("device '%s' already registered for tenant '%s'", e.DeviceID, e.TenantID)
}

type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("validation failed for field '%s' with value '%v': %s",
		e.Field, e.Value, e.Message)
}

func IsValidation(err error) bool {
	var ve ValidationError
	return errors.As(err, &ve)
}

type RetryableError struct {
	Err     error
	Message string
}

func (e RetryableError) Error() string {
	return fmt.Sprintf("retryable error: %s - %s", e.Message, e.Err.Error())
}

func (e RetryableError) Unwrap() error {
	return e.Err
}

func NewRetryableError(err error, message string) error {
	return RetryableError{
		Err:     err,
		Message: message,
	}
}

// IsRetryable reports whether err wraps a RetryableError.
func IsRetryable(err error) bool {
	var re RetryableError
	return errors.As(err, &re)
}
