package errors

import (
	"errors"
	"fmt"
)

var (
	ErrNoSnapshot          = errors.New("no snapshot file for partition")
	ErrEmptyIdentity       = errors.New("identity columns must not be empty")
	ErrMissingColumn       = errors.New("required column missing")
	ErrSchemaValidation    = errors.New("schema validation failed")
	ErrUnknownSourceSystem = errors.New("unknown source system")
	ErrDescriptorNotFound  = errors.New("descriptor not found")
	ErrExternalAPIError    = errors.New("external API error")
	ErrRunNotFound         = errors.New("run not found")
)

type ValidationError struct {
	File    string
	Column  string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("validation failed for file '%s', column '%s': %s",
		e.File, e.Column, e.Message)
}

func (e ValidationError) Is(target error) bool {
	return target == ErrSchemaValidation
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

func IsRetryable(err error) bool {
	var re RetryableError
	return errors.As(err, &re)
}
