// internal/errors/errors.go
package appErrors

import (
	"errors"
	"fmt"
)

// ConfigError is returned when a collaborator is used without its credentials.
type ConfigError struct {
	Setting string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("missing configuration: %s", e.Setting)
}

func NewConfigError(setting string) error {
	return &ConfigError{Setting: setting}
}

// CollaboratorError is a non-success answer (or no answer) from an external service.
// Status is 0 for transport errors and timeouts.
type CollaboratorError struct {
	Service string
	Status  int
	Body    string
	Err     error
}

func (e *CollaboratorError) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("%s unreachable: %v", e.Service, e.Err)
	}
	return fmt.Sprintf("%s status=%d body=%s", e.Service, e.Status, e.Body)
}

func (e *CollaboratorError) Unwrap() error { return e.Err }

// Definite reports whether the service answered with a rejection, as opposed
// to a timeout or transport failure where the outcome is unknown.
func (e *CollaboratorError) Definite() bool { return e.Status != 0 }

func NewCollaboratorError(service string, status int, body string) error {
	return &CollaboratorError{Service: service, Status: status, Body: Truncate(body, 500)}
}

func NewUnreachable(service string, err error) error {
	return &CollaboratorError{Service: service, Err: err}
}

// ValidationError rejects a single malformed input value.
type ValidationError struct {
	Field  string
	Value  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s %q: %s", e.Field, e.Value, e.Reason)
}

func NewValidationError(field, value, reason string) error {
	return &ValidationError{Field: field, Value: value, Reason: reason}
}

func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

func IsConfig(err error) bool {
	var c *ConfigError
	return errors.As(err, &c)
}

// Truncate cuts s to at most n bytes without splitting a UTF-8 sequence.
func Truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	cut := n
	for cut > 0 && (s[cut]&0xC0) == 0x80 {
		cut--
	}
	return s[:cut]
}
