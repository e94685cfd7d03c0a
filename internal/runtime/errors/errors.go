package errors

import (
	sterrors "errors"
	"fmt"
)

var (
	ErrConfigKeyMissing   = sterrors.New("omstasher: configuration key is missing")
	ErrConfigKeyMalformed = sterrors.New("omstasher: configuration value has the wrong type")
	ErrHandlerRequired    = sterrors.New("omstasher: service runtime handler is required")
	ErrConsumerRequired   = sterrors.New("omstasher: event consumer is required")
	ErrLoggerRequired     = sterrors.New("omstasher: logger is required")
	ErrDatabaseClosed     = sterrors.New("omstasher: database handle is closed")
	ErrContainerClosed    = sterrors.New("omstasher: dependency container is closed")
	ErrDispatcherStopped  = sterrors.New("omstasher: event dispatcher stopped")
)

// ConfigurationError reports missing or malformed input such as a bad
// address, a reserved port or an unparseable connection string.
type ConfigurationError struct {
	Key string
	Err error
}

func (e *ConfigurationError) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("omstasher: invalid configuration: %v", e.Err)
	}
	return fmt.Sprintf("omstasher: invalid configuration %q: %v", e.Key, e.Err)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// NewConfigurationError wraps err for key. A nil err yields nil.
func NewConfigurationError(key string, err error) error {
	if err == nil {
		return nil
	}
	return &ConfigurationError{Key: key, Err: err}
}

// SetupError reports a failure to acquire a resource, for example a database
// connection that could not be established.
type SetupError struct {
	Resource string
	Err      error
}

func (e *SetupError) Error() string {
	return fmt.Sprintf("omstasher: could not set up %s: %v", e.Resource, e.Err)
}

func (e *SetupError) Unwrap() error { return e.Err }

// NewSetupError wraps err for resource. A nil err yields nil.
func NewSetupError(resource string, err error) error {
	if err == nil {
		return nil
	}
	return &SetupError{Resource: resource, Err: err}
}

// HandlerError is raised by a service runtime handler. It terminates the
// owning runtime loop only.
type HandlerError struct {
	ServiceID uint8
	Err       error
}

func (e *HandlerError) Error() string {
	return fmt.Sprintf("omstasher: service %d handler failed: %v", e.ServiceID, e.Err)
}

func (e *HandlerError) Unwrap() error { return e.Err }

// IsConfiguration reports whether err carries a ConfigurationError.
func IsConfiguration(err error) bool {
	var cfgErr *ConfigurationError
	return sterrors.As(err, &cfgErr)
}

// IsSetup reports whether err carries a SetupError.
func IsSetup(err error) bool {
	var setupErr *SetupError
	return sterrors.As(err, &setupErr)
}
