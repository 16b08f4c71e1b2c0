package ledkit

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrShutdown is returned by operations on a controller after Shutdown.
var ErrShutdown = errors.New("controller shut down")

// ConfigError reports invalid static configuration. It is fatal at startup.
type ConfigError struct {
	Reason string
}

func (ce *ConfigError) Error() string {
	return "invalid output configuration: " + ce.Reason
}

func configErrorf(format string, args ...interface{}) error {
	return &ConfigError{Reason: fmt.Sprintf(format, args...)}
}

// NotFoundError reports an identifier outside the configured set.
type NotFoundError struct {
	Id string
}

func (nfe *NotFoundError) Error() string {
	return fmt.Sprintf("output line %q not found", nfe.Id)
}

// DriverError wraps a failed Line Driver call for a single output line.
type DriverError struct {
	Id  string
	Pin uint16
	Op  string
	Err error
}

func (de *DriverError) Error() string {
	return fmt.Sprintf("driver %s failed for line %q (pin %d): %v", de.Op, de.Id, de.Pin, de.Err)
}

func (de *DriverError) Unwrap() error {
	return de.Err
}

func (de *DriverError) Cause() error {
	return de.Err
}

func IsConfigError(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}

func IsNotFound(err error) bool {
	var nfe *NotFoundError
	return errors.As(err, &nfe)
}

func IsDriverError(err error) bool {
	var de *DriverError
	return errors.As(err, &de)
}
