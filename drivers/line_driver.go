package drivers

import (
	"context"
)

// LineDriver performs physical actuation of digital output lines.
// A driver must be Setup before any pin is configured or written.
type LineDriver interface {
	Setup(ctx context.Context) error
	ConfigureOutput(pin uint16) error
	Write(pin uint16, state bool) error
	Close() error
	String() string
	IsReady() bool
}

func MapAllLineDrivers() map[string]LineDriver {
	drivers := []LineDriver{
		&GpIO{},
		&PeriphIO{},
		&McpIO{},
		&MockLineDriver{},
	}

	mapped := make(map[string]LineDriver)
	for _, driver := range drivers {
		mapped[driver.String()] = driver
	}
	return mapped
}
