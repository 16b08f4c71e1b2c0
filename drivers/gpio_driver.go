package drivers

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"github.com/stianeikeland/go-rpio/v4"
)

const gpioDriverName = "gpio"

// GpIO drives Raspberry Pi pins directly through the BCM registers (BCM numbering).
type GpIO struct {
	InvertOutputs bool

	outputs []uint8
	isReady bool
	lock    sync.Mutex
}

func gpioPin(pin uint16) (uint8, error) {
	if pin > 255 {
		return 0, errors.Errorf("pin %d out of range (gpio takes uint8 pin)", pin)
	}
	return uint8(pin), nil
}

func (gp *GpIO) Setup(ctx context.Context) error {
	gp.lock.Lock()
	defer gp.lock.Unlock()

	err := rpio.Open()
	if err != nil {
		return errors.Wrap(err, "failed to Setup gpio driver")
	}

	gp.isReady = true
	return nil
}

func (gp *GpIO) ConfigureOutput(pin uint16) error {
	gp.lock.Lock()
	defer gp.lock.Unlock()

	if !gp.isReady {
		return errors.New("gpio driver not ready")
	}
	outPin, err := gpioPin(pin)
	if err != nil {
		return err
	}

	rpio.Pin(outPin).Output()
	gp.outputs = append(gp.outputs, outPin)
	return nil
}

func (gp *GpIO) Write(pin uint16, state bool) error {
	gp.lock.Lock()
	defer gp.lock.Unlock()

	if !gp.isReady {
		return errors.New("gpio driver not ready")
	}
	outPin, err := gpioPin(pin)
	if err != nil {
		return err
	}
	if !gp.isOutput(outPin) {
		return errors.Errorf("gpio pin %d not configured as output", pin)
	}

	gp.write(outPin, state)
	return nil
}

func (gp *GpIO) write(pin uint8, state bool) {
	if gp.InvertOutputs {
		state = !state
	}
	if state {
		rpio.Pin(pin).High()
	} else {
		rpio.Pin(pin).Low()
	}
}

func (gp *GpIO) isOutput(pin uint8) bool {
	for _, out := range gp.outputs {
		if out == pin {
			return true
		}
	}
	return false
}

func (gp *GpIO) String() string {
	return gpioDriverName
}

func (gp *GpIO) IsReady() bool {
	gp.lock.Lock()
	defer gp.lock.Unlock()

	return gp.isReady
}

func (gp *GpIO) Close() error {
	gp.lock.Lock()
	defer gp.lock.Unlock()

	if !gp.isReady {
		return nil
	}
	gp.isReady = false
	for _, out := range gp.outputs {
		gp.write(out, false)
	}
	gp.outputs = nil
	return rpio.Close()
}
