package drivers

import (
	"context"
	"fmt"
	"sync"

	"github.com/pkg/errors"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"
)

const periphDriverName = "periph"

// PeriphIO drives output lines through the periph.io host drivers, which
// pick sysfs, the gpio character device or memory mapped registers
// depending on what the board offers. Pins are BCM numbers.
type PeriphIO struct {
	InvertOutputs bool

	outputs map[uint16]gpio.PinIO
	isReady bool
	lock    sync.Mutex
}

func (pe *PeriphIO) Setup(ctx context.Context) error {
	pe.lock.Lock()
	defer pe.lock.Unlock()

	_, err := host.Init()
	if err != nil {
		return errors.Wrap(err, "failed to init periph host")
	}

	pe.outputs = make(map[uint16]gpio.PinIO)
	pe.isReady = true
	return nil
}

func (pe *PeriphIO) level(state bool) gpio.Level {
	if pe.InvertOutputs {
		state = !state
	}
	if state {
		return gpio.High
	}
	return gpio.Low
}

func (pe *PeriphIO) ConfigureOutput(pin uint16) error {
	pe.lock.Lock()
	defer pe.lock.Unlock()

	if !pe.isReady {
		return errors.New("periph driver not ready")
	}

	p := gpioreg.ByName(fmt.Sprintf("GPIO%d", pin))
	if p == nil {
		return errors.Errorf("periph: GPIO%d not found", pin)
	}
	err := p.Out(pe.level(false))
	if err != nil {
		return errors.Wrapf(err, "periph: failed to set GPIO%d as output", pin)
	}

	pe.outputs[pin] = p
	return nil
}

func (pe *PeriphIO) Write(pin uint16, state bool) error {
	pe.lock.Lock()
	defer pe.lock.Unlock()

	if !pe.isReady {
		return errors.New("periph driver not ready")
	}
	p, found := pe.outputs[pin]
	if !found {
		return errors.Errorf("periph: GPIO%d not configured as output", pin)
	}

	return errors.Wrapf(p.Out(pe.level(state)), "periph: failed to write GPIO%d", pin)
}

func (pe *PeriphIO) String() string {
	return periphDriverName
}

func (pe *PeriphIO) IsReady() bool {
	pe.lock.Lock()
	defer pe.lock.Unlock()

	return pe.isReady
}

func (pe *PeriphIO) Close() (err error) {
	pe.lock.Lock()
	defer pe.lock.Unlock()

	if !pe.isReady {
		return
	}
	pe.isReady = false
	for pin, p := range pe.outputs {
		outErr := p.Out(pe.level(false))
		if outErr != nil && err == nil {
			err = errors.Wrapf(outErr, "periph: failed to release GPIO%d", pin)
		}
	}
	pe.outputs = nil
	return
}
