package drivers

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"github.com/racerxdl/go-mcp23017"
)

const mcpioDriverName = "mcpio"
const mcpPinCount = 16

// McpIO drives outputs of an MCP23017 I2C port expander.
type McpIO struct {
	BusNo         uint8
	DevNo         uint8
	InvertOutputs bool

	device  *mcp23017.Device
	outputs []uint8
	isReady bool
	lock    sync.Mutex
}

func mcpPin(pin uint16) (uint8, error) {
	if pin >= mcpPinCount {
		return 0, errors.Errorf("pin %d out of range (mcp23017 has %d pins)", pin, mcpPinCount)
	}
	return uint8(pin), nil
}

func (mcp *McpIO) Setup(ctx context.Context) (err error) {
	mcp.lock.Lock()
	defer mcp.lock.Unlock()

	mcp.device, err = mcp23017.Open(mcp.BusNo, mcp.DevNo)
	if err != nil {
		return errors.Wrapf(err, "failed to open mcp23017 (bus: %d, dev: %d)", mcp.BusNo, mcp.DevNo)
	}

	mcp.isReady = true
	return nil
}

func (mcp *McpIO) ConfigureOutput(pin uint16) error {
	mcp.lock.Lock()
	defer mcp.lock.Unlock()

	if !mcp.isReady {
		return errors.New("mcpio driver not ready")
	}
	outPin, err := mcpPin(pin)
	if err != nil {
		return err
	}

	err = mcp.device.PinMode(outPin, mcp23017.OUTPUT)
	if err != nil {
		return errors.Wrapf(err, "mcpio: failed to set pin %d as output", pin)
	}
	mcp.outputs = append(mcp.outputs, outPin)
	return nil
}

func (mcp *McpIO) write(pin uint8, state bool) error {
	if mcp.InvertOutputs {
		state = !state
	}
	return mcp.device.DigitalWrite(pin, mcp23017.PinLevel(state))
}

func (mcp *McpIO) Write(pin uint16, state bool) error {
	mcp.lock.Lock()
	defer mcp.lock.Unlock()

	if !mcp.isReady {
		return errors.New("mcpio driver not ready")
	}
	outPin, err := mcpPin(pin)
	if err != nil {
		return err
	}
	configured := false
	for _, out := range mcp.outputs {
		if out == outPin {
			configured = true
		}
	}
	if !configured {
		return errors.Errorf("mcpio: pin %d not configured as output", pin)
	}

	return errors.Wrapf(mcp.write(outPin, state), "mcpio: failed to write pin %d", pin)
}

func (mcp *McpIO) String() string {
	return mcpioDriverName
}

func (mcp *McpIO) IsReady() bool {
	mcp.lock.Lock()
	defer mcp.lock.Unlock()

	return mcp.isReady
}

// releaseOutputs drives every output low and returns the first failure.
func releaseOutputs(outputs []uint8, write func(pin uint8, state bool) error) (err error) {
	for _, out := range outputs {
		outErr := write(out, false)
		if outErr != nil && err == nil {
			err = errors.Wrapf(outErr, "mcpio: failed to release pin %d", out)
		}
	}
	return
}

func (mcp *McpIO) Close() error {
	mcp.lock.Lock()
	defer mcp.lock.Unlock()

	if !mcp.isReady {
		return nil
	}
	mcp.isReady = false
	err := releaseOutputs(mcp.outputs, mcp.write)
	mcp.outputs = nil

	closeErr := mcp.device.Close()
	if err == nil && closeErr != nil {
		err = errors.Wrap(closeErr, "mcpio: failed to close device")
	}
	return err
}
