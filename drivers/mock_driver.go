package drivers

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/pkg/errors"
)

const mockDriverName = "mock_driver"

// MockWrite is a single Write call seen by MockLineDriver.
type MockWrite struct {
	Pin   uint16
	State bool
}

// MockLineDriver keeps pin levels in memory. It records every accepted write
// and can be told to fail writes on chosen pins.
type MockLineDriver struct {
	states   map[uint16]bool
	writes   []MockWrite
	failures map[uint16]error
	ready    bool
	closed   bool

	writeTo          io.Writer
	writeStateChange bool

	lock sync.Mutex
}

func (md *MockLineDriver) Setup(ctx context.Context) error {
	md.lock.Lock()
	defer md.lock.Unlock()

	md.states = make(map[uint16]bool)
	md.ready = true
	md.closed = false
	return nil
}

func (md *MockLineDriver) ConfigureOutput(pin uint16) error {
	md.lock.Lock()
	defer md.lock.Unlock()

	if !md.ready {
		return errors.New("mock driver not ready")
	}
	if err, found := md.failures[pin]; found {
		return err
	}
	md.states[pin] = false
	return nil
}

func (md *MockLineDriver) Write(pin uint16, state bool) error {
	md.lock.Lock()
	defer md.lock.Unlock()

	if !md.ready {
		return errors.New("mock driver not ready")
	}
	if err, found := md.failures[pin]; found {
		return err
	}
	oldState, configured := md.states[pin]
	if !configured {
		return errors.Errorf("mock output %d not found", pin)
	}

	if md.writeStateChange && oldState != state {
		fmt.Fprintf(md.writeTo, "[pin %d] state changed to %v\n", pin, state)
	}
	md.states[pin] = state
	md.writes = append(md.writes, MockWrite{Pin: pin, State: state})
	return nil
}

func (md *MockLineDriver) Close() error {
	md.lock.Lock()
	defer md.lock.Unlock()

	md.ready = false
	md.closed = true
	return nil
}

func (md *MockLineDriver) String() string {
	return mockDriverName
}

func (md *MockLineDriver) IsReady() bool {
	md.lock.Lock()
	defer md.lock.Unlock()

	return md.ready
}

// IsClosed reports whether Close was called since the last Setup.
func (md *MockLineDriver) IsClosed() bool {
	md.lock.Lock()
	defer md.lock.Unlock()

	return md.closed
}

// State returns the level last written to pin.
func (md *MockLineDriver) State(pin uint16) (state bool, configured bool) {
	md.lock.Lock()
	defer md.lock.Unlock()

	state, configured = md.states[pin]
	return
}

// Writes returns a copy of all accepted writes in the order they were issued.
func (md *MockLineDriver) Writes() []MockWrite {
	md.lock.Lock()
	defer md.lock.Unlock()

	return append([]MockWrite(nil), md.writes...)
}

// FailPin makes every following ConfigureOutput and Write on pin return err.
// A nil err clears the failure.
func (md *MockLineDriver) FailPin(pin uint16, err error) {
	md.lock.Lock()
	defer md.lock.Unlock()

	if md.failures == nil {
		md.failures = make(map[uint16]error)
	}
	if err == nil {
		delete(md.failures, pin)
		return
	}
	md.failures[pin] = err
}

func (md *MockLineDriver) MonitorStateChanges(writer io.Writer) {
	md.lock.Lock()
	defer md.lock.Unlock()

	md.writeTo = writer
	md.writeStateChange = true
}
