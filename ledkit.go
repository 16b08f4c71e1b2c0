package ledkit

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/pkg/errors"

	"github.com/hubertat/ledkit/drivers"
)

// StateListener is notified after an output line changed its state.
type StateListener interface {
	OnStateChange(line OutputLine, state bool)
}

type StateListenerFunc func(line OutputLine, state bool)

func (f StateListenerFunc) OnStateChange(line OutputLine, state bool) {
	f(line, state)
}

type stateChange struct {
	line  OutputLine
	state bool
}

// Controller owns the in-memory state of a fixed set of output lines and keeps
// it in step with the Line Driver. A single lock serializes every driver call
// together with the matching state update.
type Controller struct {
	driver drivers.LineDriver

	lines     map[string]*OutputLine
	order     []string
	listeners []StateListener

	initialized bool
	shutdown    bool

	logger *log.Logger
	lock   sync.Mutex
}

func NewController(driver drivers.LineDriver) *Controller {
	return &Controller{
		driver: driver,
		lines:  make(map[string]*OutputLine),
		logger: log.NewWithOptions(os.Stderr, log.Options{
			Prefix: "Controller 💡: ",
			Level:  log.GetLevel(),
		}),
	}
}

// Initialize registers the lines, configures each pin as an output and drives
// it off. The driver is set up first if it is not ready yet.
func (c *Controller) Initialize(ctx context.Context, lines []LineConfig) error {
	c.lock.Lock()
	defer c.lock.Unlock()

	if c.shutdown {
		return ErrShutdown
	}
	if c.initialized {
		return configErrorf("controller already initialized")
	}

	err := ValidateLines(lines)
	if err != nil {
		return err
	}

	if !c.driver.IsReady() {
		err = c.driver.Setup(ctx)
		if err != nil {
			return &DriverError{Op: "setup", Err: err}
		}
	}

	registered := make(map[string]*OutputLine, len(lines))
	order := make([]string, 0, len(lines))
	for _, lc := range lines {
		err = c.driver.ConfigureOutput(lc.Pin)
		if err != nil {
			return &DriverError{Id: lc.Id, Pin: lc.Pin, Op: "configure", Err: err}
		}
		err = c.driver.Write(lc.Pin, false)
		recordWrite(lc.Id, false, err)
		if err != nil {
			return &DriverError{Id: lc.Id, Pin: lc.Pin, Op: "write", Err: err}
		}

		registered[lc.Id] = &OutputLine{Id: lc.Id, Pin: lc.Pin, Name: lc.Name}
		order = append(order, lc.Id)
		c.logger.Debug("output line ready", "line", lc.Id, "pin", lc.Pin, "driver", c.driver)
	}

	c.lines = registered
	c.order = order
	c.initialized = true
	c.logger.Info("controller initialized", "lines", len(c.order), "driver", c.driver)
	return nil
}

// Subscribe adds a listener called after every successful state change.
// Listeners run in the goroutine that made the change, after the lock is released.
func (c *Controller) Subscribe(listener StateListener) {
	c.lock.Lock()
	defer c.lock.Unlock()

	c.listeners = append(c.listeners, listener)
}

func (c *Controller) find(id string) (*OutputLine, error) {
	if c.shutdown {
		return nil, ErrShutdown
	}
	line, found := c.lines[id]
	if !found {
		return nil, &NotFoundError{Id: id}
	}
	return line, nil
}

// apply writes desired to the hardware and, only when that succeeded, to memory.
func (c *Controller) apply(line *OutputLine, desired bool) error {
	err := c.driver.Write(line.Pin, desired)
	recordWrite(line.Id, desired, err)
	if err != nil {
		c.logger.Error("failed to set output line", "line", line.Id, "pin", line.Pin, "state", desired, "err", err)
		return &DriverError{Id: line.Id, Pin: line.Pin, Op: "write", Err: err}
	}

	c.logger.Info("output line set", "line", line.Id, "pin", line.Pin, "state", desired)
	line.State = desired
	return nil
}

func (c *Controller) notify(changes []stateChange) {
	if len(changes) == 0 {
		return
	}

	c.lock.Lock()
	listeners := append([]StateListener(nil), c.listeners...)
	c.lock.Unlock()

	for _, change := range changes {
		for _, listener := range listeners {
			listener.OnStateChange(change.line, change.state)
		}
	}
}

func (c *Controller) change(id string, next func(current bool) bool) (bool, error) {
	c.lock.Lock()
	line, err := c.find(id)
	if err != nil {
		c.lock.Unlock()
		return false, err
	}

	desired := next(line.State)
	err = c.apply(line, desired)
	snapshot := *line
	c.lock.Unlock()

	if err != nil {
		return false, err
	}

	c.notify([]stateChange{{line: snapshot, state: desired}})
	return desired, nil
}

// Set drives line id to desired and returns the new state. On a driver
// failure the in-memory state is left untouched.
func (c *Controller) Set(id string, desired bool) (bool, error) {
	return c.change(id, func(bool) bool {
		return desired
	})
}

// Toggle negates the current state of line id.
func (c *Controller) Toggle(id string) (bool, error) {
	return c.change(id, func(current bool) bool {
		return !current
	})
}

// Get returns the remembered state of line id without touching the hardware.
func (c *Controller) Get(id string) (bool, error) {
	c.lock.Lock()
	defer c.lock.Unlock()

	line, err := c.find(id)
	if err != nil {
		return false, err
	}
	return line.State, nil
}

// GetAll returns a snapshot of every line state keyed by id. Unlike Get it
// keeps answering after Shutdown, reporting the states left by the shutdown
// sweep.
func (c *Controller) GetAll() map[string]bool {
	c.lock.Lock()
	defer c.lock.Unlock()

	all := make(map[string]bool, len(c.lines))
	for id, line := range c.lines {
		all[id] = line.State
	}
	return all
}

// Lines returns copies of the configured lines in configuration order.
func (c *Controller) Lines() []OutputLine {
	c.lock.Lock()
	defer c.lock.Unlock()

	lines := make([]OutputLine, 0, len(c.order))
	for _, id := range c.order {
		lines = append(lines, *c.lines[id])
	}
	return lines
}

func (c *Controller) Driver() string {
	return c.driver.String()
}

func (c *Controller) PrintStatus(writer io.Writer) {
	fmt.Fprintln(writer)
	fmt.Fprintf(writer, "=== output lines (driver: %s) ===\n", c.driver)
	for _, line := range c.Lines() {
		fmt.Fprintf(writer, "| %-8s pin %3d  %-5v %s\n", line.Id, line.Pin, line.State, line.DisplayName())
	}
	fmt.Fprintln(writer, "-----------------------------")
	fmt.Fprintln(writer)
}

// Shutdown drives every line off and releases the driver. Only the first call
// does any work.
func (c *Controller) Shutdown() (err error) {
	c.lock.Lock()
	if c.shutdown {
		c.lock.Unlock()
		return nil
	}
	c.shutdown = true

	var changes []stateChange
	failed := 0
	for _, id := range c.order {
		line := c.lines[id]
		wasOn := line.State
		applyErr := c.apply(line, false)
		if applyErr != nil {
			failed++
			if err == nil {
				err = applyErr
			}
			continue
		}
		if wasOn {
			changes = append(changes, stateChange{line: *line, state: false})
		}
	}
	if failed > 0 {
		err = errors.Wrapf(err, "shutdown: %d line(s) failed to switch off", failed)
	}

	closeErr := c.driver.Close()
	if closeErr != nil {
		c.logger.Error("failed to close driver", "driver", c.driver, "err", closeErr)
		if err == nil {
			err = errors.Wrapf(closeErr, "failed to close %s driver", c.driver)
		}
	}
	c.lock.Unlock()

	c.notify(changes)
	c.logger.Info("controller shut down")
	return
}
