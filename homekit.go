package ledkit

import (
	"context"
	"fmt"
	"hash/fnv"
	"os"

	dnslog "github.com/brutella/dnssd/log"
	"github.com/brutella/hap"
	"github.com/brutella/hap/accessory"
	hklog "github.com/brutella/hap/log"
	"github.com/charmbracelet/log"
	"github.com/pkg/errors"
)

const defaultHomeKitDirectory = "./homekit"
const homeKitBridgeName = "ledkit"
const homeKitBridgeAuthor = "github.com/hubertat"

// HomeKit exposes every output line as a Lightbulb accessory on a bridge.
type HomeKit struct {
	Name      string
	Pin       string
	Directory string
	Address   string
	Debug     bool

	ctrl            *Controller
	bulbs           map[string]*accessory.Lightbulb
	accessories     []*accessory.A
	firmwareVersion string

	logger *log.Logger
}

// NewHomeKit builds the accessories for all lines of an initialized controller.
func NewHomeKit(ctrl *Controller, name string, pin string, firmwareVersion string) *HomeKit {
	hk := &HomeKit{
		Name:            name,
		Pin:             pin,
		ctrl:            ctrl,
		bulbs:           make(map[string]*accessory.Lightbulb),
		firmwareVersion: firmwareVersion,
		logger: log.NewWithOptions(os.Stderr, log.Options{
			Prefix: "HomeKit 🏠: ",
			Level:  log.GetLevel(),
		}),
	}
	hk.accessories = hk.buildAccessories()
	return hk
}

// HomeKitPinValid reports whether pin looks like an 8 digit setup code.
func HomeKitPinValid(pin string) bool {
	if len(pin) != 8 {
		return false
	}
	for _, r := range pin {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func lineUniqueId(id string) uint64 {
	hash := fnv.New64()
	hash.Write([]byte("Light_" + id))
	return hash.Sum64()
}

// buildAccessories creates one Lightbulb per line. Remote updates are forwarded
// to the controller.
func (hk *HomeKit) buildAccessories() (acc []*accessory.A) {
	for _, line := range hk.ctrl.Lines() {
		bulb := accessory.NewLightbulb(accessory.Info{
			Name:         line.DisplayName(),
			SerialNumber: fmt.Sprintf("light:%s:%02d", hk.ctrl.Driver(), line.Pin),
			Manufacturer: homeKitBridgeAuthor,
			Firmware:     hk.firmwareVersion,
		})
		bulb.Id = lineUniqueId(line.Id)
		bulb.Lightbulb.On.SetValue(line.State)
		bulb.Lightbulb.On.OnValueRemoteUpdate(hk.remoteUpdate(line.Id))

		hk.bulbs[line.Id] = bulb
		acc = append(acc, bulb.A)
	}

	return
}

func (hk *HomeKit) remoteUpdate(id string) func(bool) {
	return func(state bool) {
		_, err := hk.ctrl.Set(id, state)
		if err != nil {
			hk.logger.Error("failed to set line from HomeKit", "line", id, "state", state, "err", err)
			current, getErr := hk.ctrl.Get(id)
			if getErr == nil {
				hk.bulbs[id].Lightbulb.On.SetValue(current)
			}
		}
	}
}

func (hk *HomeKit) OnStateChange(line OutputLine, state bool) {
	bulb, found := hk.bulbs[line.Id]
	if !found {
		return
	}
	if bulb.Lightbulb.On.Value() != state {
		bulb.Lightbulb.On.SetValue(state)
	}
}

func (hk *HomeKit) Accessories() []*accessory.A {
	return hk.accessories
}

// ListenAndServe runs the HomeKit server until ctx is cancelled.
func (hk *HomeKit) ListenAndServe(ctx context.Context) error {
	hkName := hk.Name
	if len(hkName) < 1 {
		hkName = homeKitBridgeName
	}
	bridge := accessory.NewBridge(accessory.Info{
		Name:         hkName,
		Manufacturer: homeKitBridgeAuthor,
		Firmware:     hk.firmwareVersion,
	})

	var store hap.Store
	if len(hk.Directory) > 1 {
		store = hap.NewFsStore(hk.Directory)
	} else {
		store = hap.NewFsStore(defaultHomeKitDirectory)
	}
	hkServer, err := hap.NewServer(store, bridge.A, hk.accessories...)
	if err != nil {
		return errors.Wrap(err, "failed to create HomeKit server")
	}
	hkServer.Pin = hk.Pin
	if len(hk.Address) > 0 {
		hkServer.Addr = hk.Address
	}

	if hk.Debug {
		hklog.Debug.Enable()
		dnslog.Debug.Enable()
	}

	hk.logger.Info("starting HomeKit bridge", "name", hkName, "accessories", len(hk.accessories))
	return hkServer.ListenAndServe(ctx)
}
