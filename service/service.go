package service

import (
	"context"
	"os"
	"time"

	"github.com/charmbracelet/log"
	"github.com/pkg/errors"

	"github.com/hubertat/ledkit"
	"github.com/hubertat/ledkit/api"
	"github.com/hubertat/ledkit/history"
	"github.com/hubertat/ledkit/mqtt"
)

const disconnectTimeout = 3 * time.Second

type mqttLink struct {
	client *mqtt.MqttClient
	bridge *ledkit.MqttBridge

	stopBridge     context.CancelFunc
	bridgeDone     chan struct{}
	stopConnection context.CancelFunc
}

// close publishes what the bridge still holds, then disconnects.
func (ml *mqttLink) close(logger *log.Logger) {
	ml.stopBridge()
	<-ml.bridgeDone
	ml.bridge.Flush()

	disconnectCtx, cancel := context.WithTimeout(context.Background(), disconnectTimeout)
	defer cancel()

	err := ml.client.Disconnect(disconnectCtx)
	if err != nil {
		logger.Warn("mqtt disconnect failed", "err", err)
	}
	ml.stopConnection()
}

// Run brings up the controller and every configured surface, then serves the
// HTTP API until ctx is done. Lines are switched off before the listeners are
// torn down, so MQTT and InfluxDB see the final states.
func Run(ctx context.Context, cfg *ledkit.Config, version string) (err error) {
	logger := log.NewWithOptions(os.Stderr, log.Options{
		Prefix: cfg.Name + ": ",
		Level:  log.GetLevel(),
	})

	driver, err := cfg.Driver()
	if err != nil {
		return
	}

	logger.Info("will init controller", "driver", driver)
	ctrl := ledkit.NewController(driver)
	err = ctrl.Initialize(ctx, cfg.Lines)
	if err != nil {
		ctrl.Shutdown()
		return errors.Wrap(err, "failed to initialize controller")
	}

	var link *mqttLink
	var recorder *history.InfluxRecorder
	defer func() {
		shutdown(ctrl, link, recorder, logger)
	}()

	ctrl.PrintStatus(os.Stdout)

	if cfg.Influx != nil && startHistory(cfg, ctrl, logger) {
		recorder = cfg.Influx
	}

	if len(cfg.MqttBroker) > 0 {
		link = startMqtt(ctx, cfg, ctrl, logger)
	}

	if ledkit.HomeKitPinValid(cfg.HkPin) {
		hk := ledkit.NewHomeKit(ctrl, cfg.Name, cfg.HkPin, version)
		hk.Directory = cfg.HkDirectory
		hk.Address = cfg.HkAddress
		hk.Debug = cfg.HkDebug
		ctrl.Subscribe(hk)

		go func() {
			hkErr := hk.ListenAndServe(ctx)
			if hkErr != nil && ctx.Err() == nil {
				logger.Error("HomeKit server stopped", "err", hkErr)
			}
		}()
	} else {
		logger.Info("HomeKit not configured, disabled")
	}

	server := api.NewServer(ctrl, cfg.HttpAddr, cfg.StatusPrefix)
	return server.ListenAndServe(ctx)
}

// shutdown switches the lines off first and only then stops the listeners
// that report those final states.
func shutdown(ctrl *ledkit.Controller, link *mqttLink, recorder *history.InfluxRecorder, logger *log.Logger) {
	err := ctrl.Shutdown()
	if err != nil {
		logger.Error("controller shutdown failed", "err", err)
	}
	if link != nil {
		link.close(logger)
	}
	if recorder != nil {
		recorder.Close()
	}
}

func startHistory(cfg *ledkit.Config, ctrl *ledkit.Controller, logger *log.Logger) bool {
	err := cfg.Influx.Setup()
	if err != nil {
		logger.Warn("history recording disabled", "err", err)
		return false
	}

	ctrl.Subscribe(ledkit.StateListenerFunc(func(line ledkit.OutputLine, state bool) {
		cfg.Influx.Record(line.Id, line.Pin, state, time.Now())
	}))
	logger.Info("recording history", "host", cfg.Influx.Host, "bucket", cfg.Influx.Bucket)
	return true
}

// startMqtt connects first and only then starts publishing. The connection
// outlives ctx so the final states can still be flushed on the way out.
func startMqtt(ctx context.Context, cfg *ledkit.Config, ctrl *ledkit.Controller, logger *log.Logger) *mqttLink {
	mc, err := mqtt.NewMqttClient(cfg.MqttBroker, cfg.Name)
	if err != nil {
		logger.Error("failed to create mqtt client", "err", err)
		return nil
	}

	bridge := ledkit.NewMqttBridge(ctrl, mc, cfg.MqttTopic, cfg.StatusPrefix)
	ctrl.Subscribe(bridge)

	connCtx, stopConnection := context.WithCancel(context.Background())
	err = mc.Connect(connCtx, bridge.Handlers())
	if err != nil {
		logger.Warn("mqtt not connected yet, will keep retrying", "err", err)
	}

	bridgeCtx, stopBridge := context.WithCancel(ctx)
	link := &mqttLink{
		client:         mc,
		bridge:         bridge,
		stopBridge:     stopBridge,
		bridgeDone:     make(chan struct{}),
		stopConnection: stopConnection,
	}
	go func() {
		bridge.Run(bridgeCtx)
		close(link.bridgeDone)
	}()

	return link
}
