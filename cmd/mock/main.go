package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/log"

	"github.com/hubertat/ledkit"
	"github.com/hubertat/ledkit/drivers"
	"github.com/hubertat/ledkit/service"
)

var (
	Version string
	Build   string
)

func main() {
	log.SetLevel(log.DebugLevel)
	log.Info("ledkit started")
	log.Info("mock instance for testing purposes, should work on MacOs")

	fake := &drivers.MockLineDriver{}
	cfg, err := ledkit.ParseConfig([]byte(`{"FakeDriver": {}, "Lines": [
		{"Id": "1", "Pin": 17, "Name": "fake led 1"},
		{"Id": "2", "Pin": 18, "Name": "fake led 2"}
	]}`))
	if err != nil {
		log.Fatal("mock config invalid", "err", err)
	}
	cfg.FakeDriver = fake
	cfg.HkPin = "88008800"
	cfg.HkDirectory = "./mock_homekit"

	fake.Setup(context.Background())
	fake.MonitorStateChanges(os.Stdout)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err = service.Run(ctx, cfg, "mock: "+Version)
	if err != nil {
		log.Fatal("mock stopped", "err", err)
	}
}
