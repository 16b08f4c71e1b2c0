package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/hubertat/servicemaker"

	"github.com/hubertat/ledkit"
	"github.com/hubertat/ledkit/service"
)

var (
	Version string
	Build   string

	config      = flag.String("config", "config.json", "path of the configuration file")
	flagInstall = flag.Bool("install", false, "Install service in os")
	flagDebug   = flag.Bool("debug", false, "enable debug logging")

	ledService = servicemaker.ServiceMaker{
		User:               "ledkit",
		UserGroups:         []string{"gpio", "i2c"},
		ServicePath:        "/etc/systemd/system/ledkit.service",
		ServiceDescription: "ledkit service: HTTP/MQTT/HomeKit controlled digital outputs. github.com/hubertat/ledkit",
		ExecDir:            "/srv/ledkit",
		ExecName:           "ledkit",
	}
)

func main() {
	flag.Parse()
	if *flagDebug {
		log.SetLevel(log.DebugLevel)
	}
	log.Info("ledkit started", "version", Version, "build", Build)

	if *flagInstall {
		err := ledService.InstallService()
		if err != nil {
			log.Fatal("failed to install service", "err", err)
		}
		log.Info("service installed!")
		return
	}

	cfg, err := ledkit.LoadConfig(*config)
	if err != nil {
		log.Fatal("can't load config, will terminate", "config", *config, "err", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err = service.Run(ctx, cfg, Version)
	if err != nil {
		log.Error("ledkit stopped", "err", err)
		stop()
		os.Exit(1)
	}
	log.Info("ledkit stopped")
}
