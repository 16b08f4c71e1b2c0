package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/eclipse/paho.golang/paho"

	"github.com/hubertat/ledkit/mqtt"
)

const clientID = "ledkit-mqtttest" // Change this to something random if using a public test server

var (
	broker    = flag.String("broker", "mqtt://localhost:1883", "mqtt broker url")
	baseTopic = flag.String("topic", "ledkit", "base topic of the ledkit instance")
	led       = flag.String("led", "", "line id to switch (only watch status when empty)")
	state     = flag.String("state", "on", "payload sent to the line: on|off")
)

type Handler struct {
	topic string
}

func (h *Handler) MqttSubscribeTopic() string {
	return h.topic
}

func (h *Handler) MqttHandle(pub *paho.Publish) {
	log.Info("received mqtt message", "topic", pub.Topic, "payload", string(pub.Payload))
}

func main() {
	flag.Parse()
	log.SetLevel(log.DebugLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	mc, err := mqtt.NewMqttClient(*broker, clientID)
	if err != nil {
		log.Error("failed to create mqtt client", "error", err)
		return
	}

	mqttHandlers := []mqtt.MqttHandler{
		&Handler{topic: *baseTopic + "/status"},
	}
	if len(*led) > 0 {
		mqttHandlers = append(mqttHandlers, &Handler{topic: *baseTopic + "/led/" + *led + "/state"})
	}

	err = mc.Connect(ctx, mqttHandlers)
	if err != nil {
		log.Error("failed to connect to mqtt broker", "error", err)
		return
	}
	log.Info("mqtt client connected")

	if len(*led) > 0 {
		err = mc.Publish(*baseTopic+"/led/"+*led+"/set", []byte(*state), false)
		if err != nil {
			log.Error("failed to send command", "error", err)
		}
	}

	log.Info("watching, press ctrl+c to quit")
	<-ctx.Done()
	mc.Disconnect(context.Background())
}
