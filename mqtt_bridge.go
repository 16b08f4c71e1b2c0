package ledkit

import (
	"context"
	"encoding/json"
	"os"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/eclipse/paho.golang/paho"
	"github.com/pkg/errors"

	"github.com/hubertat/ledkit/mqtt"
)

const mqttQueueSize = 64

type mqttMessage struct {
	topic   string
	payload []byte
	retain  bool
}

// MqttBridge mirrors output states to MQTT and accepts set commands from it.
//
// Topics, relative to the base topic:
//
//	led/<id>/set    command, payload on|off|true|false|1|0 or {"status": bool}
//	led/<id>/state  retained state, payload on|off
//	status          JSON map of all states, keyed like /api/status
type MqttBridge struct {
	ctrl         *Controller
	publisher    mqtt.Publisher
	baseTopic    string
	statusPrefix string

	queue  chan mqttMessage
	logger *log.Logger
}

func NewMqttBridge(ctrl *Controller, publisher mqtt.Publisher, baseTopic string, statusPrefix string) *MqttBridge {
	return &MqttBridge{
		ctrl:         ctrl,
		publisher:    publisher,
		baseTopic:    strings.TrimSuffix(baseTopic, "/"),
		statusPrefix: statusPrefix,
		queue:        make(chan mqttMessage, mqttQueueSize),
		logger: log.NewWithOptions(os.Stderr, log.Options{
			Prefix: "MqttBridge 🌉: ",
			Level:  log.GetLevel(),
		}),
	}
}

func (mb *MqttBridge) setTopic(id string) string {
	return mb.baseTopic + "/led/" + id + "/set"
}

func (mb *MqttBridge) stateTopic(id string) string {
	return mb.baseTopic + "/led/" + id + "/state"
}

func (mb *MqttBridge) statusTopic() string {
	return mb.baseTopic + "/status"
}

// Handlers returns one set-command handler per configured line.
func (mb *MqttBridge) Handlers() (handlers []mqtt.MqttHandler) {
	for _, line := range mb.ctrl.Lines() {
		handlers = append(handlers, &lineSetHandler{bridge: mb, id: line.Id})
	}
	return
}

func (mb *MqttBridge) enqueue(msg mqttMessage) {
	select {
	case mb.queue <- msg:
	default:
		mb.logger.Warn("mqtt queue full, dropping message", "topic", msg.topic)
	}
}

func (mb *MqttBridge) enqueueStatus() {
	payload, err := json.Marshal(StatusMap(mb.ctrl.GetAll(), mb.statusPrefix))
	if err != nil {
		mb.logger.Error("failed to encode status", "err", err)
		return
	}
	mb.enqueue(mqttMessage{topic: mb.statusTopic(), payload: payload})
}

func (mb *MqttBridge) OnStateChange(line OutputLine, state bool) {
	mb.enqueue(mqttMessage{topic: mb.stateTopic(line.Id), payload: []byte(onOff(state)), retain: true})
	mb.enqueueStatus()
}

func (mb *MqttBridge) publish(msg mqttMessage) {
	err := mb.publisher.Publish(msg.topic, msg.payload, msg.retain)
	if err != nil {
		mb.logger.Error("publish failed", "topic", msg.topic, "err", err)
	}
}

// Run publishes queued messages until ctx is done. Current states of all
// lines are queued first.
func (mb *MqttBridge) Run(ctx context.Context) {
	for _, line := range mb.ctrl.Lines() {
		mb.enqueue(mqttMessage{topic: mb.stateTopic(line.Id), payload: []byte(onOff(line.State)), retain: true})
	}
	mb.enqueueStatus()

	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-mb.queue:
			mb.publish(msg)
		}
	}
}

// Flush publishes whatever is still queued and returns once the queue is empty.
// Call it after Run returned and the controller was shut down, before the
// client disconnects.
func (mb *MqttBridge) Flush() {
	for {
		select {
		case msg := <-mb.queue:
			mb.publish(msg)
		default:
			return
		}
	}
}

func onOff(state bool) string {
	if state {
		return "on"
	}
	return "off"
}

// ParseSwitchPayload reads a set command payload.
func ParseSwitchPayload(payload []byte) (bool, error) {
	trimmed := strings.TrimSpace(string(payload))

	switch strings.ToLower(trimmed) {
	case "on", "true", "1":
		return true, nil
	case "off", "false", "0":
		return false, nil
	}

	if strings.HasPrefix(trimmed, "{") {
		body := struct {
			Status *bool `json:"status"`
		}{}
		err := json.Unmarshal([]byte(trimmed), &body)
		if err != nil {
			return false, errors.Wrap(err, "invalid json payload")
		}
		if body.Status == nil {
			return false, errors.New("status not provided")
		}
		return *body.Status, nil
	}

	return false, errors.Errorf("unrecognized payload %q", trimmed)
}

type lineSetHandler struct {
	bridge *MqttBridge
	id     string
}

func (lh *lineSetHandler) MqttSubscribeTopic() string {
	return lh.bridge.setTopic(lh.id)
}

func (lh *lineSetHandler) MqttHandle(pub *paho.Publish) {
	state, err := ParseSwitchPayload(pub.Payload)
	if err != nil {
		lh.bridge.logger.Warn("ignoring mqtt command", "topic", pub.Topic, "err", err)
		return
	}

	_, err = lh.bridge.ctrl.Set(lh.id, state)
	if err != nil {
		lh.bridge.logger.Error("mqtt command failed", "line", lh.id, "state", state, "err", err)
	}
}
