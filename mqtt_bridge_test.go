package ledkit

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/eclipse/paho.golang/paho"
)

type published struct {
	topic   string
	payload string
	retain  bool
}

type fakePublisher struct {
	messages chan published
}

func (fp *fakePublisher) Publish(topic string, payload []byte, retain bool) error {
	fp.messages <- published{topic, string(payload), retain}
	return nil
}

func awaitPublished(t testing.TB, fp *fakePublisher) published {
	t.Helper()

	select {
	case msg := <-fp.messages:
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for mqtt publish")
	}
	return published{}
}

func TestParseSwitchPayload(t *testing.T) {
	valid := map[string]bool{
		"on":                true,
		"ON":                true,
		" true\n":           true,
		"1":                 true,
		"off":               false,
		"False":             false,
		"0":                 false,
		`{"status": true}`:  true,
		`{"status": false}`: false,
	}
	for payload, want := range valid {
		got, err := ParseSwitchPayload([]byte(payload))
		if err != nil {
			t.Errorf("payload %q returned err: %v", payload, err)
			continue
		}
		assertBools(t, got, want)
	}

	for _, payload := range []string{"", "maybe", `{"state": true}`, `{"status": "on"}`, "{broken"} {
		_, err := ParseSwitchPayload([]byte(payload))
		if err == nil {
			t.Errorf("payload %q accepted", payload)
		}
	}
}

func TestMqttBridgeHandlers(t *testing.T) {
	ctrl, _ := newTestController(t)
	bridge := NewMqttBridge(ctrl, &fakePublisher{}, "home/desk/", "led")

	handlers := bridge.Handlers()
	if len(handlers) != 2 {
		t.Fatalf("got %d handlers want 2", len(handlers))
	}
	if handlers[0].MqttSubscribeTopic() != "home/desk/led/1/set" {
		t.Errorf("unexpected topic %s", handlers[0].MqttSubscribeTopic())
	}

	handlers[1].MqttHandle(&paho.Publish{Topic: "home/desk/led/2/set", Payload: []byte("on")})
	state, _ := ctrl.Get("2")
	assertBools(t, state, true)

	handlers[1].MqttHandle(&paho.Publish{Topic: "home/desk/led/2/set", Payload: []byte("nonsense")})
	state, _ = ctrl.Get("2")
	assertBools(t, state, true)

	handlers[1].MqttHandle(&paho.Publish{Topic: "home/desk/led/2/set", Payload: []byte(`{"status": false}`)})
	state, _ = ctrl.Get("2")
	assertBools(t, state, false)
}

func TestMqttBridgePublishesChanges(t *testing.T) {
	ctrl, _ := newTestController(t)
	fp := &fakePublisher{messages: make(chan published, 16)}
	bridge := NewMqttBridge(ctrl, fp, "ledkit", "led")
	ctrl.Subscribe(bridge)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go bridge.Run(ctx)

	// initial states: two lines then status
	for i := 0; i < 3; i++ {
		awaitPublished(t, fp)
	}

	_, err := ctrl.Set("1", true)
	assertNoError(t, err)

	msg := awaitPublished(t, fp)
	if msg != (published{"ledkit/led/1/state", "on", true}) {
		t.Errorf("unexpected state message %+v", msg)
	}

	msg = awaitPublished(t, fp)
	if msg.topic != "ledkit/status" || msg.retain {
		t.Errorf("unexpected status message %+v", msg)
	}
	status := map[string]bool{}
	err = json.Unmarshal([]byte(msg.payload), &status)
	assertNoError(t, err)
	assertStates(t, status, map[string]bool{"led1": true, "led2": false})
}

func TestMqttBridgeFlushPublishesShutdown(t *testing.T) {
	ctrl, _ := newTestController(t)
	fp := &fakePublisher{messages: make(chan published, 16)}
	bridge := NewMqttBridge(ctrl, fp, "ledkit", "led")
	ctrl.Subscribe(bridge)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		bridge.Run(ctx)
		close(done)
	}()
	for i := 0; i < 3; i++ {
		awaitPublished(t, fp)
	}

	_, err := ctrl.Set("2", true)
	assertNoError(t, err)
	awaitPublished(t, fp)
	awaitPublished(t, fp)

	cancel()
	<-done

	assertNoError(t, ctrl.Shutdown())
	if len(fp.messages) != 0 {
		t.Fatalf("published %d messages before Flush", len(fp.messages))
	}

	bridge.Flush()

	msg := awaitPublished(t, fp)
	if msg != (published{"ledkit/led/2/state", "off", true}) {
		t.Errorf("unexpected state message %+v", msg)
	}
	msg = awaitPublished(t, fp)
	if msg.topic != "ledkit/status" {
		t.Fatalf("unexpected status message %+v", msg)
	}
	status := map[string]bool{}
	err = json.Unmarshal([]byte(msg.payload), &status)
	assertNoError(t, err)
	assertStates(t, status, map[string]bool{"led1": false, "led2": false})

	if len(fp.messages) != 0 {
		t.Errorf("unexpected extra messages: %d", len(fp.messages))
	}
}
