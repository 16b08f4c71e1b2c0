package ledkit

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/hubertat/ledkit/drivers"
)

func assertBools(t testing.TB, got, want bool) {
	t.Helper()

	if got != want {
		t.Errorf("got %v want %v", got, want)
	}
}

func assertNoError(t testing.TB, err error) {
	t.Helper()

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func assertStates(t testing.TB, got, want map[string]bool) {
	t.Helper()

	if len(got) != len(want) {
		t.Errorf("len(got) = %d len(want) = %d", len(got), len(want))
		return
	}
	for id, state := range want {
		gotState, found := got[id]
		if !found {
			t.Errorf("line %s missing", id)
			continue
		}
		if gotState != state {
			t.Errorf("for line %s got: %v want: %v", id, gotState, state)
		}
	}
}

func newTestController(t testing.TB, lines ...LineConfig) (*Controller, *drivers.MockLineDriver) {
	t.Helper()

	if len(lines) == 0 {
		lines = DefaultLines()
	}
	md := &drivers.MockLineDriver{}
	ctrl := NewController(md)
	assertNoError(t, ctrl.Initialize(context.Background(), lines))
	return ctrl, md
}

func TestInitializeDefaultsOff(t *testing.T) {
	ctrl, md := newTestController(t,
		LineConfig{Id: "1", Pin: 17},
		LineConfig{Id: "2", Pin: 18},
		LineConfig{Id: "relay", Pin: 22},
	)

	for _, id := range []string{"1", "2", "relay"} {
		state, err := ctrl.Get(id)
		assertNoError(t, err)
		assertBools(t, state, false)
	}

	for _, pin := range []uint16{17, 18, 22} {
		state, configured := md.State(pin)
		assertBools(t, configured, true)
		assertBools(t, state, false)
	}
	assertBools(t, md.IsReady(), true)
}

func TestInitializeConfigErrors(t *testing.T) {
	cases := map[string][]LineConfig{
		"no lines":      nil,
		"empty id":      {{Id: "", Pin: 1}},
		"duplicate id":  {{Id: "1", Pin: 17}, {Id: "1", Pin: 18}},
		"pin collision": {{Id: "1", Pin: 17}, {Id: "2", Pin: 17}},
	}

	for name, lines := range cases {
		t.Run(name, func(t *testing.T) {
			md := &drivers.MockLineDriver{}
			ctrl := NewController(md)

			err := ctrl.Initialize(context.Background(), lines)
			if !IsConfigError(err) {
				t.Errorf("expected ConfigError, got %v", err)
			}
			if md.IsReady() {
				t.Error("driver set up despite invalid config")
			}
		})
	}
}

func TestInitializeTwice(t *testing.T) {
	ctrl, _ := newTestController(t)

	err := ctrl.Initialize(context.Background(), DefaultLines())
	if !IsConfigError(err) {
		t.Errorf("expected ConfigError, got %v", err)
	}
}

func TestInitializeDriverFailure(t *testing.T) {
	md := &drivers.MockLineDriver{}
	md.Setup(context.Background())
	md.FailPin(18, errors.New("no such pin"))
	ctrl := NewController(md)

	err := ctrl.Initialize(context.Background(), DefaultLines())
	if !IsDriverError(err) {
		t.Fatalf("expected DriverError, got %v", err)
	}

	var de *DriverError
	errors.As(err, &de)
	if de.Id != "2" || de.Pin != 18 || de.Op != "configure" {
		t.Errorf("unexpected DriverError: %+v", de)
	}
}

func TestInitializeRetryAfterDriverFailure(t *testing.T) {
	md := &drivers.MockLineDriver{}
	md.Setup(context.Background())
	md.FailPin(18, errors.New("no such pin"))
	ctrl := NewController(md)

	err := ctrl.Initialize(context.Background(), DefaultLines())
	if !IsDriverError(err) {
		t.Fatalf("expected DriverError, got %v", err)
	}
	if len(ctrl.Lines()) != 0 {
		t.Errorf("lines registered by failed Initialize: %+v", ctrl.Lines())
	}
	_, err = ctrl.Get("1")
	if !IsNotFound(err) {
		t.Errorf("expected NotFoundError after failed Initialize, got %v", err)
	}

	md.FailPin(18, nil)
	assertNoError(t, ctrl.Initialize(context.Background(), DefaultLines()))

	lines := ctrl.Lines()
	if len(lines) != 2 || lines[0].Id != "1" || lines[1].Id != "2" {
		t.Errorf("unexpected lines after retry: %+v", lines)
	}
	assertStates(t, ctrl.GetAll(), map[string]bool{"1": false, "2": false})
}

func TestSetThenGet(t *testing.T) {
	ctrl, md := newTestController(t)

	for _, id := range []string{"1", "2"} {
		for _, want := range []bool{true, false, true} {
			got, err := ctrl.Set(id, want)
			assertNoError(t, err)
			assertBools(t, got, want)

			got, err = ctrl.Get(id)
			assertNoError(t, err)
			assertBools(t, got, want)
		}
	}

	state, _ := md.State(17)
	assertBools(t, state, true)
	state, _ = md.State(18)
	assertBools(t, state, true)
}

func TestSetUnknownLine(t *testing.T) {
	ctrl, md := newTestController(t)
	ctrl.Set("1", true)
	before := ctrl.GetAll()
	writes := len(md.Writes())

	_, err := ctrl.Set("9", true)
	if !IsNotFound(err) {
		t.Errorf("expected NotFoundError, got %v", err)
	}
	assertStates(t, ctrl.GetAll(), before)

	if len(md.Writes()) != writes {
		t.Error("driver written for unknown line")
	}

	_, err = ctrl.Get("9")
	if !IsNotFound(err) {
		t.Errorf("expected NotFoundError from Get, got %v", err)
	}
}

func TestSetDriverFailureKeepsState(t *testing.T) {
	ctrl, md := newTestController(t)
	_, err := ctrl.Set("2", true)
	assertNoError(t, err)

	broken := errors.New("bus error")
	md.FailPin(18, broken)

	_, err = ctrl.Set("2", false)
	if !IsDriverError(err) {
		t.Fatalf("expected DriverError, got %v", err)
	}
	if !errors.Is(err, broken) {
		t.Errorf("DriverError does not wrap driver cause: %v", err)
	}

	state, _ := ctrl.Get("2")
	assertBools(t, state, true)

	_, err = ctrl.Toggle("2")
	if !IsDriverError(err) {
		t.Errorf("expected DriverError from Toggle, got %v", err)
	}
	state, _ = ctrl.Get("2")
	assertBools(t, state, true)
}

func TestToggle(t *testing.T) {
	ctrl, _ := newTestController(t)

	got, err := ctrl.Toggle("1")
	assertNoError(t, err)
	assertBools(t, got, true)

	got, err = ctrl.Toggle("1")
	assertNoError(t, err)
	assertBools(t, got, false)
}

func TestGetAllIsSnapshot(t *testing.T) {
	ctrl, _ := newTestController(t)
	ctrl.Set("1", true)

	all := ctrl.GetAll()
	assertStates(t, all, map[string]bool{"1": true, "2": false})

	all["2"] = true
	state, _ := ctrl.Get("2")
	assertBools(t, state, false)
}

func TestLinesKeepOrder(t *testing.T) {
	ctrl, _ := newTestController(t,
		LineConfig{Id: "b", Pin: 2, Name: "Porch"},
		LineConfig{Id: "a", Pin: 1},
	)

	lines := ctrl.Lines()
	if len(lines) != 2 || lines[0].Id != "b" || lines[1].Id != "a" {
		t.Fatalf("unexpected lines: %+v", lines)
	}
	if lines[0].DisplayName() != "Porch" || lines[1].DisplayName() != "LED a" {
		t.Errorf("unexpected display names: %s, %s", lines[0].DisplayName(), lines[1].DisplayName())
	}
}

func TestConcurrentSetMatchesLastWrite(t *testing.T) {
	ctrl, md := newTestController(t)

	wg := sync.WaitGroup{}
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func(state bool) {
			defer wg.Done()
			ctrl.Set("1", state)
		}(i%2 == 0)
	}
	wg.Wait()

	var last *drivers.MockWrite
	writes := md.Writes()
	for i := range writes {
		if writes[i].Pin == 17 {
			last = &writes[i]
		}
	}
	if last == nil {
		t.Fatal("no writes recorded for pin 17")
	}

	state, _ := ctrl.Get("1")
	assertBools(t, state, last.State)

	hwState, _ := md.State(17)
	assertBools(t, state, hwState)
}

func TestListenersNotified(t *testing.T) {
	ctrl, md := newTestController(t)

	type change struct {
		id    string
		state bool
	}
	changes := []change{}
	ctrl.Subscribe(StateListenerFunc(func(line OutputLine, state bool) {
		changes = append(changes, change{line.Id, state})
	}))

	ctrl.Set("1", true)
	ctrl.Set("2", false)
	md.FailPin(17, errors.New("fail"))
	ctrl.Set("1", false)
	ctrl.Set("9", true)

	want := []change{{"1", true}, {"2", false}}
	if len(changes) != len(want) {
		t.Fatalf("got %d changes want %d: %+v", len(changes), len(want), changes)
	}
	for i := range want {
		if changes[i] != want[i] {
			t.Errorf("change [%d] got %+v want %+v", i, changes[i], want[i])
		}
	}
}

func TestListenerMayCallController(t *testing.T) {
	ctrl, _ := newTestController(t)

	seen := map[string]bool{}
	ctrl.Subscribe(StateListenerFunc(func(line OutputLine, state bool) {
		seen = ctrl.GetAll()
	}))

	ctrl.Set("2", true)
	assertStates(t, seen, map[string]bool{"1": false, "2": true})
}

func TestShutdown(t *testing.T) {
	ctrl, md := newTestController(t)
	ctrl.Set("1", true)
	ctrl.Set("2", true)

	offs := 0
	ctrl.Subscribe(StateListenerFunc(func(line OutputLine, state bool) {
		if !state {
			offs++
		}
	}))

	assertNoError(t, ctrl.Shutdown())

	for _, pin := range []uint16{17, 18} {
		state, _ := md.State(pin)
		assertBools(t, state, false)
	}
	assertBools(t, md.IsClosed(), true)
	if offs != 2 {
		t.Errorf("got %d off notifications want 2", offs)
	}

	writes := len(md.Writes())
	assertNoError(t, ctrl.Shutdown())
	if len(md.Writes()) != writes {
		t.Error("second Shutdown wrote to driver")
	}

	_, err := ctrl.Set("1", true)
	if !errors.Is(err, ErrShutdown) {
		t.Errorf("expected ErrShutdown, got %v", err)
	}
	_, err = ctrl.Get("1")
	if !errors.Is(err, ErrShutdown) {
		t.Errorf("expected ErrShutdown from Get, got %v", err)
	}
	assertStates(t, ctrl.GetAll(), map[string]bool{"1": false, "2": false})
}

func TestShutdownContinuesPastFailures(t *testing.T) {
	ctrl, md := newTestController(t)
	ctrl.Set("1", true)
	ctrl.Set("2", true)
	md.FailPin(17, errors.New("stuck"))

	err := ctrl.Shutdown()
	if !IsDriverError(err) {
		t.Errorf("expected DriverError, got %v", err)
	}

	state, _ := md.State(18)
	assertBools(t, state, false)
	assertBools(t, md.IsClosed(), true)

	assertStates(t, ctrl.GetAll(), map[string]bool{"1": true, "2": false})
}

func TestPrintStatus(t *testing.T) {
	ctrl, _ := newTestController(t)
	ctrl.Set("2", true)

	buf := &bytes.Buffer{}
	ctrl.PrintStatus(buf)

	out := buf.String()
	for _, want := range []string{"driver: mock_driver", "pin  17  false LED 1", "pin  18  true  LED 2"} {
		if !strings.Contains(out, want) {
			t.Errorf("status output %q does not contain %q", out, want)
		}
	}
}
