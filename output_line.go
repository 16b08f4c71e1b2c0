package ledkit

// LineConfig is a single entry of the static output configuration.
type LineConfig struct {
	Id   string
	Pin  uint16
	Name string
}

// OutputLine is a named, binary-state physical output.
type OutputLine struct {
	Id    string
	Pin   uint16
	Name  string
	State bool
}

// DisplayName returns Name, falling back to "LED <id>".
func (ol OutputLine) DisplayName() string {
	if len(ol.Name) > 0 {
		return ol.Name
	}
	return "LED " + ol.Id
}

// DefaultLines mirrors the original two LED board: BCM 17 (physical pin 11)
// and BCM 18 (physical pin 12).
func DefaultLines() []LineConfig {
	return []LineConfig{
		{Id: "1", Pin: 17, Name: "LED 1"},
		{Id: "2", Pin: 18, Name: "LED 2"},
	}
}

// ValidateLines checks that ids are present and unique and that no two lines
// share a pin.
func ValidateLines(lines []LineConfig) error {
	if len(lines) == 0 {
		return configErrorf("no output lines configured")
	}

	ids := make(map[string]bool)
	pins := make(map[uint16]string)
	for _, line := range lines {
		if len(line.Id) == 0 {
			return configErrorf("line with pin %d has empty id", line.Pin)
		}
		if ids[line.Id] {
			return configErrorf("duplicated line id %q", line.Id)
		}
		if other, taken := pins[line.Pin]; taken {
			return configErrorf("pin %d used by both %q and %q", line.Pin, other, line.Id)
		}
		ids[line.Id] = true
		pins[line.Pin] = line.Id
	}

	return nil
}

// StatusMap keys states by prefix+id, so line "1" with prefix "led" becomes "led1".
func StatusMap(states map[string]bool, prefix string) map[string]bool {
	mapped := make(map[string]bool, len(states))
	for id, state := range states {
		mapped[prefix+id] = state
	}
	return mapped
}
