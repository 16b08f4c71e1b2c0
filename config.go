package ledkit

import (
	"encoding/json"
	"os"

	"github.com/pkg/errors"

	"github.com/hubertat/ledkit/drivers"
	"github.com/hubertat/ledkit/history"
)

const defaultName = "ledkit"
const defaultHttpAddr = ":5000"
const defaultStatusPrefix = "led"

// Config is the JSON configuration file. Exactly one driver section must be set.
type Config struct {
	Name         string
	HttpAddr     string
	StatusPrefix string

	Lines []LineConfig

	Gpio       *drivers.GpIO
	Periph     *drivers.PeriphIO
	Mcp23017   *drivers.McpIO
	FakeDriver *drivers.MockLineDriver

	HkPin       string
	HkDirectory string
	HkAddress   string
	HkDebug     bool

	MqttBroker string
	MqttTopic  string

	Influx *history.InfluxRecorder
}

func (cfg *Config) applyDefaults() {
	if len(cfg.Name) == 0 {
		cfg.Name = defaultName
	}
	if len(cfg.HttpAddr) == 0 {
		cfg.HttpAddr = defaultHttpAddr
	}
	if len(cfg.StatusPrefix) == 0 {
		cfg.StatusPrefix = defaultStatusPrefix
	}
	if len(cfg.MqttTopic) == 0 {
		cfg.MqttTopic = cfg.Name
	}
}

// Driver returns the single configured line driver.
func (cfg *Config) Driver() (drivers.LineDriver, error) {
	configured := []drivers.LineDriver{}
	if cfg.Gpio != nil {
		configured = append(configured, cfg.Gpio)
	}
	if cfg.Periph != nil {
		configured = append(configured, cfg.Periph)
	}
	if cfg.Mcp23017 != nil {
		configured = append(configured, cfg.Mcp23017)
	}
	if cfg.FakeDriver != nil {
		configured = append(configured, cfg.FakeDriver)
	}

	switch len(configured) {
	case 0:
		return nil, configErrorf("no line driver configured")
	case 1:
		return configured[0], nil
	default:
		return nil, configErrorf("%d line drivers configured, only one is supported", len(configured))
	}
}

func (cfg *Config) Validate() error {
	err := ValidateLines(cfg.Lines)
	if err != nil {
		return err
	}
	if len(cfg.HkPin) > 0 && !HomeKitPinValid(cfg.HkPin) {
		return configErrorf("HkPin must be 8 digits")
	}
	_, err = cfg.Driver()
	return err
}

// ParseConfig decodes and validates a JSON configuration.
func ParseConfig(data []byte) (*Config, error) {
	cfg := &Config{}
	err := json.Unmarshal(data, cfg)
	if err != nil {
		return nil, &ConfigError{Reason: errors.Wrap(err, "failed unmarshalling json config").Error()}
	}

	cfg.applyDefaults()
	err = cfg.Validate()
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "can't read config file (%s)", path)
	}
	return ParseConfig(data)
}
