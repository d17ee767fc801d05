package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Transport names accepted in InstrumentConfig.Transport.
const (
	TransportSerial = "serial"
	TransportGPIB   = "gpib"
	TransportMock   = "mock"
)

// Config represents the application configuration.
type Config struct {
	Instrument  InstrumentConfig  `yaml:"instrument"`
	Acquisition AcquisitionConfig `yaml:"acquisition"`
	Recorder    RecorderConfig    `yaml:"recorder"`
	Display     DisplayConfig     `yaml:"display"`
	Generator   GeneratorConfig   `yaml:"generator"`
	Scan        ScanConfig        `yaml:"scan"`
	Mock        MockConfig        `yaml:"mock"`
}

// InstrumentConfig describes how the counter is reached.
type InstrumentConfig struct {
	Transport   string        `yaml:"transport"`    // serial, gpib or mock
	Port        string        `yaml:"port"`         // serial device or Prologix VCP
	BaudRate    int           `yaml:"baud_rate"`
	GPIBAddress int           `yaml:"gpib_address"` // primary address when Transport is gpib
	ReadTimeout time.Duration `yaml:"read_timeout"`
	OpenTimeout time.Duration `yaml:"open_timeout"` // total time spent retrying the open
	Debug       bool          `yaml:"debug"`        // log every command sent
}

// AcquisitionConfig contains run parameters for the counter.
type AcquisitionConfig struct {
	Tset         float64       `yaml:"tset"`        // counting period (s)
	Periods      int           `yaml:"periods"`     // NP
	Experiments  int           `yaml:"experiments"` // M
	Channel      string        `yaml:"channel"`     // dump channel: A, B or T
	Pause        time.Duration `yaml:"pause"`       // pause between experiments
	Settle       time.Duration `yaml:"settle"`      // delay after configuring, before CR/CS
	PollInterval time.Duration `yaml:"poll_interval"`
	PollQA       bool          `yaml:"poll_qa"`
	PollQB       bool          `yaml:"poll_qb"`
	QueueSize    int           `yaml:"queue_size"`
}

// RecorderConfig contains data logging parameters.
type RecorderConfig struct {
	Dir           string `yaml:"dir"`
	Prefix        string `yaml:"prefix"`
	RecordOnStart bool   `yaml:"record_on_start"`
}

// DisplayConfig contains GUI refresh and history parameters.
type DisplayConfig struct {
	UpdateInterval time.Duration `yaml:"update_interval"`
	MaxDataPoints  int           `yaml:"max_data_points"`
	RecentLines    int           `yaml:"recent_lines"`
}

// GeneratorConfig describes the serial link of the waveform generator.
type GeneratorConfig struct {
	Port         string        `yaml:"port"`
	BaudRate     int           `yaml:"baud_rate"`
	CommandDelay time.Duration `yaml:"command_delay"`
	OpenTimeout  time.Duration `yaml:"open_timeout"`
}

// ScanConfig contains the coordinated scan sequence parameters.
type ScanConfig struct {
	Hz         int           `yaml:"hz"`
	Wavefront  int           `yaml:"wavefront"`
	Cycles     int           `yaml:"cycles"`
	InnerSleep time.Duration `yaml:"inner_sleep"`
	RampSteps  int           `yaml:"ramp_steps"`
	Tset       float64       `yaml:"tset"`  // s
	Dwell      float64       `yaml:"dwell"` // s
	Level      float64       `yaml:"level"` // V
	Step       float64       `yaml:"step"`  // V
	RampStart  int           `yaml:"ramp_start"`
	Offset     int           `yaml:"offset"`
}

// MockConfig contains mock counter configuration.
type MockConfig struct {
	RateA     float64 `yaml:"rate_a"` // mean counts per second on channel A
	RateB     float64 `yaml:"rate_b"`
	Seed      int64   `yaml:"seed"`
	TimeScale float64 `yaml:"time_scale"` // 0.01 makes a 1 s run finish in 10 ms
}

// Default returns a default configuration with sensible values.
func Default() *Config {
	return &Config{
		Instrument: InstrumentConfig{
			Transport:   TransportSerial,
			Port:        "COM3", // /dev/ttyUSB0 on Linux
			BaudRate:    9600,
			GPIBAddress: 23,
			ReadTimeout: 2 * time.Second,
			OpenTimeout: 3 * time.Second,
		},
		Acquisition: AcquisitionConfig{
			Tset:         1.0,
			Periods:      10,
			Experiments:  1,
			Channel:      "A",
			Pause:        500 * time.Millisecond,
			Settle:       100 * time.Millisecond,
			PollInterval: time.Second,
			QueueSize:    2000,
		},
		Recorder: RecorderConfig{
			Dir:    ".",
			Prefix: "recorded_data",
		},
		Display: DisplayConfig{
			UpdateInterval: 100 * time.Millisecond,
			MaxDataPoints:  100,
			RecentLines:    10,
		},
		Generator: GeneratorConfig{
			Port:         "COM4",
			BaudRate:     115200,
			CommandDelay: 2 * time.Millisecond,
			OpenTimeout:  3 * time.Second,
		},
		Scan: ScanConfig{
			Hz:         1,
			Wavefront:  3,
			Cycles:     101,
			InnerSleep: 5 * time.Millisecond,
			RampSteps:  100,
			Tset:       0.008,
			Dwell:      0.002,
			Level:      -1.960,
			Step:       0.010,
			RampStart:  950,
			Offset:     950,
		},
		Mock: MockConfig{
			RateA:     1000,
			RateB:     500,
			Seed:      1,
			TimeScale: 1,
		},
	}
}

// Load loads configuration from a YAML file. If the file doesn't exist or
// fields are missing, it uses default values.
func Load(filename string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(filename)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.ensureDefaults()

	return cfg, nil
}

// Save saves the configuration to a YAML file.
func (c *Config) Save(filename string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// ensureDefaults ensures that all required fields have default values if missing.
func (c *Config) ensureDefaults() {
	def := Default()

	if c.Instrument.Transport == "" {
		c.Instrument.Transport = def.Instrument.Transport
	}
	if c.Instrument.Port == "" {
		c.Instrument.Port = def.Instrument.Port
	}
	if c.Instrument.BaudRate == 0 {
		c.Instrument.BaudRate = def.Instrument.BaudRate
	}
	if c.Instrument.ReadTimeout == 0 {
		c.Instrument.ReadTimeout = def.Instrument.ReadTimeout
	}
	if c.Instrument.OpenTimeout == 0 {
		c.Instrument.OpenTimeout = def.Instrument.OpenTimeout
	}

	if c.Acquisition.Tset == 0 {
		c.Acquisition.Tset = def.Acquisition.Tset
	}
	if c.Acquisition.Periods == 0 {
		c.Acquisition.Periods = def.Acquisition.Periods
	}
	if c.Acquisition.Experiments == 0 {
		c.Acquisition.Experiments = def.Acquisition.Experiments
	}
	if c.Acquisition.Channel == "" {
		c.Acquisition.Channel = def.Acquisition.Channel
	}
	if c.Acquisition.PollInterval == 0 {
		c.Acquisition.PollInterval = def.Acquisition.PollInterval
	}
	if c.Acquisition.QueueSize == 0 {
		c.Acquisition.QueueSize = def.Acquisition.QueueSize
	}

	if c.Recorder.Dir == "" {
		c.Recorder.Dir = def.Recorder.Dir
	}
	if c.Recorder.Prefix == "" {
		c.Recorder.Prefix = def.Recorder.Prefix
	}

	if c.Display.UpdateInterval == 0 {
		c.Display.UpdateInterval = def.Display.UpdateInterval
	}
	if c.Display.MaxDataPoints == 0 {
		c.Display.MaxDataPoints = def.Display.MaxDataPoints
	}
	if c.Display.RecentLines == 0 {
		c.Display.RecentLines = def.Display.RecentLines
	}

	if c.Generator.BaudRate == 0 {
		c.Generator.BaudRate = def.Generator.BaudRate
	}
	if c.Generator.CommandDelay == 0 {
		c.Generator.CommandDelay = def.Generator.CommandDelay
	}
	if c.Generator.OpenTimeout == 0 {
		c.Generator.OpenTimeout = def.Generator.OpenTimeout
	}

	if c.Scan.Hz == 0 {
		c.Scan.Hz = def.Scan.Hz
	}
	if c.Scan.Cycles == 0 {
		c.Scan.Cycles = def.Scan.Cycles
	}
	if c.Scan.RampSteps == 0 {
		c.Scan.RampSteps = def.Scan.RampSteps
	}
	if c.Scan.Tset == 0 {
		c.Scan.Tset = def.Scan.Tset
	}
	if c.Scan.Dwell == 0 {
		c.Scan.Dwell = def.Scan.Dwell
	}

	if c.Mock.TimeScale == 0 {
		c.Mock.TimeScale = def.Mock.TimeScale
	}
}
