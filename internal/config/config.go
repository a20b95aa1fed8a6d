package config

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/tim-oe/piSolar/internal/core/domain"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap/zapcore"
)

type Config struct {
	LogLevel zapcore.Level

	Port    uint `mapstructure:"port"`
	HttpLog bool `mapstructure:"http_log"`

	Sensors   []SensorConfig   `mapstructure:"sensors"`
	Schedules []ScheduleConfig `mapstructure:"schedules"`

	Metrics MetricsConfig `mapstructure:"metrics"`
	MQTT    MQTTConfig    `mapstructure:"mqtt"`
}

// SensorConfig declares one device target. ReadType selects the transport
// and which of the other fields apply.
type SensorConfig struct {
	Name     string `mapstructure:"name"`
	ReadType string `mapstructure:"read_type"`

	// bt
	MACAddress  string `mapstructure:"mac_address"`
	DeviceAlias string `mapstructure:"device_alias"`

	// serial
	DevicePath   string `mapstructure:"device_path"`
	BaudRate     uint   `mapstructure:"baud_rate"`
	SlaveAddress uint   `mapstructure:"slave_address"`

	// w1
	Address string `mapstructure:"address"`

	ScanTimeoutSecs uint   `mapstructure:"scan_timeout_secs"`
	MaxRetries      int    `mapstructure:"max_retries"`
	DeviceType      string `mapstructure:"device_type"`
}

// ScheduleConfig binds a cron expression to a sensor. Disabled bindings
// are kept in the config but never registered.
type ScheduleConfig struct {
	Name    string `mapstructure:"name"`
	Cron    string `mapstructure:"cron"`
	Sensor  string `mapstructure:"sensor"`
	Enabled *bool  `mapstructure:"enabled"`
}

func (s ScheduleConfig) IsEnabled() bool {
	return s.Enabled == nil || *s.Enabled
}

type MetricsConfig struct {
	Enable    bool   `mapstructure:"enable"`
	OutputDir string `mapstructure:"output_dir"`
}

type MQTTConfig struct {
	Enable    bool   `mapstructure:"enable"`
	Host      string `mapstructure:"host"`
	Port      int    `mapstructure:"port"`
	Username  string `mapstructure:"username"`
	Password  string `mapstructure:"password"`
	BaseTopic string `mapstructure:"base_topic"`
}

const (
	DefaultScanTimeoutSecs = 15
	DefaultMaxRetries      = 3
	DefaultBaudRate        = 9600
	DefaultSlaveAddress    = 1
)

var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

func CheckMQTTTopic(baseTopic string) (string, error) {
	lowerBaseTopic := strings.ToLower(baseTopic)
	baseTopicRegexp := regexp.MustCompile("^[a-z0-9_]+$")
	matches := baseTopicRegexp.FindAllStringSubmatch(lowerBaseTopic, 1)
	if len(matches) <= 0 {
		return "", errors.New("invalid topic. can only contain letters, numbers and underscores")
	}
	return lowerBaseTopic, nil
}

// Validate rejects configurations that cannot be run: unnamed or duplicate
// sensors, transports missing their address, schedules whose cron does not
// parse or whose sensor does not exist.
func (cfg *Config) Validate() error {
	if len(cfg.Sensors) == 0 {
		return errors.New("config requires at least one sensor")
	}

	names := map[string]bool{}
	for i, sensor := range cfg.Sensors {
		if sensor.Name == "" {
			return fmt.Errorf("sensors[%d]: name is required", i)
		}
		if names[sensor.Name] {
			return fmt.Errorf("sensor %q declared twice", sensor.Name)
		}
		names[sensor.Name] = true

		switch domain.TransportKind(sensor.ReadType) {
		case domain.TransportBluetooth:
			if sensor.MACAddress == "" && sensor.DeviceAlias == "" {
				return fmt.Errorf("sensor %q: bt transport requires mac_address or device_alias", sensor.Name)
			}
		case domain.TransportSerial:
			if sensor.DevicePath == "" {
				return fmt.Errorf("sensor %q: serial transport requires device_path", sensor.Name)
			}
		case domain.TransportOneWire:
			if sensor.Address == "" {
				return fmt.Errorf("sensor %q: w1 transport requires address", sensor.Name)
			}
		default:
			return fmt.Errorf("sensor %q: unknown read_type %q", sensor.Name, sensor.ReadType)
		}
	}

	scheduleNames := map[string]bool{}
	for i, schedule := range cfg.Schedules {
		if schedule.Name == "" {
			return fmt.Errorf("schedules[%d]: name is required", i)
		}
		if scheduleNames[schedule.Name] {
			return fmt.Errorf("schedule %q declared twice", schedule.Name)
		}
		scheduleNames[schedule.Name] = true

		if _, err := cronParser.Parse(schedule.Cron); err != nil {
			return fmt.Errorf("schedule %q: invalid cron %q: %w", schedule.Name, schedule.Cron, err)
		}
		if !names[schedule.Sensor] {
			return fmt.Errorf("schedule %q: unknown sensor %q", schedule.Name, schedule.Sensor)
		}
	}

	if cfg.Metrics.Enable && cfg.Metrics.OutputDir == "" {
		return errors.New("metrics.output_dir is required when metrics are enabled")
	}
	if cfg.MQTT.Enable && cfg.MQTT.Host == "" {
		return errors.New("mqtt.host is required when mqtt is enabled")
	}

	return nil
}

// Target converts a sensor declaration to its runtime form, filling
// defaults for the optional knobs.
func (s SensorConfig) Target() domain.DeviceTarget {
	scanTimeout := s.ScanTimeoutSecs
	if scanTimeout == 0 {
		scanTimeout = DefaultScanTimeoutSecs
	}
	maxRetries := s.MaxRetries
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}
	baudRate := s.BaudRate
	if baudRate == 0 {
		baudRate = DefaultBaudRate
	}
	slaveAddress := s.SlaveAddress
	if slaveAddress == 0 {
		slaveAddress = DefaultSlaveAddress
	}
	deviceType := domain.DeviceType(s.DeviceType)
	if deviceType == "" {
		deviceType = domain.DeviceController
	}
	return domain.DeviceTarget{
		Name:         s.Name,
		Kind:         domain.TransportKind(s.ReadType),
		MACAddress:   s.MACAddress,
		DeviceAlias:  s.DeviceAlias,
		DevicePath:   s.DevicePath,
		BaudRate:     baudRate,
		SlaveAddress: uint8(slaveAddress),
		Address:      s.Address,
		ScanTimeout:  time.Duration(scanTimeout) * time.Second,
		MaxRetries:   maxRetries,
		DeviceType:   deviceType,
	}
}

// Targets returns the runtime targets for every configured sensor.
func (cfg *Config) Targets() []domain.DeviceTarget {
	targets := make([]domain.DeviceTarget, 0, len(cfg.Sensors))
	for _, sensor := range cfg.Sensors {
		targets = append(targets, sensor.Target())
	}
	return targets
}

// SensorByName finds a sensor declaration, for schedule binding.
func (cfg *Config) SensorByName(name string) (SensorConfig, bool) {
	for _, sensor := range cfg.Sensors {
		if sensor.Name == name {
			return sensor, true
		}
	}
	return SensorConfig{}, false
}
