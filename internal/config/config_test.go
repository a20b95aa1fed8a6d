package config

import (
	"testing"
	"time"

	"github.com/tim-oe/piSolar/internal/core/domain"

	"github.com/stretchr/testify/assert"
)

func validConfig() Config {
	return Config{
		Port: 8080,
		Sensors: []SensorConfig{
			{
				Name:       "rover",
				ReadType:   "bt",
				MACAddress: "AA:BB:CC:DD:EE:FF",
			},
			{
				Name:       "shed",
				ReadType:   "serial",
				DevicePath: "/dev/ttyUSB0",
			},
			{
				Name:     "battery-box",
				ReadType: "w1",
				Address:  "28-0316a2790d42",
			},
		},
		Schedules: []ScheduleConfig{
			{Name: "rover-5m", Cron: "*/5 * * * *", Sensor: "rover"},
		},
	}
}

func TestValidateAcceptsValidConfig(t *testing.T) {
	cfg := validConfig()
	assert.NoError(t, cfg.Validate())
}

func TestValidateRequiresSensors(t *testing.T) {
	cfg := Config{}
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsDuplicateSensor(t *testing.T) {
	cfg := validConfig()
	cfg.Sensors = append(cfg.Sensors, cfg.Sensors[0])
	assert.ErrorContains(t, cfg.Validate(), "declared twice")
}

func TestValidateRejectsBTWithoutAddress(t *testing.T) {
	cfg := validConfig()
	cfg.Sensors[0].MACAddress = ""
	cfg.Sensors[0].DeviceAlias = ""
	assert.ErrorContains(t, cfg.Validate(), "mac_address or device_alias")
}

func TestValidateAcceptsBTWithAliasOnly(t *testing.T) {
	cfg := validConfig()
	cfg.Sensors[0].MACAddress = ""
	cfg.Sensors[0].DeviceAlias = "BT-TH-161E1234"
	assert.NoError(t, cfg.Validate())
}

func TestValidateRejectsSerialWithoutPath(t *testing.T) {
	cfg := validConfig()
	cfg.Sensors[1].DevicePath = ""
	assert.ErrorContains(t, cfg.Validate(), "device_path")
}

func TestValidateRejectsUnknownReadType(t *testing.T) {
	cfg := validConfig()
	cfg.Sensors[0].ReadType = "zigbee"
	assert.ErrorContains(t, cfg.Validate(), "unknown read_type")
}

func TestValidateRejectsBadCron(t *testing.T) {
	cfg := validConfig()
	cfg.Schedules[0].Cron = "*/5 * * *"
	assert.ErrorContains(t, cfg.Validate(), "invalid cron")
}

func TestValidateRejectsSecondsCron(t *testing.T) {
	// six fields is the quartz style, not the standard five-field form
	cfg := validConfig()
	cfg.Schedules[0].Cron = "0 */5 * * * *"
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsScheduleForUnknownSensor(t *testing.T) {
	cfg := validConfig()
	cfg.Schedules[0].Sensor = "nope"
	assert.ErrorContains(t, cfg.Validate(), "unknown sensor")
}

func TestValidateMetricsRequireOutputDir(t *testing.T) {
	cfg := validConfig()
	cfg.Metrics.Enable = true
	assert.ErrorContains(t, cfg.Validate(), "output_dir")
}

func TestScheduleEnabledByDefault(t *testing.T) {
	assert.True(t, ScheduleConfig{}.IsEnabled())

	off := false
	assert.False(t, ScheduleConfig{Enabled: &off}.IsEnabled())

	on := true
	assert.True(t, ScheduleConfig{Enabled: &on}.IsEnabled())
}

func TestTargetDefaults(t *testing.T) {
	assert := assert.New(t)

	target := SensorConfig{
		Name:       "shed",
		ReadType:   "serial",
		DevicePath: "/dev/ttyUSB0",
	}.Target()

	assert.Equal(domain.TransportSerial, target.Kind)
	assert.Equal(uint(9600), target.BaudRate)
	assert.Equal(uint8(1), target.SlaveAddress)
	assert.Equal(15*time.Second, target.ScanTimeout)
	assert.Equal(3, target.MaxRetries)
	assert.Equal(domain.DeviceController, target.DeviceType)
}

func TestTargetExplicitValues(t *testing.T) {
	assert := assert.New(t)

	target := SensorConfig{
		Name:            "rover",
		ReadType:        "bt",
		MACAddress:      "AA:BB:CC:DD:EE:FF",
		ScanTimeoutSecs: 30,
		MaxRetries:      5,
		DeviceType:      "rover",
	}.Target()

	assert.Equal(domain.TransportBluetooth, target.Kind)
	assert.Equal(30*time.Second, target.ScanTimeout)
	assert.Equal(5, target.MaxRetries)
	assert.Equal(domain.DeviceRover, target.DeviceType)
}

func TestCheckMQTTTopic(t *testing.T) {
	topic, err := CheckMQTTTopic("PiSolar")
	assert.NoError(t, err)
	assert.Equal(t, "pisolar", topic)

	_, err = CheckMQTTTopic("bad/topic")
	assert.Error(t, err)
}
