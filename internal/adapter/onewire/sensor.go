package onewire

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/tim-oe/piSolar/internal/core/domain"
)

const DefaultBasePath = "/sys/bus/w1/devices"

var (
	ErrNotFound = errors.New("1-wire device not found")
	ErrCRC      = errors.New("1-wire crc check failed")
)

// Probe reads DS18B20-style sensors through the kernel w1 sysfs interface.
// Each device exposes a w1_slave file:
//
//	4b 46 7f ff 0c 10 55 : crc=55 YES
//	4b 46 7f ff 0c 10 55 t=20562
//
// The first line reports the bus CRC check, the second carries the
// temperature in millidegrees.
type Probe struct {
	BasePath string
}

func NewProbe() *Probe {
	return &Probe{BasePath: DefaultBasePath}
}

// Read takes one measurement from the target's 1-Wire address.
func (p *Probe) Read(target domain.DeviceTarget) (domain.TemperatureReading, error) {
	path := filepath.Join(p.BasePath, target.Address, "w1_slave")
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return domain.TemperatureReading{}, fmt.Errorf("%w: %s", ErrNotFound, target.Address)
		}
		return domain.TemperatureReading{}, fmt.Errorf("read %s: %w", path, err)
	}

	celsius, err := ParseSlaveFile(string(raw))
	if err != nil {
		return domain.TemperatureReading{}, fmt.Errorf("%s: %w", target.Address, err)
	}

	return domain.TemperatureReading{
		Name:    target.Name,
		Address: target.Address,
		Time:    time.Now(),
		Celsius: celsius,
	}, nil
}

// ParseSlaveFile extracts degrees Celsius from w1_slave content, rejecting
// reads whose CRC line is not confirmed with YES.
func ParseSlaveFile(content string) (float64, error) {
	lines := strings.Split(strings.TrimSpace(content), "\n")
	if len(lines) < 2 {
		return 0, fmt.Errorf("%w: truncated w1_slave content", ErrCRC)
	}
	if !strings.HasSuffix(strings.TrimSpace(lines[0]), "YES") {
		return 0, ErrCRC
	}

	idx := strings.LastIndex(lines[1], "t=")
	if idx < 0 {
		return 0, errors.New("w1_slave missing t= field")
	}
	milli, err := strconv.Atoi(strings.TrimSpace(lines[1][idx+2:]))
	if err != nil {
		return 0, fmt.Errorf("w1_slave temperature parse: %w", err)
	}
	return float64(milli) / 1000.0, nil
}
