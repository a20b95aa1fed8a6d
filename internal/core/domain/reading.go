package domain

import "time"

const (
	SourceSolar       = "solar"
	SourceTemperature = "temperature"
)

// Reading is a normalized sensor reading. Implementations are immutable
// value types; Values returns a fresh copy so consumers cannot alias the
// producer's map.
type Reading interface {
	SensorName() string
	Source() string
	At() time.Time
	Values() map[string]float64
}

// SolarReading is the normalized output of one successful charge-controller
// poll. All metrics are SI-scaled (volts, amps, watts, degrees Celsius,
// percent) regardless of the source transport's register scale factors.
type SolarReading struct {
	Name           string
	Time           time.Time
	Metrics        map[string]float64
	ChargingStatus string
	ReadDuration   time.Duration
}

func (r SolarReading) SensorName() string { return r.Name }
func (r SolarReading) Source() string     { return SourceSolar }
func (r SolarReading) At() time.Time      { return r.Time }

func (r SolarReading) Values() map[string]float64 {
	values := make(map[string]float64, len(r.Metrics))
	for k, v := range r.Metrics {
		values[k] = v
	}
	return values
}

// TemperatureReading is one 1-Wire probe measurement.
type TemperatureReading struct {
	Name    string
	Address string
	Time    time.Time
	Celsius float64
}

func (r TemperatureReading) SensorName() string { return r.Name }
func (r TemperatureReading) Source() string     { return SourceTemperature }
func (r TemperatureReading) At() time.Time      { return r.Time }

func (r TemperatureReading) Values() map[string]float64 {
	return map[string]float64{"temperature": r.Celsius}
}
