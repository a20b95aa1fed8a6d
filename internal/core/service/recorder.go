package service

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/tim-oe/piSolar/internal/core/domain"

	"go.uber.org/zap"
)

// MetricsRecorder appends readings as JSON lines to per-day files under
// a base directory, one file per source per day (solar-2025-06-01.jsonl).
// Appending keeps writes atomic enough for a single process; the actor
// wrapping the recorder serializes calls.
type MetricsRecorder struct {
	outputDir string
	logger    *zap.Logger
}

type metricsRecord struct {
	At             string             `json:"at"`
	Sensor         string             `json:"sensor"`
	Source         string             `json:"source"`
	Values         map[string]float64 `json:"values"`
	ChargingStatus string             `json:"charging_status,omitempty"`
}

func NewMetricsRecorder(outputDir string, logger *zap.Logger) *MetricsRecorder {
	return &MetricsRecorder{
		outputDir: outputDir,
		logger:    logger.With(zap.String("component", "metrics")),
	}
}

// Record appends one reading to the day file for its source.
func (r *MetricsRecorder) Record(reading domain.Reading) error {
	if err := os.MkdirAll(r.outputDir, 0o755); err != nil {
		return fmt.Errorf("metrics dir: %w", err)
	}

	record := metricsRecord{
		At:     reading.At().Format(time.RFC3339),
		Sensor: reading.SensorName(),
		Source: reading.Source(),
		Values: reading.Values(),
	}
	if solar, ok := reading.(domain.SolarReading); ok {
		record.ChargingStatus = solar.ChargingStatus
	}

	line, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("metrics encode: %w", err)
	}

	path := r.FileFor(reading.Source(), reading.At())
	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("metrics open: %w", err)
	}
	defer file.Close()

	if _, err := file.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("metrics write: %w", err)
	}
	return nil
}

// FileFor returns the day file path a reading lands in.
func (r *MetricsRecorder) FileFor(source string, at time.Time) string {
	return filepath.Join(r.outputDir, fmt.Sprintf("%s-%s.jsonl", source, at.Format("2006-01-02")))
}
