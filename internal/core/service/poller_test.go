package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/tim-oe/piSolar/internal/core/domain"
	"github.com/tim-oe/piSolar/pkg/renogy"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func testTarget(name string, maxRetries int) domain.DeviceTarget {
	return domain.DeviceTarget{
		Name:        name,
		Kind:        domain.TransportSerial,
		DevicePath:  "/dev/ttyUSB0",
		ScanTimeout: time.Second,
		MaxRetries:  maxRetries,
	}
}

func fastPoller(t domain.DeviceTarget, transport renogy.Transport) *SensorPoller {
	poller := NewSensorPoller(t, transport, zap.NewNop())
	poller.Backoff = time.Millisecond
	return poller
}

func TestPollSuccessFirstAttempt(t *testing.T) {
	assert := assert.New(t)

	transport := &renogy.TestTransport{
		TargetName: "rover",
		Outcomes:   []renogy.Outcome{renogy.FrameOutcome("rover", renogy.HealthyRegisters())},
	}
	poller := fastPoller(testTarget("rover", 3), transport)

	readings, err := poller.Poll(context.Background())
	if err != nil {
		t.Error(err)
		return
	}

	assert.Len(readings, 1)
	assert.Equal(1, transport.Acquires())
	assert.True(transport.Balanced(), "every acquire released")

	reading := readings[0].(domain.SolarReading)
	assert.Equal("rover", reading.SensorName())
	assert.Equal(domain.SourceSolar, reading.Source())
	assert.Equal(82.0, reading.Metrics[renogy.MetricBatterySOC])
	assert.Equal(13.2, reading.Metrics[renogy.MetricBatteryVoltage])
	assert.Equal("mppt", reading.ChargingStatus)
}

func TestPollRetriesTransientThenSucceeds(t *testing.T) {
	assert := assert.New(t)

	transport := &renogy.TestTransport{
		TargetName: "rover",
		Outcomes: []renogy.Outcome{
			renogy.FailOutcome(renogy.FailureTimeout, "rover"),
			renogy.FailOutcome(renogy.FailureDeviceNotFound, "rover"),
			renogy.FrameOutcome("rover", renogy.HealthyRegisters()),
		},
	}
	poller := fastPoller(testTarget("rover", 3), transport)

	readings, err := poller.Poll(context.Background())
	if err != nil {
		t.Error(err)
		return
	}

	assert.Len(readings, 1)
	assert.Equal(3, transport.Acquires())
	assert.True(transport.Balanced())
}

func TestPollRetryCountBounded(t *testing.T) {
	assert := assert.New(t)

	transport := &renogy.TestTransport{
		TargetName: "rover",
		Outcomes:   []renogy.Outcome{renogy.FailOutcome(renogy.FailureDeviceNotFound, "rover")},
	}
	poller := fastPoller(testTarget("rover", 3), transport)

	readings, err := poller.Poll(context.Background())
	assert.Nil(readings)
	assert.Error(err)
	assert.Equal(3, transport.Acquires(), "no more adapter calls than max_retries")
	assert.True(transport.Balanced())

	var failure *renogy.Failure
	assert.True(errors.As(err, &failure))
	assert.Equal(renogy.FailureDeviceNotFound, failure.Kind)
	assert.Equal(3, failure.Attempts)
}

func TestPollMalformedRetriedExactlyOnce(t *testing.T) {
	assert := assert.New(t)

	transport := &renogy.TestTransport{
		TargetName: "rover",
		Outcomes:   []renogy.Outcome{renogy.FailOutcome(renogy.FailureMalformedResponse, "rover")},
	}
	poller := fastPoller(testTarget("rover", 5), transport)

	_, err := poller.Poll(context.Background())
	assert.Error(err)
	assert.Equal(2, transport.Acquires(), "bad CRC gets exactly one retry")

	var failure *renogy.Failure
	assert.True(errors.As(err, &failure))
	assert.Equal(renogy.FailureMalformedResponse, failure.Kind, "terminal kind is malformed-response, not timeout")
}

func TestPollMalformedThenHealthy(t *testing.T) {
	assert := assert.New(t)

	transport := &renogy.TestTransport{
		TargetName: "rover",
		Outcomes: []renogy.Outcome{
			renogy.FailOutcome(renogy.FailureMalformedResponse, "rover"),
			renogy.FrameOutcome("rover", renogy.HealthyRegisters()),
		},
	}
	poller := fastPoller(testTarget("rover", 3), transport)

	readings, err := poller.Poll(context.Background())
	if err != nil {
		t.Error(err)
		return
	}
	assert.Len(readings, 1)
	assert.Equal(2, transport.Acquires())
}

func TestPollDecodeFailureIsMalformed(t *testing.T) {
	assert := assert.New(t)

	// SOC over 100 decodes to malformed-response and is retried once only
	bad := renogy.HealthyRegisters()
	bad[0] = 250
	transport := &renogy.TestTransport{
		TargetName: "rover",
		Outcomes:   []renogy.Outcome{renogy.FrameOutcome("rover", bad)},
	}
	poller := fastPoller(testTarget("rover", 3), transport)

	_, err := poller.Poll(context.Background())
	assert.Error(err)
	assert.Equal(2, transport.Acquires())

	var failure *renogy.Failure
	assert.True(errors.As(err, &failure))
	assert.Equal(renogy.FailureMalformedResponse, failure.Kind)
}

func TestPollBackoffSeparatesAttempts(t *testing.T) {
	assert := assert.New(t)

	transport := &renogy.TestTransport{
		TargetName: "rover",
		Outcomes:   []renogy.Outcome{renogy.FailOutcome(renogy.FailureDeviceNotFound, "rover")},
	}
	poller := fastPoller(testTarget("rover", 3), transport)
	poller.Backoff = 30 * time.Millisecond

	start := time.Now()
	_, err := poller.Poll(context.Background())
	elapsed := time.Since(start)

	assert.Error(err)
	// linear backoff: 1*30ms + 2*30ms between the three attempts
	assert.GreaterOrEqual(elapsed, 90*time.Millisecond)
}

func TestPollContextCancelStopsRetrying(t *testing.T) {
	assert := assert.New(t)

	transport := &renogy.TestTransport{
		TargetName: "rover",
		Outcomes:   []renogy.Outcome{renogy.FailOutcome(renogy.FailureTimeout, "rover")},
	}
	poller := fastPoller(testTarget("rover", 5), transport)
	poller.Backoff = time.Second

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := poller.Poll(ctx)
	assert.Error(err)
	assert.Equal(1, transport.Acquires(), "cancellation short-circuits the backoff wait")
	assert.True(transport.Balanced())
}

func TestProbeSingleAttempt(t *testing.T) {
	assert := assert.New(t)

	transport := &renogy.TestTransport{
		TargetName: "rover",
		Outcomes:   []renogy.Outcome{renogy.FailOutcome(renogy.FailureDeviceNotFound, "rover")},
	}
	poller := fastPoller(testTarget("rover", 3), transport)

	err := poller.Probe(context.Background())
	assert.Error(err)
	assert.Equal(1, transport.Acquires(), "probe never retries")
}
