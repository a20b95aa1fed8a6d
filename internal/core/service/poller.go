package service

import (
	"context"
	"time"

	"github.com/tim-oe/piSolar/internal/core/domain"
	"github.com/tim-oe/piSolar/pkg/renogy"

	"go.uber.org/zap"
)

const (
	defaultMaxRetries = 3
	maxBackoff        = 10 * time.Second

	// per the BT module's flakier radio window, BLE waits longer
	// between attempts than a wired bus does
	bleBackoffBase    = 2 * time.Second
	serialBackoffBase = 1 * time.Second
)

// SensorPoller is the per-device facade: it turns "read this device" into
// normalized readings or a terminal *renogy.Failure, hiding the retry
// policy from callers. Attempts are strictly sequential; resource release
// is the transport's per-Acquire obligation, so the poller never holds a
// handle between attempts.
type SensorPoller struct {
	target    domain.DeviceTarget
	transport renogy.Transport
	logger    *zap.Logger

	// Backoff is the base delay between attempts; attempt n waits n*Backoff,
	// capped at maxBackoff. Exposed for tests.
	Backoff time.Duration
}

func NewSensorPoller(target domain.DeviceTarget, transport renogy.Transport, logger *zap.Logger) *SensorPoller {
	backoff := serialBackoffBase
	if target.Kind == domain.TransportBluetooth {
		backoff = bleBackoffBase
	}
	return &SensorPoller{
		target:    target,
		transport: transport,
		logger:    logger.With(zap.String("sensor", target.Name)),
		Backoff:   backoff,
	}
}

func (p *SensorPoller) Target() domain.DeviceTarget {
	return p.target
}

// Poll acquires, decodes and normalizes one reading, retrying per policy:
// up to MaxRetries attempts for transient failures (timeout, device not
// found, transport unavailable, dropped connection); a malformed response
// is retried exactly once, since corruption is less likely to self-resolve
// than a missed radio window. Callers receive either readings or the last
// failure, never a partial reading.
func (p *SensorPoller) Poll(ctx context.Context) ([]domain.Reading, error) {
	maxRetries := p.target.MaxRetries
	if maxRetries <= 0 {
		maxRetries = defaultMaxRetries
	}

	var last *renogy.Failure
	malformedRetried := false

	for attempt := 1; attempt <= maxRetries; attempt++ {
		reading, failure := p.attempt(ctx)
		if failure == nil {
			return []domain.Reading{reading}, nil
		}
		failure.Attempts = attempt
		last = failure

		if failure.Kind == renogy.FailureMalformedResponse {
			if malformedRetried {
				break
			}
			malformedRetried = true
		} else if !failure.Retryable() {
			break
		}

		if attempt < maxRetries {
			delay := p.backoffFor(attempt)
			p.logger.Warn("poll attempt failed, retrying",
				zap.Int("attempt", attempt),
				zap.Int("max_retries", maxRetries),
				zap.String("failure", string(failure.Kind)),
				zap.Duration("backoff", delay),
				zap.Error(failure))
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, last
			}
		}
	}

	p.logger.Error("all poll attempts failed",
		zap.Int("attempts", last.Attempts),
		zap.String("failure", string(last.Kind)))
	return nil, last
}

// Probe performs a single acquisition attempt with no retries and no
// publication, for reachability checks.
func (p *SensorPoller) Probe(ctx context.Context) error {
	_, failure := p.attempt(ctx)
	if failure != nil {
		return failure
	}
	return nil
}

func (p *SensorPoller) attempt(ctx context.Context) (domain.Reading, *renogy.Failure) {
	attemptCtx, cancel := context.WithTimeout(ctx, p.attemptTimeout())
	defer cancel()

	start := time.Now()
	frame, err := p.transport.Acquire(attemptCtx)
	if err != nil {
		return nil, renogy.AsFailure(err, p.target.Name)
	}

	decoded, err := renogy.Decode(frame)
	if err != nil {
		return nil, renogy.AsFailure(err, p.target.Name)
	}

	return domain.SolarReading{
		Name:           p.target.Name,
		Time:           frame.CapturedAt,
		Metrics:        decoded.Metrics,
		ChargingStatus: decoded.ChargingStatus,
		ReadDuration:   time.Since(start),
	}, nil
}

// attemptTimeout bounds one acquisition: scan plus connect-and-read, each
// of which the transports already cap at the target's configured timeout.
func (p *SensorPoller) attemptTimeout() time.Duration {
	base := p.target.ScanTimeout
	if base <= 0 {
		base = 15 * time.Second
	}
	return 2*base + time.Second
}

// PollDeadline bounds a whole Poll call: every attempt at its per-attempt
// timeout plus every backoff wait at the cap.
func (p *SensorPoller) PollDeadline() time.Duration {
	maxRetries := p.target.MaxRetries
	if maxRetries <= 0 {
		maxRetries = defaultMaxRetries
	}
	perAttempt := p.attemptTimeout()
	return time.Duration(maxRetries)*perAttempt + time.Duration(maxRetries-1)*maxBackoff
}

func (p *SensorPoller) backoffFor(attempt int) time.Duration {
	delay := time.Duration(attempt) * p.Backoff
	if delay > maxBackoff {
		delay = maxBackoff
	}
	return delay
}
