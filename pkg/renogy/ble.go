package renogy

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"tinygo.org/x/bluetooth"
)

// Advertised name prefixes of Renogy Bluetooth modules, matched when no
// exact MAC address is configured.
var bleNamePrefixes = []string{"BT-TH-", "RNGRBP-", "BTRIC-"}

var (
	// GATT layout of the BT-1/BT-2 modules: requests are written to the
	// Rx characteristic, responses arrive as Tx notifications.
	bleTxService        = bluetooth.New16BitUUID(0xFFF0)
	bleTxCharacteristic = bluetooth.New16BitUUID(0xFFF1)
	bleRxService        = bluetooth.New16BitUUID(0xFFD0)
	bleRxCharacteristic = bluetooth.New16BitUUID(0xFFD1)
)

// The BLE radio is a process-wide singleton and the BT module accepts a
// single peer, so all acquisitions serialize on one lock no matter how many
// BLE targets are configured.
var (
	radioMu   sync.Mutex
	radioOnce sync.Once
	radioErr  error

	// connMu guards the link watch of the current acquisition. The connect
	// handler runs on the BLE stack's goroutine, concurrent with Acquire.
	connMu      sync.Mutex
	connAddr    string
	connDropped chan struct{}
)

func enableRadio(adapter *bluetooth.Adapter) error {
	radioOnce.Do(func() {
		radioErr = adapter.Enable()
		if radioErr != nil {
			return
		}
		adapter.SetConnectHandler(func(device bluetooth.Device, connected bool) {
			if connected {
				return
			}
			radioSignalDisconnect(device.Address.String())
		})
	})
	return radioErr
}

// radioWatchDisconnect registers the connected device so only its
// disconnect events reach the returned channel. A stale event from an
// earlier connection carries another address or finds no watch at all.
func radioWatchDisconnect(addr string) chan struct{} {
	ch := make(chan struct{}, 1)
	connMu.Lock()
	connAddr, connDropped = addr, ch
	connMu.Unlock()
	return ch
}

func radioUnwatchDisconnect() {
	connMu.Lock()
	connAddr, connDropped = "", nil
	connMu.Unlock()
}

func radioSignalDisconnect(addr string) {
	connMu.Lock()
	defer connMu.Unlock()
	if connDropped == nil {
		return
	}
	if addr != "" && !strings.EqualFold(addr, connAddr) {
		return
	}
	select {
	case connDropped <- struct{}{}:
	default:
	}
}

// BLETransport reads a Renogy controller through a BT-1/BT-2 module.
// Scan, connect, subscribe, request, assemble, disconnect - every Acquire
// call runs the full sequence and releases the connection slot on exit.
type BLETransport struct {
	target      string
	macAddress  string
	deviceAlias string
	scanTimeout time.Duration
	logger      *zap.Logger
	adapter     *bluetooth.Adapter
}

// NewBLETransport configures a BLE transport. macAddress may be empty, in
// which case devices are matched by advertised name prefix.
func NewBLETransport(target, macAddress, deviceAlias string, scanTimeout time.Duration, logger *zap.Logger) *BLETransport {
	return &BLETransport{
		target:      target,
		macAddress:  strings.ToUpper(strings.TrimSpace(macAddress)),
		deviceAlias: deviceAlias,
		scanTimeout: scanTimeout,
		logger:      logger.With(zap.String("transport", KindBluetooth), zap.String("target", target)),
		adapter:     bluetooth.DefaultAdapter,
	}
}

func (t *BLETransport) Kind() string {
	return KindBluetooth
}

func (t *BLETransport) Target() string {
	return t.target
}

func (t *BLETransport) matches(result bluetooth.ScanResult) bool {
	if t.macAddress != "" {
		return strings.EqualFold(result.Address.String(), t.macAddress)
	}
	name := result.LocalName()
	for _, prefix := range bleNamePrefixes {
		if strings.HasPrefix(name, prefix) {
			return true
		}
	}
	return false
}

// Acquire runs one scan+connect+read sequence under the process-wide radio
// lock. The deferred disconnect runs on every exit path so the module's
// single connection slot is always released.
func (t *BLETransport) Acquire(ctx context.Context) (*RawFrame, error) {
	radioMu.Lock()
	defer radioMu.Unlock()

	if err := enableRadio(t.adapter); err != nil {
		return nil, newFailure(FailureTransportUnavailable, t.target, err)
	}

	start := time.Now()

	result, failure := t.scan(ctx)
	if failure != nil {
		return nil, failure
	}
	t.logger.Debug("advertisement matched",
		zap.String("address", result.Address.String()),
		zap.String("name", result.LocalName()),
		zap.Duration("scan", time.Since(start)))

	device, err := t.adapter.Connect(result.Address, bluetooth.ConnectionParams{
		ConnectionTimeout: bluetooth.NewDuration(t.scanTimeout),
	})
	if err != nil {
		return nil, newFailure(FailureConnectionRefused, t.target, err)
	}

	dropped := radioWatchDisconnect(result.Address.String())
	defer radioUnwatchDisconnect()

	frame, failure := t.exchange(ctx, device, dropped, start)

	// The BT module often drops the link on its own right after answering.
	// Once a complete frame is in hand that disconnect is benign, so errors
	// here are only ever diagnostic.
	if err := device.Disconnect(); err != nil {
		t.logger.Debug("post-read disconnect", zap.Error(err))
	}

	if failure != nil {
		return nil, failure
	}
	return frame, nil
}

// scan waits for a matching advertisement for up to the scan timeout.
func (t *BLETransport) scan(ctx context.Context) (bluetooth.ScanResult, *Failure) {
	found := make(chan bluetooth.ScanResult, 1)
	scanDone := make(chan error, 1)

	go func() {
		scanDone <- t.adapter.Scan(func(adapter *bluetooth.Adapter, result bluetooth.ScanResult) {
			if !t.matches(result) {
				return
			}
			select {
			case found <- result:
			default:
			}
			_ = adapter.StopScan()
		})
	}()

	timer := time.NewTimer(t.scanTimeout)
	defer timer.Stop()

	for {
		select {
		case result := <-found:
			<-scanDone
			return result, nil
		case err := <-scanDone:
			// Scan ended without a match: either the radio failed or
			// StopScan raced the found channel.
			select {
			case result := <-found:
				return result, nil
			default:
			}
			if err != nil {
				return bluetooth.ScanResult{}, newFailure(FailureTransportUnavailable, t.target, err)
			}
			return bluetooth.ScanResult{}, newFailure(FailureDeviceNotFound, t.target,
				fmt.Errorf("scan stopped with no matching advertisement"))
		case <-timer.C:
			_ = t.adapter.StopScan()
			<-scanDone
			select {
			case result := <-found:
				return result, nil
			default:
			}
			return bluetooth.ScanResult{}, newFailure(FailureDeviceNotFound, t.target,
				fmt.Errorf("no matching advertisement within %s", t.scanTimeout))
		case <-ctx.Done():
			_ = t.adapter.StopScan()
			<-scanDone
			return bluetooth.ScanResult{}, newFailure(FailureTimeout, t.target, ctx.Err())
		}
	}
}

// exchange subscribes to the Tx characteristic, writes the read request and
// assembles notification fragments into one response frame.
func (t *BLETransport) exchange(ctx context.Context, device bluetooth.Device, dropped <-chan struct{}, start time.Time) (*RawFrame, *Failure) {
	txChar, rxChar, failure := t.discover(device)
	if failure != nil {
		return nil, failure
	}

	fragments := make(chan []byte, 16)
	err := txChar.EnableNotifications(func(buf []byte) {
		fragment := make([]byte, len(buf))
		copy(fragment, buf)
		select {
		case fragments <- fragment:
		default:
		}
	})
	if err != nil {
		return nil, newFailure(FailureConnectionRefused, t.target, err)
	}

	if _, err := rxChar.WriteWithoutResponse(bleReadRequest()); err != nil {
		return nil, newFailure(FailureConnectionRefused, t.target, err)
	}

	asm := newFrameAssembler()
	timer := time.NewTimer(t.scanTimeout)
	defer timer.Stop()

	for !asm.complete() {
		select {
		case fragment := <-fragments:
			asm.feed(fragment)
		case <-dropped:
			// the disconnect can race the last fragment; take everything
			// already delivered before classifying
			asm.drain(fragments)
			if asm.complete() {
				break
			}
			return nil, newFailure(FailureConnectionRefused, t.target,
				fmt.Errorf("link dropped after %d bytes", len(asm.buf)))
		case <-timer.C:
			return nil, newFailure(FailureTimeout, t.target,
				fmt.Errorf("no complete notification frame within %s (%d bytes)", t.scanTimeout, len(asm.buf)))
		case <-ctx.Done():
			return nil, newFailure(FailureTimeout, t.target, ctx.Err())
		}
	}

	words, err := asm.registers()
	if err != nil {
		return nil, newFailure(FailureMalformedResponse, t.target, err)
	}

	registers, err := selectCanonical(words)
	if err != nil {
		return nil, newFailure(FailureMalformedResponse, t.target, err)
	}

	t.logger.Debug("ble read complete",
		zap.Int("registers", len(registers)),
		zap.Duration("elapsed", time.Since(start)))

	return &RawFrame{
		Target:     t.target,
		CapturedAt: start,
		Registers:  registers,
	}, nil
}

func (t *BLETransport) discover(device bluetooth.Device) (tx, rx *bluetooth.DeviceCharacteristic, failure *Failure) {
	services, err := device.DiscoverServices([]bluetooth.UUID{bleTxService, bleRxService})
	if err != nil || len(services) < 2 {
		return nil, nil, newFailure(FailureConnectionRefused, t.target,
			fmt.Errorf("service discovery: %w", err))
	}
	txChars, err := services[0].DiscoverCharacteristics([]bluetooth.UUID{bleTxCharacteristic})
	if err != nil || len(txChars) < 1 {
		return nil, nil, newFailure(FailureConnectionRefused, t.target,
			fmt.Errorf("tx characteristic discovery: %w", err))
	}
	rxChars, err := services[1].DiscoverCharacteristics([]bluetooth.UUID{bleRxCharacteristic})
	if err != nil || len(rxChars) < 1 {
		return nil, nil, newFailure(FailureConnectionRefused, t.target,
			fmt.Errorf("rx characteristic discovery: %w", err))
	}
	return &txChars[0], &rxChars[0], nil
}

// selectCanonical maps the single contiguous BLE read (0x0100..0x0120) onto
// the canonical register-table order shared with the serial transport.
func selectCanonical(words []uint16) ([]uint16, error) {
	if len(words) < bleReadCount {
		return nil, fmt.Errorf("expected %d register words, got %d", bleReadCount, len(words))
	}
	registers := make([]uint16, 0, len(registerTable))
	for _, def := range registerTable {
		offset := int(def.Address - bleReadStart)
		if offset < 0 || offset >= len(words) {
			return nil, fmt.Errorf("register 0x%04X outside read range", def.Address)
		}
		registers = append(registers, words[offset])
	}
	return registers, nil
}
