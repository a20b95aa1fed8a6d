package renogy

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/simonvetter/modbus"
	"go.uber.org/zap"
)

// SerialTransport reads a Renogy controller over RS232/RS485 Modbus RTU.
// The port is opened and closed on every Acquire; serial ports are
// exclusive per device path, so one transport instance owns its path.
type SerialTransport struct {
	target       string
	devicePath   string
	baudRate     uint
	slaveAddress uint8
	timeout      time.Duration
	logger       *zap.Logger

	client *modbus.ModbusClient
}

// NewSerialTransport configures a serial RTU transport. 8 data bits, no
// parity, 1 stop bit, per the Renogy protocol.
func NewSerialTransport(target, devicePath string, baudRate uint, slaveAddress uint8,
	timeout time.Duration, logger *zap.Logger) (*SerialTransport, error) {

	client, err := modbus.NewClient(&modbus.ClientConfiguration{
		URL:      fmt.Sprintf("rtu://%s", devicePath),
		Speed:    baudRate,
		DataBits: 8,
		Parity:   modbus.PARITY_NONE,
		StopBits: 1,
		Timeout:  timeout,
	})
	if err != nil {
		return nil, err
	}
	if slaveAddress > 0 {
		if err := client.SetUnitId(slaveAddress); err != nil {
			return nil, err
		}
	}

	return &SerialTransport{
		target:       target,
		devicePath:   devicePath,
		baudRate:     baudRate,
		slaveAddress: slaveAddress,
		timeout:      timeout,
		logger:       logger.With(zap.String("transport", KindSerial), zap.String("target", target)),
		client:       client,
	}, nil
}

func (t *SerialTransport) Kind() string {
	return KindSerial
}

func (t *SerialTransport) Target() string {
	return t.target
}

// Acquire opens the port, reads each holding-register block of the
// canonical table and closes the port again. The modbus library validates
// response CRC and function codes on the wire.
func (t *SerialTransport) Acquire(ctx context.Context) (*RawFrame, error) {
	start := time.Now()

	if err := t.client.Open(); err != nil {
		return nil, newFailure(FailureTransportUnavailable, t.target, err)
	}
	defer func() {
		if err := t.client.Close(); err != nil {
			t.logger.Debug("serial close", zap.Error(err))
		}
	}()

	registers := make([]uint16, 0, len(registerTable))
	for _, block := range readBlocks {
		if err := ctx.Err(); err != nil {
			return nil, newFailure(FailureTimeout, t.target, err)
		}
		words, err := t.client.ReadRegisters(block.Start, block.Quantity, modbus.HOLDING_REGISTER)
		if err != nil {
			return nil, newFailure(t.mapReadError(err), t.target, err)
		}
		if len(words) != int(block.Quantity) {
			return nil, newFailure(FailureMalformedResponse, t.target,
				fmt.Errorf("block 0x%04X: expected %d words, got %d", block.Start, block.Quantity, len(words)))
		}
		registers = append(registers, words...)
	}

	t.logger.Debug("serial read complete",
		zap.Int("registers", len(registers)),
		zap.Duration("elapsed", time.Since(start)))

	return &RawFrame{
		Target:     t.target,
		CapturedAt: start,
		Registers:  registers,
	}, nil
}

func (t *SerialTransport) mapReadError(err error) FailureKind {
	switch {
	case errors.Is(err, modbus.ErrRequestTimedOut):
		return FailureTimeout
	case errors.Is(err, modbus.ErrBadCRC),
		errors.Is(err, modbus.ErrProtocolError),
		errors.Is(err, modbus.ErrIllegalFunction),
		errors.Is(err, modbus.ErrIllegalDataAddress),
		errors.Is(err, modbus.ErrIllegalDataValue),
		errors.Is(err, modbus.ErrServerDeviceFailure):
		return FailureMalformedResponse
	default:
		return FailureTransportUnavailable
	}
}
