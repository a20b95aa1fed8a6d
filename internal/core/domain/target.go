package domain

import "time"

// TransportKind selects the physical transport of a device target.
type TransportKind string

const (
	TransportBluetooth TransportKind = "bt"
	TransportSerial    TransportKind = "serial"
	TransportOneWire   TransportKind = "w1"
)

// DeviceType hints at the controller model behind the transport.
type DeviceType string

const (
	DeviceController DeviceType = "controller"
	DeviceRover      DeviceType = "rover"
	DeviceWanderer   DeviceType = "wanderer"
	DeviceDCC        DeviceType = "dcc"
)

// DeviceTarget identifies one physical device and its acquisition tunables.
// Targets are created from configuration, never mutated, and owned by
// exactly one sensor actor.
type DeviceTarget struct {
	Name string
	Kind TransportKind

	// Bluetooth (BT-1/BT-2)
	MACAddress  string
	DeviceAlias string

	// Serial Modbus RTU
	DevicePath   string
	BaudRate     uint
	SlaveAddress uint8

	// 1-Wire
	Address string

	ScanTimeout time.Duration
	MaxRetries  int
	DeviceType  DeviceType
}
