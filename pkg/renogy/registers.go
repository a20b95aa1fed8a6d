package renogy

// Renogy Rover/Wanderer Modbus register map, per the official Rover Modbus
// protocol document. The same layout is served over serial RTU and over the
// BT-1/BT-2 notification protocol, so the decoder only ever sees register
// words in the canonical order of this table.

type registerKind int

const (
	// plain unsigned 16-bit value, scaled
	regScaled registerKind = iota
	// high byte = controller temp, low byte = battery temp,
	// both sign+magnitude (b7 = sign, b0-b6 = degrees C)
	regCombinedTemp
	// low byte = charging status code
	regChargingStatus
)

type registerDef struct {
	Address uint16
	Metric  string
	Scale   float64
	Kind    registerKind
	// Max is an inclusive plausibility bound on the scaled value.
	// Zero means unbounded.
	Max float64
}

// registerTable defines the canonical frame layout: RawFrame.Registers[i]
// holds the word read from registerTable[i].Address.
var registerTable = []registerDef{
	{Address: 0x0100, Metric: MetricBatterySOC, Scale: 1, Max: 100},
	{Address: 0x0101, Metric: MetricBatteryVoltage, Scale: 0.1, Max: 100},
	{Address: 0x0102, Metric: MetricBatteryCurrent, Scale: 0.01, Max: 200},
	{Address: 0x0103, Kind: regCombinedTemp},
	{Address: 0x0104, Metric: MetricLoadVoltage, Scale: 0.1, Max: 100},
	{Address: 0x0105, Metric: MetricLoadCurrent, Scale: 0.01, Max: 200},
	{Address: 0x0106, Metric: MetricLoadPower, Scale: 1},
	{Address: 0x0107, Metric: MetricPVVoltage, Scale: 0.1, Max: 200},
	{Address: 0x0108, Metric: MetricPVCurrent, Scale: 0.01, Max: 200},
	{Address: 0x0109, Metric: MetricPVPower, Scale: 1},
	{Address: 0x010B, Metric: MetricBatteryMinVoltageToday, Scale: 0.1, Max: 100},
	{Address: 0x010C, Metric: MetricBatteryMaxVoltageToday, Scale: 0.1, Max: 100},
	{Address: 0x010D, Metric: MetricMaxChargingCurrentToday, Scale: 0.01, Max: 200},
	{Address: 0x010E, Metric: MetricMaxDischargingCurrentToday, Scale: 0.01, Max: 200},
	{Address: 0x010F, Metric: MetricMaxChargingPowerToday, Scale: 1},
	{Address: 0x0110, Metric: MetricMaxDischargingPowerToday, Scale: 1},
	{Address: 0x0111, Metric: MetricChargingAmpHoursToday, Scale: 1},
	{Address: 0x0112, Metric: MetricDischargingAmpHoursToday, Scale: 1},
	{Address: 0x0113, Metric: MetricPowerGenerationToday, Scale: 0.1},
	{Address: 0x0114, Metric: MetricPowerConsumptionToday, Scale: 0.1},
	{Address: 0x0120, Kind: regChargingStatus},
}

// Metric names carried by SolarReading, all in SI-scaled units
// (volts, amps, watts, degrees Celsius, percent).
const (
	MetricBatterySOC                 = "battery_percentage"
	MetricBatteryVoltage             = "battery_voltage"
	MetricBatteryCurrent             = "battery_current"
	MetricBatteryTemperature         = "battery_temperature"
	MetricControllerTemperature      = "controller_temperature"
	MetricLoadVoltage                = "load_voltage"
	MetricLoadCurrent                = "load_current"
	MetricLoadPower                  = "load_power"
	MetricPVVoltage                  = "pv_voltage"
	MetricPVCurrent                  = "pv_current"
	MetricPVPower                    = "pv_power"
	MetricBatteryMinVoltageToday     = "battery_min_voltage_today"
	MetricBatteryMaxVoltageToday     = "battery_max_voltage_today"
	MetricMaxChargingCurrentToday    = "max_charging_current_today"
	MetricMaxDischargingCurrentToday = "max_discharging_current_today"
	MetricMaxChargingPowerToday      = "max_charging_power_today"
	MetricMaxDischargingPowerToday   = "max_discharging_power_today"
	MetricChargingAmpHoursToday      = "charging_amp_hours_today"
	MetricDischargingAmpHoursToday   = "discharging_amp_hours_today"
	MetricPowerGenerationToday       = "power_generation_today"
	MetricPowerConsumptionToday      = "power_consumption_today"
)

// chargingStatus maps the low byte of register 0x0120.
var chargingStatus = map[uint8]string{
	0: "deactivated",
	1: "activated",
	2: "mppt",
	3: "equalizing",
	4: "boost",
	5: "floating",
	6: "current_limiting",
}

// readBlocks groups the canonical table into contiguous holding-register
// reads. The serial transport issues one Modbus request per block.
type readBlock struct {
	Start    uint16
	Quantity uint16
}

var readBlocks = []readBlock{
	{Start: 0x0100, Quantity: 10}, // battery, temps, load, PV
	{Start: 0x010B, Quantity: 10}, // daily statistics
	{Start: 0x0120, Quantity: 1},  // charging status
}

// FrameSize is the number of canonical register words in a complete frame.
func FrameSize() int {
	return len(registerTable)
}

// bleReadStart/bleReadCount cover the whole canonical range in a single
// BT-1/BT-2 request (0x0100..0x0120 inclusive).
const (
	bleReadStart = 0x0100
	bleReadCount = 0x21
)

// toSigned8 converts a sign+magnitude temperature byte. Per the Rover
// protocol, 0x8B encodes -11 degrees, not two's complement.
func toSigned8(b uint8) int {
	if b&0x80 != 0 {
		return -int(b & 0x7F)
	}
	return int(b)
}
