package tsl2591

// Addr is the fixed 7-bit I2C address of the TSL2591.
const Addr = 0x29

// DeviceID is the value the ID register reports for a TSL2591.
const DeviceID byte = 0x50

// ADC saturation ceilings. The 100ms integration setting has reduced
// headroom, so its ceiling is lower than the full 16-bit range.
const (
	MaxCount      uint16 = 65535
	MaxCount100ms uint16 = 36863
)

// LuxDF is the device factor used by the lux formula.
const LuxDF = 408

// Command byte layout: CMD:7 | TRANSACTION:6:5 | ADDR/SF:4:0
const (
	cmdNormal   byte = 0xA0 // 101x xxxx: normal register transaction
	cmdSpecial  byte = 0xE0 // 111x xxxx: special function
	cmdClearInt byte = cmdSpecial | 0x07
)

// TSL2591 register map
const (
	RegEnable  byte = 0x00 // Power, ALS and interrupt enables
	RegConfig  byte = 0x01 // Soft reset, gain, integration time
	RegAILTL   byte = 0x04 // ALS low threshold, low byte
	RegAILTH   byte = 0x05 // ALS low threshold, high byte
	RegAIHTL   byte = 0x06 // ALS high threshold, low byte
	RegAIHTH   byte = 0x07 // ALS high threshold, high byte
	RegNPAILTL byte = 0x08 // No-persist low threshold, low byte
	RegNPAILTH byte = 0x09 // No-persist low threshold, high byte
	RegNPAIHTL byte = 0x0A // No-persist high threshold, low byte
	RegNPAIHTH byte = 0x0B // No-persist high threshold, high byte
	RegPersist byte = 0x0C // Interrupt persistence filter
	RegPID     byte = 0x11 // Package identification
	RegID      byte = 0x12 // Device identification
	RegStatus  byte = 0x13 // Internal status
	RegC0DataL byte = 0x14 // Channel 0 data, low byte
	RegC0DataH byte = 0x15 // Channel 0 data, high byte
	RegC1DataL byte = 0x16 // Channel 1 data, low byte
	RegC1DataH byte = 0x17 // Channel 1 data, high byte
)

// Enable register: NPIEN:7 | SAI:6 | Reserved:5 | AIEN:4 | Reserved:3:2 | AEN:1 | PON:0
const (
	enablePowerMask byte = 0x03
	enablePowerOn   byte = 0x03
	enablePowerOff  byte = 0x00
	enableAENMask   byte = 0x02
	enableAENOn     byte = 0x02
	enableAENOff    byte = 0x00
	enableAIENMask  byte = 0x10
	enableAIENOn    byte = 0x10
	enableAIENOff   byte = 0x00
)

// Config register: SRESET:7 | Reserved:6 | AGAIN:5:4 | Reserved:3 | ATIME:2:0
const (
	configSReset   byte = 0x80
	configGainMask byte = 0x30
	configTimeMask byte = 0x07
)

// Status register: Reserved:7:6 | NPINTR:5 | AINT:4 | Reserved:3:1 | AVALID:0
const statusAValidMask byte = 0x01

// Gain selects the analog gain applied to both photodiode channels before
// digitization.
type Gain byte

const (
	GainLow  Gain = 0x00 // 1x
	GainMed  Gain = 0x10 // 25x
	GainHigh Gain = 0x20 // 400x
	GainMax  Gain = 0x30 // 9200x
)

// Multiplier returns the signal multiplier the gain setting applies, as used
// by the lux formula.
func (g Gain) Multiplier() uint16 {
	switch g {
	case GainLow:
		return 1
	case GainMed:
		return 25
	case GainHigh:
		return 400
	case GainMax:
		return 9200
	}
	return 1
}

func (g Gain) String() string {
	switch g {
	case GainLow:
		return "Low gain (1x)"
	case GainMed:
		return "Medium gain (25x)"
	case GainHigh:
		return "High gain (400x)"
	case GainMax:
		return "Max gain (9200x)"
	}
	return "Unknown"
}

// Integration selects the ADC integration (exposure) time for one
// measurement cycle.
type Integration byte

const (
	IntegrationTime100ms Integration = 0x00
	IntegrationTime200ms Integration = 0x01
	IntegrationTime300ms Integration = 0x02
	IntegrationTime400ms Integration = 0x03
	IntegrationTime500ms Integration = 0x04
	IntegrationTime600ms Integration = 0x05
)

// Milliseconds returns the integration time in milliseconds.
func (t Integration) Milliseconds() uint16 {
	switch t {
	case IntegrationTime100ms:
		return 100
	case IntegrationTime200ms:
		return 200
	case IntegrationTime300ms:
		return 300
	case IntegrationTime400ms:
		return 400
	case IntegrationTime500ms:
		return 500
	case IntegrationTime600ms:
		return 600
	}
	return 100
}

func (t Integration) String() string {
	switch t {
	case IntegrationTime100ms:
		return "100ms"
	case IntegrationTime200ms:
		return "200ms"
	case IntegrationTime300ms:
		return "300ms"
	case IntegrationTime400ms:
		return "400ms"
	case IntegrationTime500ms:
		return "500ms"
	case IntegrationTime600ms:
		return "600ms"
	}
	return "Unknown"
}

// Persist selects how many consecutive out-of-threshold integration cycles
// must occur before the chip asserts an interrupt.
type Persist byte

const (
	PersistEvery Persist = 0x00 // every cycle, regardless of thresholds
	Persist1     Persist = 0x01
	Persist2     Persist = 0x02
	Persist3     Persist = 0x03
	Persist5     Persist = 0x04
	Persist10    Persist = 0x05
	Persist15    Persist = 0x06
	Persist20    Persist = 0x07
	Persist25    Persist = 0x08
	Persist30    Persist = 0x09
	Persist35    Persist = 0x0A
	Persist40    Persist = 0x0B
	Persist45    Persist = 0x0C
	Persist50    Persist = 0x0D
	Persist55    Persist = 0x0E
	Persist60    Persist = 0x0F
)
