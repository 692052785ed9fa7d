package tsl2591

/*
 * tsl2591 - Driver for the TSL2591 ambient light sensor.
 *
 * The chip is register addressed behind a command byte, reachable over I2C.
 * Every operation here is a synchronous sequence of bus transactions; the
 * driver holds no locks, so a caller sharing one device across goroutines
 * must serialize whole operations itself.
 *
 * Ref:
 * https://ams.com/tsl25911
 */

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"golang.org/x/exp/io/i2c"
)

var l *logrus.Logger

func init() {
	l = logrus.New()
	// Setup the logger, so it can be parsed by datadog
	l.Formatter = &logrus.JSONFormatter{}
	l.SetOutput(os.Stdout)
	// Set the log level
	logLevel := strings.ToLower(os.Getenv("LOG_LEVEL"))
	switch logLevel {
	case "debug":
		l.SetLevel(logrus.DebugLevel)
	case "info":
		l.SetLevel(logrus.InfoLevel)
	case "error":
		l.SetLevel(logrus.ErrorLevel)
	default:
		l.SetLevel(logrus.InfoLevel)
	}
}

// Bus is the transport the driver drives. Write sends raw bytes to the chip,
// ReadReg sends the command byte and then reads len(buf) bytes back in one
// combined transaction. *i2c.Device from golang.org/x/exp/io/i2c satisfies
// it directly.
type Bus interface {
	Write(buf []byte) error
	ReadReg(cmd byte, buf []byte) error
}

// Device is a TSL2591 behind a Bus. The gain multiplier and integration time
// track the last successfully applied settings and feed the lux conversion.
type Device struct {
	bus       Bus
	again     uint16 // gain multiplier: 1, 25, 400 or 9200
	atime     uint16 // integration time in ms
	poweredOn bool
}

// Open connects to a TSL2591 on the named I2C device file ("/dev/i2c-1" on a
// Raspberry Pi) and runs the New construction sequence on it.
func Open(path string) (*Device, error) {
	if path == "" {
		path = "/dev/i2c-1"
	}
	bus, err := i2c.Open(&i2c.Devfs{Dev: path}, Addr)
	if err != nil {
		return nil, fmt.Errorf("tsl2591: open %s: %w", path, err)
	}
	return New(bus)
}

// New resets the chip, verifies its identity and powers it on. The returned
// device reflects the chip's power-on defaults: low gain (1x) and 100ms
// integration time.
func New(bus Bus) (*Device, error) {
	d := &Device{
		bus:   bus,
		again: GainLow.Multiplier(),
		atime: IntegrationTime100ms.Milliseconds(),
	}
	if err := d.Reset(); err != nil {
		return nil, err
	}

	id, err := d.ID()
	if err != nil {
		return nil, err
	}
	if id != DeviceID {
		return nil, &InvalidIDError{ID: id}
	}

	if err := d.PowerOn(); err != nil {
		return nil, err
	}
	l.Debugf("Connected to TSL2591 (id 0x%02X)", id)
	return d, nil
}

// Write sets a single register to val.
func (d *Device) Write(reg byte, val byte) error {
	if err := d.bus.Write([]byte{cmdNormal | reg, val}); err != nil {
		return fmt.Errorf("tsl2591: write register 0x%02X: %w", reg, err)
	}
	return nil
}

// Read fills buf starting at reg. The chip auto-increments the register
// address, so a multi-byte buf reads consecutive registers in one
// transaction.
func (d *Device) Read(reg byte, buf []byte) error {
	if err := d.bus.ReadReg(cmdNormal|reg, buf); err != nil {
		return fmt.Errorf("tsl2591: read register 0x%02X: %w", reg, err)
	}
	return nil
}

// Update sets the bits of reg selected by mask to val, leaving the rest
// untouched. The write is skipped when it would not change the register;
// on this chip some writes are themselves actions, so identical rewrites
// must not be reissued.
func (d *Device) Update(reg byte, mask byte, val byte) error {
	var old [1]byte
	if err := d.Read(reg, old[:]); err != nil {
		return err
	}

	next := (old[0] &^ mask) | (val & mask)
	if next == old[0] {
		return nil
	}
	return d.Write(reg, next)
}

// PowerOn asserts the power and ALS-enable bits.
func (d *Device) PowerOn() error {
	if err := d.Update(RegEnable, enablePowerMask, enablePowerOn); err != nil {
		return err
	}
	d.poweredOn = true
	return nil
}

// PowerOff deasserts the power and ALS-enable bits.
func (d *Device) PowerOff() error {
	if err := d.Update(RegEnable, enablePowerMask, enablePowerOff); err != nil {
		return err
	}
	d.poweredOn = false
	return nil
}

// PoweredOn reports whether the chip's power bit was asserted by the last
// successful enable write.
func (d *Device) PoweredOn() bool {
	return d.poweredOn
}

// Reset issues a soft reset. The chip only latches it while powered down.
func (d *Device) Reset() error {
	if err := d.PowerOff(); err != nil {
		return err
	}
	if err := d.Write(RegConfig, configSReset); err != nil {
		return err
	}
	return d.PowerOn()
}

// ID reads the device identity register.
func (d *Device) ID() (byte, error) {
	var id [1]byte
	if err := d.Read(RegID, id[:]); err != nil {
		return 0, err
	}
	return id[0], nil
}

// powerCycle brackets a configuration write with power off/on, since gain,
// integration time and persistence only latch while the power bit is
// deasserted. If the wrapped write fails the wrapper still tries to restore
// power so the chip is not left latched off; a failed restore is reported
// alongside the original error.
func (d *Device) powerCycle(fn func() error) error {
	if err := d.PowerOff(); err != nil {
		return err
	}
	if err := fn(); err != nil {
		if onErr := d.PowerOn(); onErr != nil {
			return errors.Join(err, onErr)
		}
		return err
	}
	return d.PowerOn()
}

// SetGain applies a new analog gain setting.
func (d *Device) SetGain(gain Gain) error {
	err := d.powerCycle(func() error {
		return d.Update(RegConfig, configGainMask, byte(gain))
	})
	if err != nil {
		return err
	}

	d.again = gain.Multiplier()
	l.Debugf("Gain set: %s", gain)
	return nil
}

// SetIntegration applies a new integration time.
func (d *Device) SetIntegration(time Integration) error {
	err := d.powerCycle(func() error {
		return d.Update(RegConfig, configTimeMask, byte(time))
	})
	if err != nil {
		return err
	}

	d.atime = time.Milliseconds()
	l.Debugf("Integration time set: %s", time)
	return nil
}

// GainMultiplier returns the multiplier of the last applied gain setting.
func (d *Device) GainMultiplier() uint16 {
	return d.again
}

// IntegrationMS returns the last applied integration time in milliseconds.
func (d *Device) IntegrationMS() uint16 {
	return d.atime
}

// SetPersist applies a new interrupt persistence filter.
func (d *Device) SetPersist(persist Persist) error {
	return d.powerCycle(func() error {
		return d.Write(RegPersist, byte(persist))
	})
}

// SetThreshold sets the low and high ALS interrupt thresholds. All four
// bytes go out little-endian in a single transaction.
func (d *Device) SetThreshold(lower uint16, upper uint16) error {
	buf := []byte{
		cmdNormal | RegAILTL,
		byte(lower), byte(lower >> 8),
		byte(upper), byte(upper >> 8),
	}

	return d.powerCycle(func() error {
		if err := d.bus.Write(buf); err != nil {
			return fmt.Errorf("tsl2591: write thresholds: %w", err)
		}
		return nil
	})
}

// EnableInterrupt turns ALS interrupt generation on or off. No power cycle
// is needed for this bit.
func (d *Device) EnableInterrupt(enable bool) error {
	aien := enableAIENOff
	if enable {
		aien = enableAIENOn
	}
	return d.Update(RegEnable, enableAIENMask, aien)
}

// ClearInterrupt drops a latched ALS interrupt. This is a one-shot special
// function command, not a register value, so it always goes out on the bus.
func (d *Device) ClearInterrupt() error {
	if err := d.bus.Write([]byte{cmdClearInt}); err != nil {
		return fmt.Errorf("tsl2591: clear interrupt: %w", err)
	}
	return nil
}

// CycleComplete reports whether the chip has finished an integration cycle
// since the ALS was last enabled.
func (d *Device) CycleComplete() (bool, error) {
	var status [1]byte
	if err := d.Read(RegStatus, status[:]); err != nil {
		return false, err
	}
	return status[0]&statusAValidMask != 0, nil
}

// RawAlsData reads both channel counts in one four-byte transaction. With
// checkComplete set it first requires the AVALID status bit, failing with
// ErrCycleIncomplete before touching the data registers, and toggles the
// ALS-enable bit off and on so the next cycle's completion can be observed.
// A reading at or above the ADC ceiling for the current integration time is
// returned inside a SaturationError rather than discarded.
func (d *Device) RawAlsData(checkComplete bool) (AlsData, error) {
	if checkComplete {
		complete, err := d.CycleComplete()
		if err != nil {
			return AlsData{}, err
		}
		if !complete {
			return AlsData{}, ErrCycleIncomplete
		}

		// Re-arm AEN so AVALID tracks the next cycle
		if err := d.Update(RegEnable, enableAENMask, enableAENOff); err != nil {
			return AlsData{}, err
		}
		if err := d.Update(RegEnable, enableAENMask, enableAENOn); err != nil {
			return AlsData{}, err
		}
	}

	var buf [4]byte
	if err := d.Read(RegC0DataL, buf[:]); err != nil {
		return AlsData{}, err
	}
	l.Debugf("Bytes read: %v", buf)

	data := AlsData{
		Visible:  uint16(buf[0]) | uint16(buf[1])<<8,
		Infrared: uint16(buf[2]) | uint16(buf[3])<<8,
	}

	maxCount := MaxCount
	if d.atime == 100 {
		maxCount = MaxCount100ms
	}
	if data.Visible >= maxCount || data.Infrared >= maxCount {
		return data, &SaturationError{Data: data}
	}
	return data, nil
}

// GetLux performs one readout and converts it to illuminance using the
// current gain and integration settings.
func (d *Device) GetLux(checkComplete bool) (Lux, error) {
	data, err := d.RawAlsData(checkComplete)
	if err != nil {
		return Lux{}, err
	}
	return ComputeLux(data, d.again, d.atime), nil
}
