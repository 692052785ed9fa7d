package tsl2591

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// busOp records one bus transaction for ordering assertions.
type busOp struct {
	write bool
	cmd   byte
	data  []byte
}

// fakeBus models the chip's register file behind the command byte framing.
// Hooks inject transport failures per transaction.
type fakeBus struct {
	regs      [0x20]byte
	ops       []busOp
	writeHook func(buf []byte) error
	readHook  func(cmd byte) error
}

func newFakeBus() *fakeBus {
	b := &fakeBus{}
	b.regs[RegID] = DeviceID
	return b
}

func (b *fakeBus) Write(buf []byte) error {
	op := busOp{write: true, cmd: buf[0], data: append([]byte(nil), buf[1:]...)}
	b.ops = append(b.ops, op)
	if b.writeHook != nil {
		if err := b.writeHook(buf); err != nil {
			return err
		}
	}
	if buf[0]&0x40 != 0 {
		// special function command, nothing lands in the register file
		return nil
	}
	reg := buf[0] & 0x1F
	for i, v := range buf[1:] {
		b.regs[reg+byte(i)] = v
	}
	return nil
}

func (b *fakeBus) ReadReg(cmd byte, buf []byte) error {
	b.ops = append(b.ops, busOp{cmd: cmd, data: nil})
	if b.readHook != nil {
		if err := b.readHook(cmd); err != nil {
			return err
		}
	}
	reg := cmd & 0x1F
	for i := range buf {
		buf[i] = b.regs[reg+byte(i)]
	}
	return nil
}

// writesTo returns the payloads of every normal write that targeted reg.
func (b *fakeBus) writesTo(reg byte) [][]byte {
	var out [][]byte
	for _, op := range b.ops {
		if op.write && op.cmd&0x40 == 0 && op.cmd&0x1F == reg {
			out = append(out, op.data)
		}
	}
	return out
}

func (b *fakeBus) setChannels(visible, infrared uint16) {
	b.regs[RegC0DataL] = byte(visible)
	b.regs[RegC0DataH] = byte(visible >> 8)
	b.regs[RegC1DataL] = byte(infrared)
	b.regs[RegC1DataH] = byte(infrared >> 8)
}

func newTestDevice(t *testing.T) (*Device, *fakeBus) {
	t.Helper()
	bus := newFakeBus()
	d, err := New(bus)
	require.NoError(t, err)
	bus.ops = nil
	return d, bus
}

func TestNewLeavesChipPoweredWithDefaults(t *testing.T) {
	bus := newFakeBus()
	d, err := New(bus)
	require.NoError(t, err)

	assert.True(t, d.PoweredOn())
	assert.Equal(t, enablePowerOn, bus.regs[RegEnable]&enablePowerMask)
	assert.Equal(t, uint16(1), d.GainMultiplier())
	assert.Equal(t, uint16(100), d.IntegrationMS())

	// the soft reset bit must have been written while powered down
	assert.Equal(t, configSReset, bus.regs[RegConfig]&configSReset)
}

func TestNewRejectsUnknownDevice(t *testing.T) {
	bus := newFakeBus()
	bus.regs[RegID] = 0x3C

	d, err := New(bus)
	assert.Nil(t, d)

	var idErr *InvalidIDError
	require.ErrorAs(t, err, &idErr)
	assert.Equal(t, byte(0x3C), idErr.ID)
}

func TestNewPropagatesTransportError(t *testing.T) {
	bus := newFakeBus()
	busFault := errors.New("bus fault")
	bus.readHook = func(cmd byte) error {
		if cmd&0x1F == RegID {
			return busFault
		}
		return nil
	}

	_, err := New(bus)
	assert.ErrorIs(t, err, busFault)
}

func TestUpdateTouchesOnlyMaskedBits(t *testing.T) {
	d, bus := newTestDevice(t)
	bus.regs[RegPersist] = 0xA5

	require.NoError(t, d.Update(RegPersist, 0x0F, 0x3C))
	assert.Equal(t, byte(0xAC), bus.regs[RegPersist])
}

func TestUpdateSkipsRedundantWrite(t *testing.T) {
	d, bus := newTestDevice(t)

	require.NoError(t, d.Update(RegPersist, 0x0F, 0x07))
	require.Len(t, bus.writesTo(RegPersist), 1)

	// same update again: read, but no second write
	require.NoError(t, d.Update(RegPersist, 0x0F, 0x07))
	assert.Len(t, bus.writesTo(RegPersist), 1)
}

func TestClearInterruptAlwaysIssuesCommand(t *testing.T) {
	d, bus := newTestDevice(t)

	require.NoError(t, d.ClearInterrupt())
	require.NoError(t, d.ClearInterrupt())

	var clears int
	for _, op := range bus.ops {
		if op.write && op.cmd == cmdClearInt {
			assert.Empty(t, op.data)
			clears++
		}
	}
	assert.Equal(t, 2, clears)
}

func TestRawAlsDataGatesOnCycleComplete(t *testing.T) {
	d, bus := newTestDevice(t)
	bus.regs[RegStatus] = 0x00
	bus.setChannels(1234, 56)

	_, err := d.RawAlsData(true)
	assert.ErrorIs(t, err, ErrCycleIncomplete)

	// no channel read may have been attempted
	for _, op := range bus.ops {
		assert.NotEqual(t, cmdNormal|RegC0DataL, op.cmd)
	}
}

func TestRawAlsDataRearmsBeforeReading(t *testing.T) {
	d, bus := newTestDevice(t)
	bus.regs[RegStatus] = statusAValidMask
	bus.setChannels(1234, 56)

	data, err := d.RawAlsData(true)
	require.NoError(t, err)
	assert.Equal(t, AlsData{Visible: 1234, Infrared: 56}, data)

	// AEN toggled off then on, then a single 4-byte channel read
	var sequence []byte
	for _, op := range bus.ops {
		if op.write && op.cmd&0x1F == RegEnable {
			sequence = append(sequence, op.data[0]&enableAENMask)
		}
		if !op.write && op.cmd == cmdNormal|RegC0DataL {
			sequence = append(sequence, 0xFF)
		}
	}
	assert.Equal(t, []byte{enableAENOff, enableAENOn, 0xFF}, sequence)
}

func TestRawAlsDataSaturation100ms(t *testing.T) {
	d, bus := newTestDevice(t)
	require.Equal(t, uint16(100), d.IntegrationMS())

	bus.setChannels(MaxCount100ms, 0)
	_, err := d.RawAlsData(false)
	var satErr *SaturationError
	require.ErrorAs(t, err, &satErr)
	assert.Equal(t, AlsData{Visible: MaxCount100ms}, satErr.Data)

	bus.setChannels(MaxCount100ms-1, 0)
	data, err := d.RawAlsData(false)
	require.NoError(t, err)
	assert.Equal(t, MaxCount100ms-1, data.Visible)
}

func TestRawAlsDataSaturationLongerIntegration(t *testing.T) {
	d, bus := newTestDevice(t)
	require.NoError(t, d.SetIntegration(IntegrationTime200ms))

	// above the 100ms ceiling but below the full-range one
	bus.setChannels(40000, 12)
	data, err := d.RawAlsData(false)
	require.NoError(t, err)
	assert.Equal(t, uint16(40000), data.Visible)

	bus.setChannels(100, MaxCount)
	_, err = d.RawAlsData(false)
	var satErr *SaturationError
	require.ErrorAs(t, err, &satErr)
	assert.Equal(t, AlsData{Visible: 100, Infrared: MaxCount}, satErr.Data)
}

func TestSetGainRoundTrip(t *testing.T) {
	d, bus := newTestDevice(t)

	require.NoError(t, d.SetGain(GainHigh))
	assert.Equal(t, uint16(400), d.GainMultiplier())
	assert.Equal(t, byte(GainHigh), bus.regs[RegConfig]&configGainMask)
	assert.True(t, d.PoweredOn())
}

func TestSetIntegrationRoundTrip(t *testing.T) {
	d, bus := newTestDevice(t)

	require.NoError(t, d.SetIntegration(IntegrationTime600ms))
	assert.Equal(t, uint16(600), d.IntegrationMS())
	assert.Equal(t, byte(IntegrationTime600ms), bus.regs[RegConfig]&configTimeMask)
}

func TestPowerCycleRestoresPowerOnFailure(t *testing.T) {
	d, bus := newTestDevice(t)
	busFault := errors.New("bus fault")
	bus.writeHook = func(buf []byte) error {
		if buf[0]&0x40 == 0 && buf[0]&0x1F == RegConfig {
			return busFault
		}
		return nil
	}

	err := d.SetGain(GainMax)
	assert.ErrorIs(t, err, busFault)

	// the chip was powered back on and the cached multiplier is untouched
	assert.True(t, d.PoweredOn())
	assert.Equal(t, enablePowerOn, bus.regs[RegEnable]&enablePowerMask)
	assert.Equal(t, uint16(1), d.GainMultiplier())
}

func TestPowerCycleStopsWhenPowerOffFails(t *testing.T) {
	d, bus := newTestDevice(t)
	busFault := errors.New("bus fault")
	bus.writeHook = func(buf []byte) error {
		if buf[0]&0x40 == 0 && buf[0]&0x1F == RegEnable {
			return busFault
		}
		return nil
	}

	err := d.SetPersist(Persist10)
	assert.ErrorIs(t, err, busFault)

	// the persistence write was never attempted
	assert.Empty(t, bus.writesTo(RegPersist))
}

func TestSetThresholdWritesOneTransaction(t *testing.T) {
	d, bus := newTestDevice(t)

	require.NoError(t, d.SetThreshold(0x1234, 0xABCD))

	writes := bus.writesTo(RegAILTL)
	require.Len(t, writes, 1)
	assert.Equal(t, []byte{0x34, 0x12, 0xCD, 0xAB}, writes[0])
	assert.True(t, d.PoweredOn())
}

func TestSetPersistPowerCycles(t *testing.T) {
	d, bus := newTestDevice(t)

	require.NoError(t, d.SetPersist(Persist60))
	assert.Equal(t, byte(Persist60), bus.regs[RegPersist])

	// power dropped before the write and came back after it
	var enables []byte
	for _, op := range bus.ops {
		if op.write && op.cmd&0x40 == 0 && op.cmd&0x1F == RegEnable {
			enables = append(enables, op.data[0]&enablePowerMask)
		}
	}
	assert.Equal(t, []byte{enablePowerOff, enablePowerOn}, enables)
}

func TestEnableInterrupt(t *testing.T) {
	d, bus := newTestDevice(t)

	require.NoError(t, d.EnableInterrupt(true))
	assert.Equal(t, enableAIENOn, bus.regs[RegEnable]&enableAIENMask)

	require.NoError(t, d.EnableInterrupt(false))
	assert.Equal(t, enableAIENOff, bus.regs[RegEnable]&enableAIENMask)

	// interrupt enable must not drop power
	assert.Equal(t, enablePowerOn, bus.regs[RegEnable]&enablePowerMask)
}

func TestGetLuxUsesLiveSettings(t *testing.T) {
	d, bus := newTestDevice(t)
	require.NoError(t, d.SetGain(GainMed))
	require.NoError(t, d.SetIntegration(IntegrationTime600ms))

	bus.setChannels(1000, 100)
	lux, err := d.GetLux(false)
	require.NoError(t, err)
	assert.Equal(t, Lux{Integer: 22, Fractional: 32000}, lux)
}
