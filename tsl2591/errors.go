package tsl2591

import (
	"errors"
	"fmt"
)

// ErrCycleIncomplete is returned by a gated read when the chip has not yet
// completed an integration cycle.
var ErrCycleIncomplete = errors.New("tsl2591: integration cycle incomplete")

// InvalidIDError is returned during construction when the chip at the bus
// address does not identify as a TSL2591.
type InvalidIDError struct {
	// ID is the byte the identity register reported.
	ID byte
}

func (e *InvalidIDError) Error() string {
	return fmt.Sprintf("tsl2591: unexpected device id 0x%02X", e.ID)
}

// SaturationError is returned when either photodiode channel reached the ADC
// ceiling for the current integration time. The raw reading is still carried
// so the caller can use the known-saturated value if it wants to.
type SaturationError struct {
	Data AlsData
}

func (e *SaturationError) Error() string {
	return fmt.Sprintf("tsl2591: adc saturated (visible=%d infrared=%d)",
		e.Data.Visible, e.Data.Infrared)
}
