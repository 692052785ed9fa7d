package tsl2591

// AlsData is one raw readout of the two photodiode channels.
type AlsData struct {
	Visible  uint16 // channel 0: full spectrum (visible + IR)
	Infrared uint16 // channel 1: IR only
}

// Lux is an illuminance value held as fixed point, so the conversion works
// on targets without an FPU. The real value is Integer + Fractional/1_000_000.
type Lux struct {
	Integer    int32
	Fractional int32 // millionths
}

// Float64 returns the illuminance as a float, for display and storage.
func (l Lux) Float64() float64 {
	return float64(l.Integer) + float64(l.Fractional)/1_000_000
}

// ComputeLux converts a raw channel readout into illuminance using the
// datasheet formula, scaled by 1_000_000 to stay in integer arithmetic.
// Intermediates are products of three up-to-20-bit quantities, so they are
// carried in int64.
func ComputeLux(data AlsData, gainMultiplier, integrationMS uint16) Lux {
	cpl := int64(integrationMS) * int64(gainMultiplier) * 1_000_000

	var strength int64
	if data.Visible > 0 {
		visible := int64(data.Visible)
		infrared := int64(data.Infrared)
		strength = (visible - infrared) *
			(1_000_000 - infrared*1_000_000/visible) *
			LuxDF
	}

	return Lux{
		Integer:    int32(strength / cpl),
		Fractional: int32(strength % cpl * 1_000_000 / cpl),
	}
}
