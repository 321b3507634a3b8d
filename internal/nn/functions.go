package nn

// SaturationWithSpread clamps value to [-spread, spread]. A negative spread is
// read as its magnitude.
func SaturationWithSpread(value, spread float64) float64 {
	if spread < 0 {
		spread = -spread
	}
	switch {
	case value > spread:
		return spread
	case value < -spread:
		return -spread
	default:
		return value
	}
}
