package kettle

// Device-valid temperature range. The firmware refuses anything outside it,
// so commands clamp rather than fail.
const (
	MinTempC = 40.0
	MaxTempC = 100.0
	MinTempF = 104.0
	MaxTempF = 212.0
)

// CelsiusToFahrenheit converts using the 1.8 factor the firmware uses.
func CelsiusToFahrenheit(c float64) float64 {
	return c*1.8 + 32.0
}

// FahrenheitToCelsius is the inverse of CelsiusToFahrenheit.
func FahrenheitToCelsius(f float64) float64 {
	return (f - 32.0) / 1.8
}

// ClampCelsius bounds a target temperature to the device-valid range.
func ClampCelsius(c float64) float64 {
	if c < MinTempC {
		return MinTempC
	}
	if c > MaxTempC {
		return MaxTempC
	}
	return c
}
