package climate

import "math"

// AbsoluteHumidity converts relative humidity (%RH) at temperature tempC (°C)
// to absolute humidity in grams of water vapour per cubic metre of air.
//
// It uses the Magnus-form approximation:
//
//	AH = 6.112 × e^(17.67·T / (243.5+T)) × RH × 2.1674 / (273.15+T)
//
// Accurate for roughly -40 °C to 50 °C. Inputs must be finite, non-NaN and
// tempC must be above absolute zero; no checking is done here.
func AbsoluteHumidity(rh, tempC float64) float64 {
	return (6.112 * math.Exp((17.67*tempC)/(243.5+tempC)) * rh * 2.1674) / (273.15 + tempC)
}
