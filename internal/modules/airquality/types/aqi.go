package types

import "math"

// aqiBand is one row of the US EPA PM2.5 breakpoint table.
type aqiBand struct {
	cLow, cHigh float64
	aqiLow      int
	aqiHigh     int
}

var aqiBands = []aqiBand{
	{0.0, 12.0, 0, 50},
	{12.1, 35.4, 51, 100},
	{35.5, 55.4, 101, 150},
	{55.5, 150.4, 151, 200},
	{150.5, 250.4, 201, 300},
	{250.5, 500.4, 301, 500},
}

// AQIFromPM25 maps a PM2.5 concentration (µg/m³) to the US EPA Air Quality
// Index by linear interpolation within the matching breakpoint band, floored
// to an integer. Concentrations above 500.4 are clamped to the top band.
func AQIFromPM25(pm25 float64) int {
	if pm25 <= 0 {
		return 0
	}
	top := aqiBands[len(aqiBands)-1]
	if pm25 > top.cHigh {
		pm25 = top.cHigh
	}
	for _, b := range aqiBands {
		if pm25 <= b.cHigh {
			frac := (pm25 - b.cLow) / (b.cHigh - b.cLow)
			return int(math.Floor(float64(b.aqiLow) + frac*float64(b.aqiHigh-b.aqiLow)))
		}
	}
	return top.aqiHigh
}

// QualityLabel names the AQI category shown on the dashboard. A nil AQI
// (no pm25 samples in the hour) maps to "Unknown".
func QualityLabel(aqi *int) string {
	switch {
	case aqi == nil:
		return "Unknown"
	case *aqi <= 50:
		return "Good"
	case *aqi <= 100:
		return "Moderate"
	case *aqi <= 150:
		return "Unhealthy"
	default:
		return "Hazardous"
	}
}
