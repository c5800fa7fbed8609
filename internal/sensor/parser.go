package sensor

import (
	"strconv"
	"strings"
	"time"

	"airmon-server/internal/modules/airquality/types"
)

// ParseLine decodes one line of the sensor wire format into a Reading.
//
// The device emits comma-separated KEY:VALUE tokens in arbitrary order, e.g.
// "PM1:10.2,PM2.5:25.1,PM10:30.5,TEMP:22.5,HUM:45.0". Keys are matched
// case-insensitively and known aliases are accepted. Tokens with values that
// do not parse as decimal numbers are dropped individually; unknown keys are
// ignored. A line yields a Reading only when pm25, temperature and humidity
// were all extracted; anything else (incomplete sample, noise, empty line)
// returns ok=false. The timestamp is capture time, the device does not send
// one.
func ParseLine(line string, now time.Time) (types.Reading, bool) {
	var (
		pm1, pm10       *float64
		pm25, temp, hum *float64
	)

	for _, token := range strings.Split(line, ",") {
		key, rawVal, found := strings.Cut(token, ":")
		if !found {
			continue
		}
		val, err := strconv.ParseFloat(strings.TrimSpace(rawVal), 64)
		if err != nil {
			continue
		}
		v := val
		switch strings.ToUpper(strings.TrimSpace(key)) {
		case "PM1", "PM1.0":
			pm1 = &v
		case "PM25", "PM2.5":
			pm25 = &v
		case "PM10":
			pm10 = &v
		case "TEMP", "TEMPERATURE":
			temp = &v
		case "HUM", "HUMIDITY":
			hum = &v
		}
	}

	if pm25 == nil || temp == nil || hum == nil {
		return types.Reading{}, false
	}

	return types.Reading{
		Time:        now,
		PM1:         pm1,
		PM25:        *pm25,
		PM10:        pm10,
		Temperature: *temp,
		Humidity:    *hum,
	}, true
}
