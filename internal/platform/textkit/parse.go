package textkit

import (
	"fmt"
	"strconv"
	"strings"
)

// Temperature and duration sanity bounds for parsed answers.
const (
	TemperatureMin = 30.0
	TemperatureMax = 45.0
	DurationMinDay = 0
	DurationMaxDay = 3650
)

var yesWords = map[string]bool{"yes": true, "y": true, "oui": true, "o": true, "true": true, "1": true}
var noWords = map[string]bool{"no": true, "n": true, "non": true, "false": true, "0": true}

// ParseYesNo canonicalizes a free-form yes/no answer to "yes" or "no".
// French forms are accepted alongside English ones.
func ParseYesNo(s string) (string, error) {
	w := Normalize(s)
	if yesWords[w] {
		return "yes", nil
	}
	if noWords[w] {
		return "no", nil
	}
	return "", fmt.Errorf("not a yes/no answer: %q", s)
}

// ParseNumber parses a decimal answer, accepting a comma as the
// decimal separator.
func ParseNumber(s string) (float64, error) {
	w := strings.TrimSpace(strings.ReplaceAll(s, ",", "."))
	v, err := strconv.ParseFloat(w, 64)
	if err != nil {
		return 0, fmt.Errorf("not a number: %q", s)
	}
	return v, nil
}

// ParseTemperature parses a body temperature in Celsius and rejects
// values outside the physiological sanity range.
func ParseTemperature(s string) (float64, error) {
	v, err := ParseNumber(s)
	if err != nil {
		return 0, err
	}
	if v < TemperatureMin || v > TemperatureMax {
		return 0, fmt.Errorf("temperature out of range: %g", v)
	}
	return v, nil
}

// ParseDurationDays parses a whole-day duration answer and bounds it
// to [0, 3650].
func ParseDurationDays(s string) (int, error) {
	v, err := ParseNumber(s)
	if err != nil {
		return 0, err
	}
	d := int(v)
	if float64(d) != v {
		return 0, fmt.Errorf("duration must be whole days: %q", s)
	}
	if d < DurationMinDay || d > DurationMaxDay {
		return 0, fmt.Errorf("duration out of range: %d", d)
	}
	return d, nil
}
