// Package format turns raw vendor values into display values.
//
// [Formatter.Format] applies an ordered list of rules, first match wins:
// byte sizes, timestamps, status codes, percentages, temperatures, data
// rates, MHz strings and finally generic numeric coercion. Formatting never
// panics out of the package; a failure yields a zero value.
package format

import (
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cast"
)

// TimestampLayout is the local-time layout used for epoch values.
const TimestampLayout = "2006-01-02 15:04:05"

const (
	timestampMissing = "N/A"
	timestampInvalid = "Invalid timestamp"
)

var (
	byteUnits = []string{"B", "KB", "MB", "GB", "TB", "PB"}
	// B/s is absent: raw byte rates stay unscaled for DerivedRateScale.
	rateUnits = []string{"KB/s", "MB/s", "GB/s", "TB/s", "PB/s"}

	// scaled rate units as the vendor web UI shows them
	humanRateUnits = []string{"B/s", "kB/s", "MB/s", "GB/s", "TB/s"}
)

// Field describes what is being formatted.
type Field struct {
	Key      string
	Name     string
	Unit     string
	Decimals int
}

// Reading is a formatted value with the unit it is expressed in.
// Unit differs from the declared unit when byte sizes or rates are rescaled.
type Reading struct {
	Value any    `json:"value"`
	Unit  string `json:"unit,omitempty"`
}

// Formatter formats raw values. The zero value rounds temperatures to
// whole degrees.
type Formatter struct {
	// TemperatureDecimals is the rounding precision for °C values.
	TemperatureDecimals int

	// Logger receives recovered formatting panics. Nil disables logging.
	Logger *slog.Logger
}

// Format converts raw into a display reading for f.
func (fm Formatter) Format(raw any, f Field) (r Reading) {
	defer func() {
		if p := recover(); p != nil {
			if fm.Logger != nil {
				fm.Logger.Warn("format panic", "key", f.Key, "panic", fmt.Sprintf("%v", p))
			}
			r = Reading{Value: 0, Unit: f.Unit}
		}
	}()

	switch {
	case indexOf(byteUnits, f.Unit) >= 0:
		v, unit, ok := ScaleBytes(raw, f.Unit, f.Decimals)
		if !ok {
			return Reading{Value: nil, Unit: f.Unit}
		}
		return Reading{Value: v, Unit: unit}

	case strings.Contains(f.Name, "Timestamp"):
		return Reading{Value: Timestamp(raw), Unit: f.Unit}

	case statusTableFor(f.Key) != nil:
		return Reading{Value: StatusLabel(raw, statusTableFor(f.Key)), Unit: f.Unit}

	case f.Unit == "%":
		return Reading{Value: roundOr(raw, 1), Unit: f.Unit}

	case f.Unit == "°C":
		return Reading{Value: roundOr(raw, fm.TemperatureDecimals), Unit: f.Unit}

	case indexOf(rateUnits, f.Unit) >= 0:
		base := strings.TrimSuffix(f.Unit, "/s")
		v, unit, ok := ScaleBytes(raw, base, f.Decimals)
		if !ok {
			return Reading{Value: nil, Unit: f.Unit}
		}
		return Reading{Value: v, Unit: unit + "/s"}

	case f.Unit == "MHz":
		return Reading{Value: Megahertz(raw), Unit: f.Unit}

	default:
		return Reading{Value: Coerce(raw, f.Decimals), Unit: f.Unit}
	}
}

// ScaleBytes interprets raw as a size in unit, converts it to bytes and
// rescales to the largest unit that keeps the value below 1024. The value is
// rounded half-up to decimals; with zero decimals it is returned as int64.
func ScaleBytes(raw any, unit string, decimals int) (any, string, bool) {
	exp := indexOf(byteUnits, unit)
	if raw == nil || exp < 0 {
		return nil, unit, false
	}

	size, err := toFloat(raw)
	if err != nil {
		return nil, unit, false
	}

	size *= math.Pow(1024, float64(exp))
	idx := 0
	for idx < len(byteUnits)-1 && size >= 1024 {
		size /= 1024
		idx++
	}

	return rounded(size, decimals), byteUnits[idx], true
}

// ScaleRate renders a bytes-per-second value as "N unit", e.g. "316 MB/s",
// rounding half-up to an integer.
func ScaleRate(raw any) (string, bool) {
	if raw == nil {
		return "", false
	}
	v, err := toFloat(raw)
	if err != nil {
		return "", false
	}

	idx := 0
	for v >= 1024 && idx < len(humanRateUnits)-1 {
		v /= 1024
		idx++
	}
	return fmt.Sprintf("%d %s", int64(RoundHalfUp(v, 0)), humanRateUnits[idx]), true
}

// Timestamp renders epoch seconds as local time.
func Timestamp(raw any) string {
	if raw == nil {
		return timestampMissing
	}
	secs, err := toFloat(raw)
	if err != nil || math.IsNaN(secs) || math.IsInf(secs, 0) {
		return timestampInvalid
	}
	whole, frac := math.Modf(secs)
	return time.Unix(int64(whole), int64(frac*1e9)).Local().Format(TimestampLayout)
}

// Megahertz parses strings like "4800 MHz" into an int64. Any other input is
// returned unchanged.
func Megahertz(raw any) any {
	s, ok := raw.(string)
	if !ok || !strings.Contains(s, "MHz") {
		return raw
	}
	cleaned := strings.TrimSpace(strings.ReplaceAll(s, "MHz", ""))
	if n, err := strconv.ParseInt(cleaned, 10, 64); err == nil && n >= 0 && !strings.HasPrefix(cleaned, "+") {
		return n
	}
	return raw
}

// Coerce converts numeric strings to numbers: int64 when there is no decimal
// separator, otherwise a float64 rounded to decimals. A comma is accepted as
// decimal separator. Strings that are not numbers and non-string values are
// returned unchanged.
func Coerce(raw any, decimals int) any {
	s, ok := raw.(string)
	if !ok {
		return raw
	}

	trimmed := strings.ReplaceAll(strings.TrimSpace(s), ",", ".")
	if trimmed == "" {
		return trimmed
	}

	if strings.Contains(trimmed, ".") {
		f, err := strconv.ParseFloat(trimmed, 64)
		if err != nil {
			return s
		}
		return RoundHalfUp(f, decimals)
	}

	n, err := strconv.ParseInt(trimmed, 10, 64)
	if err != nil {
		return s
	}
	return n
}

// RoundHalfUp rounds v to decimals places, halves away from zero.
func RoundHalfUp(v float64, decimals int) float64 {
	if decimals < 0 {
		decimals = 0
	}
	p := math.Pow10(decimals)
	// nudge past binary representation error so 1.005 rounds to 1.01
	return math.Round(v*p+math.Copysign(1e-9, v)) / p
}

// rounded returns int64 for zero decimals and float64 otherwise.
func rounded(v float64, decimals int) any {
	if decimals <= 0 {
		return int64(RoundHalfUp(v, 0))
	}
	return RoundHalfUp(v, decimals)
}

// roundOr rounds numeric raw values; unparsable input yields zero.
func roundOr(raw any, decimals int) any {
	if raw == nil {
		return rounded(0, decimals)
	}
	v, err := toFloat(raw)
	if err != nil {
		return rounded(0, decimals)
	}
	return rounded(v, decimals)
}

// toFloat accepts numbers, numeric strings (comma or dot separator) and bools.
func toFloat(raw any) (float64, error) {
	if s, ok := raw.(string); ok {
		raw = strings.ReplaceAll(strings.TrimSpace(s), ",", ".")
	}
	return cast.ToFloat64E(raw)
}

func indexOf(list []string, v string) int {
	for i, s := range list {
		if s == v {
			return i
		}
	}
	return -1
}
