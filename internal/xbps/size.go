package xbps

import (
	"math"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
)

// ParseBytesFromField parses a size field such as "1024", "12 MB",
// "1,234 KiB" or "3.5GiB" into a byte count. Bare K/M/G/T units are binary
// multiples, matching what xbps prints.
func ParseBytesFromField(text string) (uint64, bool) {
	trimmed := strings.TrimRight(strings.TrimSpace(text), ",.")
	if trimmed == "" {
		return 0, false
	}
	cleaned := strings.ReplaceAll(trimmed, ",", "")

	fields := strings.Fields(cleaned)
	if len(fields) > 0 {
		if n, err := strconv.ParseUint(fields[0], 10, 64); err == nil {
			if len(fields) > 1 {
				return scale(float64(n), fields[1]), true
			}
			return n, true
		}
		if f, err := strconv.ParseFloat(fields[0], 64); err == nil && len(fields) > 1 {
			return scale(f, fields[1]), true
		}
	}

	// Number and unit glued together, e.g. "3.5GiB".
	var number, unit strings.Builder
	for _, r := range cleaned {
		switch {
		case (r >= '0' && r <= '9') || r == '.':
			number.WriteRune(r)
		case r != ' ' && r != '\t':
			unit.WriteRune(r)
		}
	}
	if number.Len() == 0 {
		return 0, false
	}
	if unit.Len() == 0 {
		n, err := strconv.ParseUint(number.String(), 10, 64)
		return n, err == nil
	}
	f, err := strconv.ParseFloat(number.String(), 64)
	if err != nil {
		return 0, false
	}
	return scale(f, unit.String()), true
}

// ParseBytes parses a plain integer at the start of text, ignoring a
// trailing comma or period.
func ParseBytes(text string) (uint64, bool) {
	first := text
	if fields := strings.Fields(text); len(fields) > 0 {
		first = fields[0]
	}
	first = strings.TrimRight(strings.TrimSpace(first), ",.")
	n, err := strconv.ParseUint(first, 10, 64)
	return n, err == nil
}

func scale(value float64, unit string) uint64 {
	return uint64(math.Round(value * unitMultiplier(unit)))
}

func unitMultiplier(unit string) float64 {
	cleaned := strings.ToLower(strings.TrimFunc(unit, func(r rune) bool {
		return !(r >= 'a' && r <= 'z') && !(r >= 'A' && r <= 'Z')
	}))
	switch cleaned {
	case "b", "byte", "bytes":
		return 1
	case "k", "kb", "kib", "ki":
		return 1 << 10
	case "m", "mb", "mib", "mi":
		return 1 << 20
	case "g", "gb", "gib", "gi":
		return 1 << 30
	case "t", "tb", "tib", "ti":
		return 1 << 40
	}
	return 1
}

// FormatSize renders an installed size using binary units (KiB, MiB, ...).
func FormatSize(bytes uint64) string {
	return humanize.IBytes(bytes)
}

// FormatDownloadSize renders a download size using decimal units
// (kB, MB, ...), which is how repositories advertise package files.
func FormatDownloadSize(bytes uint64) string {
	return humanize.Bytes(bytes)
}
