package utils

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
)

// MemorySize represents a memory size in bytes
type MemorySize int64

const (
	Byte MemorySize = 1
	KB   MemorySize = 1024 * Byte
	MB   MemorySize = 1024 * KB
	GB   MemorySize = 1024 * MB
	TB   MemorySize = 1024 * GB
)

// String returns a human-readable representation of the memory size
func (m MemorySize) String() string {
	if m <= 0 {
		return "0B"
	}

	formatValue := func(val float64, unit string) string {
		if val == float64(int64(val)) {
			return fmt.Sprintf("%.0f%s", val, unit)
		}
		return fmt.Sprintf("%.2f%s", val, unit)
	}

	switch {
	case m >= TB:
		return formatValue(float64(m)/float64(TB), "T")
	case m >= GB:
		return formatValue(float64(m)/float64(GB), "G")
	case m >= MB:
		return formatValue(float64(m)/float64(MB), "M")
	case m >= KB:
		return formatValue(float64(m)/float64(KB), "K")
	default:
		return fmt.Sprintf("%dB", m)
	}
}

func (m MemorySize) Bytes() int64 {
	return int64(m)
}

// ParseMemorySize parses a memory size string like "9M", "2G", "1024K"
func ParseMemorySize(s string) (MemorySize, error) {
	s = strings.TrimSpace(s)
	if len(s) == 0 {
		return 0, fmt.Errorf("empty memory size string")
	}

	multiplier := Byte
	valueStr := s[:len(s)-1]
	switch strings.ToUpper(s[len(s)-1:]) {
	case "T":
		multiplier = TB
	case "G":
		multiplier = GB
	case "M":
		multiplier = MB
	case "K":
		multiplier = KB
	case "B":
	default:
		// No unit, assume bytes
		valueStr = s
	}

	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil || value < 0 {
		return 0, fmt.Errorf("invalid memory size: %s", s)
	}
	return MemorySize(value * float64(multiplier)), nil
}

// MarshalJSON writes the exact byte count so stored sizes survive a round trip.
func (m MemorySize) MarshalJSON() ([]byte, error) {
	return strconv.AppendInt(nil, int64(m), 10), nil
}

// UnmarshalJSON accepts a byte count or a string like "2M".
func (m *MemorySize) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] != '"' {
		n, err := strconv.ParseInt(string(bytes.TrimSpace(data)), 10, 64)
		if err != nil {
			return fmt.Errorf("invalid memory size: %s", data)
		}
		*m = MemorySize(n)
		return nil
	}
	size, err := ParseMemorySize(strings.Trim(string(data), `"`))
	if err != nil {
		return err
	}
	*m = size
	return nil
}
