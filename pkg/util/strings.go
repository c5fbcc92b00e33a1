package util

import (
	"strconv"
	"strings"
)

// ParseFloat parses a numeric cell. Empty cells, "." and "NA" are reported
// as missing.
func ParseFloat(s string) (v float64, ok bool, err error) {
	s = strings.TrimSpace(s)
	switch strings.ToUpper(s) {
	case "", ".", "NA", "NAN":
		return 0, false, nil
	}
	v, err = strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false, err
	}
	return v, true, nil
}
