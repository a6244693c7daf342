package vehicle

import (
	"regexp"
	"strings"
)

// vinPattern is the valid VIN format: 17 uppercase alphanumerics
// excluding I, O and Q (easily confused with 1 and 0).
var vinPattern = regexp.MustCompile(`^[A-HJ-NPR-Z0-9]{17}$`)

// NormalizeVIN uppercases a VIN and validates its format.
// Returns the normalised VIN, or ErrInvalidVIN.
func NormalizeVIN(vin string) (string, error) {
	vin = strings.ToUpper(strings.TrimSpace(vin))
	if !vinPattern.MatchString(vin) {
		return "", ErrInvalidVIN
	}
	return vin, nil
}

// IsValidVIN reports whether the VIN (after uppercasing) is well-formed.
func IsValidVIN(vin string) bool {
	_, err := NormalizeVIN(vin)
	return err == nil
}

// ValidStatus reports whether a component status value is in range.
// Status is a normalised level: 0.0 fully off/closed, 1.0 fully on/open.
func ValidStatus(status float64) bool {
	return status >= 0 && status <= 1
}
