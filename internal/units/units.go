// Package units provides shared constants and validation for magnetic
// field units
package units

// Unit constants
const (
	NanoTesla  = "nt"
	MicroTesla = "ut"
	MilliGauss = "mg"
)

// ValidUnits contains all valid unit values
var ValidUnits = []string{NanoTesla, MicroTesla, MilliGauss}

// IsValid checks if the given unit is in the list of valid units
func IsValid(unit string) bool {
	for _, validUnit := range ValidUnits {
		if unit == validUnit {
			return true
		}
	}
	return false
}

// GetValidUnitsString returns a comma-separated string of valid units for error messages
func GetValidUnitsString() string {
	return "nt, ut, mg"
}

// ConvertField converts a field value from nanotesla to the target
// units. The sensor reports and the database stores values in nT.
// 1 mG = 100 nT, 1 uT = 1000 nT.
func ConvertField(valueNT float64, targetUnits string) float64 {
	switch targetUnits {
	case MilliGauss:
		return valueNT / 100
	case MicroTesla:
		return valueNT / 1000
	case NanoTesla:
		return valueNT
	default:
		return valueNT // default to nT if unknown unit
	}
}
