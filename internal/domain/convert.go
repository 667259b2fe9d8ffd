package domain

const (
	kgToLb = 2.2046226218
	inToM  = 0.0254
)

// ConvertWeight converts a weight value between "kg" and "lb".
// Returns v unchanged if from == to or if the units are unrecognised.
func ConvertWeight(v float64, from, to string) float64 {
	if from == to {
		return v
	}
	if from == "kg" && to == "lb" {
		return v * kgToLb
	}
	if from == "lb" && to == "kg" {
		return v / kgToLb
	}
	return v
}

// HeightToMeters converts a height in "m", "cm" or "in" to meters.
// The second result is false for an unknown unit.
func HeightToMeters(v float64, unit string) (float64, bool) {
	switch unit {
	case "m":
		return v, true
	case "cm":
		return v / 100, true
	case "in":
		return v * inToM, true
	}
	return 0, false
}

// ValidWeightUnit reports whether unit is a supported weight unit.
func ValidWeightUnit(unit string) bool {
	return unit == "kg" || unit == "lb"
}
