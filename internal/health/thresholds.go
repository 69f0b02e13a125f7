package health

import "github.com/Resanso/minerva-ericsson/apps/scadasim/internal/registry"

// Status is the health classification of a sensor or device.
type Status string

const (
	Normal   Status = "normal"
	Warning  Status = "warning"
	Critical Status = "critical"
)

// Severity orders statuses so callers can compare or export them as gauges.
func (s Status) Severity() int {
	switch s {
	case Critical:
		return 2
	case Warning:
		return 1
	default:
		return 0
	}
}

// Classify applies the per-type thresholds to a single value. Critical is checked first.
func Classify(typ registry.SensorType, value float64) Status {
	switch typ {
	case registry.Temperature:
		return above(value, 90, 75)
	case registry.Pressure:
		return above(value, 95, 80)
	case registry.Vibration:
		return above(value, 8, 5)
	case registry.Flow:
		// low flow is the failure mode
		switch {
		case value < 10:
			return Critical
		case value < 20:
			return Warning
		}
	}
	return Normal
}

func above(value, critical, warning float64) Status {
	switch {
	case value > critical:
		return Critical
	case value > warning:
		return Warning
	}
	return Normal
}
