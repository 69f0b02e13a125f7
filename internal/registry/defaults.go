package registry

// DefaultDefinitions returns the reference plant: six sensors across a pump, a vessel and a
// flow line.
func DefaultDefinitions() []Definition {
	return []Definition{
		// Pump
		NewDefinition("pump_001_temp", Temperature, "pump_001", 65.0, 15.0, "celsius", 20.0, 120.0, 0.1),
		NewDefinition("pump_001_vibration", Vibration, "pump_001", 3.0, 2.0, "mm/s", 0.0, 15.0, 0.05),

		// Vessel
		NewDefinition("vessel_001_pressure", Pressure, "vessel_001", 75.0, 10.0, "psi", 0.0, 150.0, 0.2),
		NewDefinition("vessel_001_temp", Temperature, "vessel_001", 80.0, 12.0, "celsius", 20.0, 150.0, 0.15),

		// Flow line
		NewDefinition("flow_001_rate", Flow, "flow_001", 45.0, 20.0, "l/min", 0.0, 100.0, 0.3),
		NewDefinition("flow_001_temp", Temperature, "flow_001", 55.0, 8.0, "celsius", 20.0, 100.0, 0.1),
	}
}

// Default returns the compiled-in reference registry.
func Default() *Registry {
	r, err := New(DefaultDefinitions())
	if err != nil {
		panic(err)
	}
	return r
}

// NewDefinition is a positional helper for building definitions in code.
func NewDefinition(id string, typ SensorType, device string, base, variance float64, unit string, min, max, driftRate float64) Definition {
	return Definition{
		ID:        id,
		Type:      typ,
		DeviceID:  device,
		BaseValue: base,
		Variance:  variance,
		Unit:      unit,
		MinValue:  min,
		MaxValue:  max,
		DriftRate: driftRate,
	}
}
