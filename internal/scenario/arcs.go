package scenario

// BuiltIn returns predefined fault scripts.
func BuiltIn() map[string]Scenario {
	return map[string]Scenario{
		"low-voltage": {
			Name:        "Low Voltage",
			Description: "Battery rail sags below 3.0 V, the core escalates to ERROR; supply recovers and an operator reset brings it back.",
			Steps: []Step{
				{AtTick: 500, Action: ActionSetSupply, Voltage: 2.9, Current: 0.6},
				{AtTick: 1500, Action: ActionSetSupply, Voltage: 3.3, Current: 0.5},
				{AtTick: 1600, Action: ActionReset},
			},
		},
		"link-loss": {
			Name:        "Link Loss",
			Description: "The telemetry link drops for long enough that repeated send failures push the core into ERROR.",
			Steps: []Step{
				{AtTick: 200, Action: ActionFailSink, Count: 10},
				{AtTick: 1200, Action: ActionReset},
			},
		},
		"watchdog-starve": {
			Name:        "Watchdog Starve",
			Description: "The main loop stops feeding the watchdog until it expires.",
			Steps: []Step{
				{AtTick: 100, Action: ActionStarveWatchdog, Count: 6000},
			},
		},
		"sleep-cycle": {
			Name:        "Sleep Cycle",
			Description: "The host requests low-power sleep, then wakes the headset and raises the telemetry rate.",
			Steps: []Step{
				{AtTick: 300, Action: ActionRequestSleep},
				{AtTick: 600, Action: ActionWake},
				{AtTick: 601, Action: ActionSetTelemetryRate, RateHz: 90},
			},
		},
	}
}
