package domain

// BusState is the process-wide mix state shared by every sink pair.
// Values are replaced as a whole, never mutated in place.
type BusState struct {
	MonitorBusVolume   float32 `json:"monitor_bus_volume"`
	BroadcastBusVolume float32 `json:"broadcast_bus_volume"`
	MonitorBusMuted    bool    `json:"monitor_bus_muted"`
	BroadcastBusMuted  bool    `json:"broadcast_bus_muted"`
	DualRoutingEnabled bool    `json:"dual_routing_enabled"`
	CompressionEnabled bool    `json:"compression_enabled"`
	EQEnabled          bool    `json:"eq_enabled"`
	ReverbEnabled      bool    `json:"reverb_enabled"`
	ReverbAmount       float32 `json:"reverb_amount"`
}

// DefaultBusState mirrors the defaults of the desktop client.
func DefaultBusState() BusState {
	return BusState{
		MonitorBusVolume:   1,
		BroadcastBusVolume: 1,
		DualRoutingEnabled: true,
		CompressionEnabled: true,
		ReverbAmount:       0.2,
	}
}
