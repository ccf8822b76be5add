package core

// Energy cost constants for the first-order radio model. Fixed-rate state
// costs are per unit of simulated time; transmission costs are per packet.
const (
	SleepCost      = 0.001
	MonitoringCost = 0.05
	ProcessingCost = 0.02

	// Radio model parameters.
	ElecEnergyPerBit = 50e-9   // transmitter/receiver electronics, J/bit
	AmpEnergyPerBit  = 100e-12 // transmit amplifier, J/bit/m^2

	PathLossExponent = 2
	PacketSizeBits   = 512
)

// TransmitCost returns the energy cost of transmitting one packet over the
// given distance: the fixed electronics term plus an amplifier term that
// scales with distance^2. At distance 0 only the electronics term remains.
func TransmitCost(distance float64) float64 {
	if distance == 0 {
		return ElecEnergyPerBit * PacketSizeBits
	}
	return ElecEnergyPerBit*PacketSizeBits +
		AmpEnergyPerBit*PacketSizeBits*distance*distance
}

// ReceiveCost returns the energy cost of receiving one packet. Reception is
// distance-independent: only the receiver electronics draw power.
func ReceiveCost() float64 {
	return ElecEnergyPerBit * PacketSizeBits
}
