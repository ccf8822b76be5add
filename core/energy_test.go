package core

import (
	"math"
	"testing"
)

func TestTransmitCostZeroDistanceIsElectronicsOnly(t *testing.T) {
	want := ElecEnergyPerBit * PacketSizeBits
	if got := TransmitCost(0); got != want {
		t.Fatalf("TransmitCost(0) = %g, want %g", got, want)
	}
}

func TestTransmitCostGrowsQuadratically(t *testing.T) {
	base := TransmitCost(0)
	at10 := TransmitCost(10)
	at20 := TransmitCost(20)

	if at10 <= base {
		t.Fatalf("TransmitCost(10) = %g, want > TransmitCost(0) = %g", at10, base)
	}
	// Amplifier term scales with distance^2, so doubling the distance
	// quadruples the amplifier component.
	amp10 := at10 - base
	amp20 := at20 - base
	if math.Abs(amp20-4*amp10) > 1e-18 {
		t.Fatalf("amplifier term at 20m = %g, want 4x term at 10m = %g", amp20, 4*amp10)
	}
}

func TestReceiveCostMatchesElectronicsTerm(t *testing.T) {
	if got, want := ReceiveCost(), ElecEnergyPerBit*PacketSizeBits; got != want {
		t.Fatalf("ReceiveCost() = %g, want %g", got, want)
	}
}

func TestStateCostOrdering(t *testing.T) {
	if !(SleepCost < ProcessingCost && ProcessingCost < MonitoringCost) {
		t.Fatalf("state costs out of order: sleep %g, processing %g, monitoring %g",
			SleepCost, ProcessingCost, MonitoringCost)
	}
}
