package core

import "math/rand"

// SendReason explains the outcome of a unicast attempt.
type SendReason string

const (
	SendOK               SendReason = "ok"
	SenderUnavailable    SendReason = "sender_unavailable"
	SenderAsleep         SendReason = "sender_asleep"
	ReceiverMissing      SendReason = "receiver_missing"
	ReceiverFailed       SendReason = "receiver_failed"
	ReceiverDead         SendReason = "receiver_dead"
	ReceiverAsleep       SendReason = "receiver_asleep"
	OutOfRange           SendReason = "out_of_range"
	SenderDied           SendReason = "sender_died"
	PacketLost           SendReason = "packet_lost"
	DeliveryReceiverDied SendReason = "delivery_failed_receiver_died"
)

// MessageType identifies control-plane broadcast messages.
type MessageType string

const (
	MsgPOICoverageAd        MessageType = "POI_COVERAGE_ADVERTISEMENT"
	MsgNeighborAnnouncement MessageType = "NEIGHBOR_ANNOUNCEMENT"
)

// BroadcastMessage is a control-plane message delivered to neighbors.
type BroadcastMessage struct {
	Type          MessageType
	CoveredPOIIDs []int
}

// BroadcastHandler is implemented by nodes that react to control-plane
// broadcasts. Receivers are dispatched through this interface rather than
// by inspecting the concrete node type.
type BroadcastHandler interface {
	HandleBroadcast(senderID int, msg BroadcastMessage, round int)
}

// Channel models the lossy wireless medium shared by all sensors.
type Channel struct {
	LossProbability float64
	PerHopDelay     float64
	rng             *rand.Rand
}

// NewChannel creates a channel. rng is the simulation-wide source; the
// channel never seeds its own.
func NewChannel(lossProbability, perHopDelay float64, rng *rand.Rand) *Channel {
	return &Channel{LossProbability: lossProbability, PerHopDelay: perHopDelay, rng: rng}
}

// SendUnicast attempts one hop of packet delivery from sender to the
// sensor with receiverID. Energy accounting is asymmetric on failure:
//
//   - a dead, failed, or sleeping sender aborts for free;
//   - a missing, failed, dead, or asleep receiver still costs the sender
//     the zero-distance transmit overhead, since the sender cannot know
//     the receiver state in advance;
//   - an out-of-range receiver is free, the sender's radio never keys up;
//   - the full distance-dependent cost is paid before the loss roll, so a
//     lost packet still drains the sender.
//
// On success the packet's path, latency, and current hop are updated.
func (c *Channel) SendUnicast(sender *Sensor, receiver *Sensor, receiverID int, pkt *Packet) (bool, SendReason) {
	if sender.State == StateDead || sender.IsFailed {
		return false, SenderUnavailable
	}
	if sender.State == StateSleep {
		return false, SenderAsleep
	}
	if receiver == nil {
		sender.DebitEnergy(TransmitCost(0))
		return false, ReceiverMissing
	}
	if receiver.IsFailed {
		sender.DebitEnergy(TransmitCost(0))
		return false, ReceiverFailed
	}
	if receiver.State == StateDead {
		sender.DebitEnergy(TransmitCost(0))
		return false, ReceiverDead
	}
	if receiver.State == StateSleep {
		sender.DebitEnergy(TransmitCost(0))
		return false, ReceiverAsleep
	}

	dist := sender.DistanceTo(receiver.Pos)
	if dist > sender.CommRange {
		return false, OutOfRange
	}

	sender.DebitEnergy(TransmitCost(dist))
	if sender.State == StateDead {
		return false, SenderDied
	}

	if c.rng.Float64() < c.LossProbability {
		return false, PacketLost
	}

	receiver.DebitEnergy(ReceiveCost())

	// The path and latency reflect the radio transmission even when the
	// receive cost kills the receiver; only the buffer handoff is skipped.
	pkt.RecordHop(sender.ID)
	pkt.RecordHop(receiverID)
	pkt.CurrentHopID = receiverID
	pkt.Latency += c.PerHopDelay

	if receiver.State == StateDead {
		return false, DeliveryReceiverDied
	}
	receiver.Buffer = append(receiver.Buffer, pkt)
	return true, SendOK
}

// Broadcast delivers a control message to every listed neighbor that can
// hear it, returning the number of successful deliveries. The sender pays
// a single transmit cost sized to half the comm range regardless of
// neighbor count; each delivery then rolls loss independently and charges
// the receiver. Neighbors that are failed, dead, or asleep neither pay nor
// hear anything.
func (c *Channel) Broadcast(sender *Sensor, neighbors []*Sensor, msg BroadcastMessage, round int) int {
	if sender.State == StateDead || sender.IsFailed {
		return 0
	}
	sender.DebitEnergy(TransmitCost(sender.CommRange / 2))
	if sender.State == StateDead {
		return 0
	}
	delivered := 0
	for _, nb := range neighbors {
		if nb == nil || nb.IsFailed || nb.State == StateDead || nb.State == StateSleep {
			continue
		}
		if c.rng.Float64() < c.LossProbability {
			continue
		}
		nb.DebitEnergy(ReceiveCost())
		if nb.State == StateDead {
			continue
		}
		var h BroadcastHandler = nb
		h.HandleBroadcast(sender.ID, msg, round)
		delivered++
	}
	return delivered
}
