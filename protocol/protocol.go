// Package protocol implements the robot's telemetry link: VLQ encoded
// messages carried in CRC checked frames over a byte stream.
package protocol

// Version is the telemetry protocol version reported by the host tools.
const Version = "0.1.0"

// Frame layout: [len][seq][payload...][crc hi][crc lo][sync]
const (
	MessageHeaderSize  = 2
	MessageTrailerSize = 3
	MessageLengthMin   = MessageHeaderSize + MessageTrailerSize
	MessageLengthMax   = 64
	MessagePayloadMax  = MessageLengthMax - MessageLengthMin
	MessagePositionLen = 0
	MessagePositionSeq = 1
	MessageTrailerCRC  = 3
	MessageTrailerSync = 1
	MessageValueSync   = 0x7E
	MessageDest        = 0x10

	// Message sequence masks
	MessageSeqMask = 0x0F

	// ScratchMax is the scratch encoder's capacity.
	ScratchMax = 512
)

// Message is one received frame.
type Message struct {
	Sequence uint8
	Payload  []byte // Frame data without header/trailer
}

// NextSequence returns the sequence byte that follows seq.
func NextSequence(seq uint8) uint8 {
	return ((seq + 1) & MessageSeqMask) | MessageDest
}
