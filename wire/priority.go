package wire

// PriorityClass orders message types for scheduling and gossip
// dissemination, highest priority first.
type PriorityClass uint8

const (
	PriorityControlPing PriorityClass = iota
	PriorityControlPong
	PriorityControlAck
	PriorityVoice
	PriorityText
	PriorityFileChunk
	PriorityFileMetadata
)

var priorityNames = map[PriorityClass]string{
	PriorityControlPing:  "CONTROL_PING",
	PriorityControlPong:  "CONTROL_PONG",
	PriorityControlAck:   "CONTROL_ACK",
	PriorityVoice:        "VOICE",
	PriorityText:         "TEXT",
	PriorityFileChunk:    "FILE_CHUNK",
	PriorityFileMetadata: "FILE_METADATA",
}

func (p PriorityClass) String() string {
	if name, ok := priorityNames[p]; ok {
		return name
	}
	return "UNKNOWN"
}

// Higher reports whether p outranks other (lower numeric value wins).
func (p PriorityClass) Higher(other PriorityClass) bool {
	return p < other
}

// PriorityForType maps a wire message Type to its scheduling/gossip
// priority class. Types outside the explicitly ranked set (DHT RPCs,
// rendezvous, session presence, peer discovery/introduction, gossip
// digest exchange) fall back to PriorityText, the baseline
// application-data class.
func PriorityForType(t Type) PriorityClass {
	switch t {
	case TypeControlPing:
		return PriorityControlPing
	case TypeControlPong:
		return PriorityControlPong
	case TypeControlAck:
		return PriorityControlAck
	case TypeVoice:
		return PriorityVoice
	case TypeFileChunk:
		return PriorityFileChunk
	case TypeFileMetadata:
		return PriorityFileMetadata
	default:
		return PriorityText
	}
}
