package core

// Payload is a raw binary signaling message.
type Payload []byte

// SignalConnection abstracts for a system messaging transport
// Owned by the adapter; the adapter must Close() it.
type SignalConnection interface {
	TrySend(Payload) error
	Close()
}
