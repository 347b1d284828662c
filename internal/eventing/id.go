package eventing

import (
	"crypto/rand"
	"encoding/hex"
)

// NewEventID returns a random identifier for envelopes and outbox rows.
// Hyphenated UUIDv4 text form, no external dependency.
func NewEventID() string {
	var buf [16]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return hex.EncodeToString(buf[:])
	}
	buf[6] = (buf[6] & 0x0f) | 0x40
	buf[8] = (buf[8] & 0x3f) | 0x80
	enc := hex.EncodeToString(buf[:])
	return enc[:8] + "-" + enc[8:12] + "-" + enc[12:16] + "-" + enc[16:20] + "-" + enc[20:]
}

func newEventID() string {
	return NewEventID()
}
