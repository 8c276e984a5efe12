// Package wire defines the JSON envelope exchanged between a livewire
// client and server, and the reserved protocol frame types.
package wire

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Reserved envelope types. These are consumed by the protocol layer and
// must never be used as application message types.
const (
	TypePing        = "PING"
	TypePong        = "PONG"
	TypeSubscribe   = "SUBSCRIBE"
	TypeUnsubscribe = "UNSUBSCRIBE"
)

// Envelope is the unit exchanged over the wire.
type Envelope struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp int64           `json:"timestamp"` // epoch milliseconds
}

// ChannelPayload is the payload of SUBSCRIBE and UNSUBSCRIBE frames.
type ChannelPayload struct {
	Channel string `json:"channel"`
}

// ErrEmptyType is returned when an envelope carries no type tag.
var ErrEmptyType = errors.New("wire: envelope type must not be empty")

// IsReserved reports whether typ is one of the protocol-internal types.
func IsReserved(typ string) bool {
	switch typ {
	case TypePing, TypePong, TypeSubscribe, TypeUnsubscribe:
		return true
	}
	return false
}

// New creates an envelope with a freshly generated id and the current
// timestamp. payload may be nil for frames without a body.
func New(typ string, payload interface{}) (*Envelope, error) {
	if typ == "" {
		return nil, ErrEmptyType
	}
	var raw json.RawMessage
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("wire: marshal payload for %q: %w", typ, err)
		}
		raw = b
	}
	return &Envelope{
		ID:        uuid.NewString(),
		Type:      typ,
		Payload:   raw,
		Timestamp: time.Now().UnixMilli(),
	}, nil
}

// Decode parses a raw frame into an Envelope.
func Decode(data []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("wire: decode envelope: %w", err)
	}
	if env.Type == "" {
		return nil, ErrEmptyType
	}
	return &env, nil
}

// Encode serializes the envelope for transmission.
func (e *Envelope) Encode() ([]byte, error) {
	if e.Type == "" {
		return nil, ErrEmptyType
	}
	return json.Marshal(e)
}

// DecodePayload unmarshals the envelope payload into v, which must be a
// pointer. A null or absent payload leaves v untouched.
func (e *Envelope) DecodePayload(v interface{}) error {
	if len(e.Payload) == 0 || string(e.Payload) == "null" {
		return nil
	}
	return json.Unmarshal(e.Payload, v)
}
