package protocol

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"
)

// MaxFrameSize bounds a single encoded envelope.
const MaxFrameSize = 1 << 20

// Envelope is the unit every transport moves between peers.
type Envelope struct {
	ID      uuid.UUID       `json:"id"`
	Kind    MessageKind     `json:"kind"`
	From    PeerID          `json:"from"`
	Target  Target          `json:"target"`
	Object  ObjectID        `json:"object,omitempty"`
	Method  MethodID        `json:"method,omitempty"`
	Field   string          `json:"field,omitempty"`
	Seq     uint64          `json:"seq,omitempty"`
	SentAt  int64           `json:"sent_at,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// NewEnvelope stamps a fresh id on an envelope of the given kind.
func NewEnvelope(kind MessageKind, from PeerID, target Target) *Envelope {
	return &Envelope{
		ID:     uuid.New(),
		Kind:   kind,
		From:   from,
		Target: target,
	}
}

// WithPayload marshals v into the envelope payload.
func (e *Envelope) WithPayload(v any) (*Envelope, error) {
	if v == nil {
		e.Payload = nil
		return e, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, NewProtocolError(ErrorCodeSerializationFailed, "marshal payload", err)
	}
	e.Payload = data
	return e, nil
}

// Decode unmarshals the payload into v.
func (e *Envelope) Decode(v any) error {
	if len(e.Payload) == 0 {
		return ErrEmptyPayload
	}
	if err := json.Unmarshal(e.Payload, v); err != nil {
		return NewProtocolError(ErrorCodeDeserializationFailed, "unmarshal payload", err)
	}
	return nil
}

// Ping builds a round trip probe stamped with the local wall clock.
func Ping(from PeerID, target Target) *Envelope {
	env := NewEnvelope(KindPing, from, target)
	env.SentAt = time.Now().UnixNano()
	return env
}

// Pong answers a ping, echoing its timestamp.
func Pong(from PeerID, ping *Envelope) *Envelope {
	env := NewEnvelope(KindPong, from, Peer(ping.From))
	env.SentAt = ping.SentAt
	return env
}

// RoundTrip measures the time since the echoed ping was sent.
func (e *Envelope) RoundTrip(now time.Time) time.Duration {
	return now.Sub(time.Unix(0, e.SentAt))
}

func (e *Envelope) String() string {
	return fmt.Sprintf("%s from=%d to=%s object=%s", e.Kind, e.From, e.Target, e.Object)
}

// MethodHash turns a method name into its wire id.
func MethodHash(name string) MethodID {
	return MethodID(xxhash.Sum64String(name))
}

// Codec converts envelopes to bytes and back.
type Codec interface {
	Encode(env *Envelope) ([]byte, error)
	Decode(data []byte) (*Envelope, error)
}

// JSONCodec is the codec shared by all network transports.
type JSONCodec struct{}

func (JSONCodec) Encode(env *Envelope) ([]byte, error) {
	data, err := json.Marshal(env)
	if err != nil {
		return nil, NewProtocolError(ErrorCodeSerializationFailed, "encode envelope", err)
	}
	if len(data) > MaxFrameSize {
		return nil, ErrMessageTooLarge
	}
	return data, nil
}

func (JSONCodec) Decode(data []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, NewProtocolError(ErrorCodeDeserializationFailed, "decode envelope", err)
	}
	if env.Kind == 0 {
		return nil, ErrInvalidMessage
	}
	return &env, nil
}

// WriteFrame writes data prefixed with its big endian uint32 length.
func WriteFrame(w io.Writer, data []byte) error {
	if len(data) > MaxFrameSize {
		return ErrMessageTooLarge
	}
	var header [4]byte
	binary.BigEndian.PutUint32(header[:], uint32(len(data)))
	if _, err := w.Write(header[:]); err != nil {
		return err
	}
	_, err := w.Write(data)
	return err
}

// ReadFrame reads one length prefixed frame written by WriteFrame.
func ReadFrame(r io.Reader) ([]byte, error) {
	var header [4]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, err
	}
	size := binary.BigEndian.Uint32(header[:])
	if size > MaxFrameSize {
		return nil, ErrMessageTooLarge
	}
	data := make([]byte, size)
	if _, err := io.ReadFull(r, data); err != nil {
		return nil, err
	}
	return data, nil
}
