package registry

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/angelmondragon/eventrsvp-backend/pkg/enums"
)

// ErrNoDecoder is returned by Decode when nothing is registered for the
// event type and envelope version.
var ErrNoDecoder = errors.New("no payload decoder registered")

// Decoder turns an envelope's data field into a typed payload.
type Decoder func(data json.RawMessage) (any, error)

type schema struct {
	eventType enums.OutboxEventType
	version   int
}

// DecoderRegistry holds the payload decoders a consumer understands, one per
// event type and envelope version. Safe for concurrent use.
type DecoderRegistry struct {
	mu       sync.RWMutex
	decoders map[schema]Decoder
}

func NewDecoderRegistry() *DecoderRegistry {
	return &DecoderRegistry{decoders: map[schema]Decoder{}}
}

// Register replaces any decoder already held for eventType at version.
func (r *DecoderRegistry) Register(eventType enums.OutboxEventType, version int, decode Decoder) {
	r.mu.Lock()
	r.decoders[schema{eventType, version}] = decode
	r.mu.Unlock()
}

func (r *DecoderRegistry) Decode(eventType enums.OutboxEventType, version int, data json.RawMessage) (any, error) {
	r.mu.RLock()
	decode, ok := r.decoders[schema{eventType, version}]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s v%d", ErrNoDecoder, eventType, version)
	}
	return decode(data)
}

// JSONDecoder unmarshals into a fresh *T.
func JSONDecoder[T any]() Decoder {
	return func(data json.RawMessage) (any, error) {
		out := new(T)
		if err := json.Unmarshal(data, out); err != nil {
			return nil, err
		}
		return out, nil
	}
}
