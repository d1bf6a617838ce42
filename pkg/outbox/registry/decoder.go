package registry

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/vouchr/storefront-backend/pkg/enums"
)

// DecodeFunc turns an envelope's data section into a typed payload.
type DecodeFunc func(payload json.RawMessage) (interface{}, error)

type registryKey struct {
	eventType enums.OutboxEventType
	version   int
}

// DecoderRegistry stores versioned payload decoders for consumers.
type DecoderRegistry struct {
	mtx      sync.RWMutex
	registry map[registryKey]DecodeFunc
}

func NewDecoderRegistry() *DecoderRegistry {
	return &DecoderRegistry{registry: make(map[registryKey]DecodeFunc)}
}

func (r *DecoderRegistry) Register(eventType enums.OutboxEventType, version int, decoder DecodeFunc) {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	r.registry[registryKey{eventType: eventType, version: version}] = decoder
}

// Handles reports whether any version of eventType has a decoder.
func (r *DecoderRegistry) Handles(eventType enums.OutboxEventType) bool {
	r.mtx.RLock()
	defer r.mtx.RUnlock()
	for key := range r.registry {
		if key.eventType == eventType {
			return true
		}
	}
	return false
}

func (r *DecoderRegistry) Decode(eventType enums.OutboxEventType, version int, payload json.RawMessage) (interface{}, error) {
	r.mtx.RLock()
	defer r.mtx.RUnlock()
	if decoder, ok := r.registry[registryKey{eventType: eventType, version: version}]; ok {
		return decoder(payload)
	}
	return nil, fmt.Errorf("decoder not registered for %s@v%d", eventType, version)
}

// JSONDecoder builds a DecodeFunc that unmarshals into a fresh T.
func JSONDecoder[T any]() DecodeFunc {
	return func(payload json.RawMessage) (interface{}, error) {
		var out T
		if err := json.Unmarshal(payload, &out); err != nil {
			return nil, err
		}
		return &out, nil
	}
}
