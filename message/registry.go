package message

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/youwol/ywdash/errors"
)

// Payload is the typed content of a DATA message.
type Payload interface {
	Label() Label
}

// RawPayload is the fallback for messages whose labels have no registered
// decoder.
type RawPayload struct {
	Labels []Label
	Data   json.RawMessage
}

// Label returns the empty label.
func (RawPayload) Label() Label { return "" }

// PayloadFactory returns a pointer to a fresh payload value to unmarshal into.
type PayloadFactory func() Payload

// Registration binds a label to a payload factory.
type Registration struct {
	Label       Label
	Description string
	Factory     PayloadFactory
}

// PayloadRegistry maps labels to payload decoders.
type PayloadRegistry struct {
	registrations map[Label]*Registration
	mu            sync.RWMutex
}

// NewPayloadRegistry creates an empty registry.
func NewPayloadRegistry() *PayloadRegistry {
	return &PayloadRegistry{registrations: make(map[Label]*Registration)}
}

// Register adds a decoder. Labels may be registered once.
func (r *PayloadRegistry) Register(reg *Registration) error {
	if reg == nil || reg.Factory == nil {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "PayloadRegistry", "Register", "factory validation")
	}
	if reg.Label == "" {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "PayloadRegistry", "Register", "label validation")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.registrations[reg.Label]; exists {
		return errors.WrapInvalid(
			fmt.Errorf("payload label %q is already registered", reg.Label),
			"PayloadRegistry", "Register", "duplicate label check")
	}
	r.registrations[reg.Label] = reg
	return nil
}

// Labels returns the registered labels.
func (r *PayloadRegistry) Labels() []Label {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Label, 0, len(r.registrations))
	for l := range r.registrations {
		out = append(out, l)
	}
	return out
}

// Decode returns the typed payload for the first registered label on m, or
// a RawPayload when none matches. A registered label whose data fails to
// decode yields an invalid error.
func (r *PayloadRegistry) Decode(m Message) (Payload, error) {
	r.mu.RLock()
	var reg *Registration
	for _, l := range m.Labels {
		if found, ok := r.registrations[l]; ok {
			reg = found
			break
		}
	}
	r.mu.RUnlock()

	if reg == nil {
		return RawPayload{Labels: m.Labels, Data: m.Data}, nil
	}
	p := reg.Factory()
	if len(m.Data) > 0 {
		if err := json.Unmarshal(m.Data, p); err != nil {
			return nil, errors.WrapInvalid(err, "PayloadRegistry", "Decode", "unmarshal "+string(reg.Label))
		}
	}
	return p, nil
}

// DecodeAs decodes m and asserts the payload type. ok is false when the
// message does not carry a T.
func DecodeAs[T Payload](r *PayloadRegistry, m Message) (T, bool) {
	var zero T
	p, err := r.Decode(m)
	if err != nil {
		return zero, false
	}
	t, ok := p.(T)
	return t, ok
}

var (
	defaultRegistry     *PayloadRegistry
	defaultRegistryOnce sync.Once
)

// DefaultRegistry returns the registry preloaded with the daemon payloads.
func DefaultRegistry() *PayloadRegistry {
	defaultRegistryOnce.Do(func() {
		defaultRegistry = NewPayloadRegistry()
		for _, reg := range builtinPayloads() {
			if err := defaultRegistry.Register(reg); err != nil {
				panic("failed to register daemon payload: " + err.Error())
			}
		}
	})
	return defaultRegistry
}

// Payload decodes m with r, or with DefaultRegistry when r is nil.
func (m Message) Payload(r *PayloadRegistry) (Payload, error) {
	if r == nil {
		r = DefaultRegistry()
	}
	return r.Decode(m)
}
