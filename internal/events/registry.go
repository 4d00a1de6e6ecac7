package events

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/cloudevents/sdk-go/v2/event"
)

var (
	// ErrTopicRequired indicates a missing topic on registration.
	ErrTopicRequired = errors.New("event topic is required")
	// ErrTopicDuplicate indicates a topic registered twice.
	ErrTopicDuplicate = errors.New("event topic is already registered")
	// ErrPayloadFactoryRequired indicates a definition without a payload factory.
	ErrPayloadFactoryRequired = errors.New("event payload factory is required")
	// ErrTopicUnknown indicates an unregistered topic.
	ErrTopicUnknown = errors.New("event topic is not registered")
)

// Definition registers metadata for one integration event topic.
type Definition struct {
	// Topic is the broker subject and CloudEvents type.
	Topic string
	// Payload allocates a fresh typed payload for decoding.
	Payload func() any
}

// Registry maps topics to payload definitions so consumers can decode
// events into their typed payloads.
type Registry struct {
	definitions map[string]Definition
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{definitions: make(map[string]Definition)}
}

// Register adds an event definition to the registry.
func (r *Registry) Register(def Definition) error {
	if r == nil {
		return errors.New("registry is required")
	}
	def.Topic = strings.TrimSpace(def.Topic)
	if def.Topic == "" {
		return ErrTopicRequired
	}
	if def.Payload == nil {
		return fmt.Errorf("%w: %s", ErrPayloadFactoryRequired, def.Topic)
	}
	if _, exists := r.definitions[def.Topic]; exists {
		return fmt.Errorf("%w: %s", ErrTopicDuplicate, def.Topic)
	}
	r.definitions[def.Topic] = def
	return nil
}

// MustRegister registers a definition and panics on programmer error.
// Registration happens at package wiring time, never on a request path.
func (r *Registry) MustRegister(def Definition) {
	if err := r.Register(def); err != nil {
		panic(err)
	}
}

// Resolve returns the definition for a topic.
func (r *Registry) Resolve(topic string) (Definition, bool) {
	if r == nil {
		return Definition{}, false
	}
	def, ok := r.definitions[strings.TrimSpace(topic)]
	return def, ok
}

// Topics lists registered topics in sorted order.
func (r *Registry) Topics() []string {
	if r == nil {
		return nil
	}
	topics := make([]string, 0, len(r.definitions))
	for topic := range r.definitions {
		topics = append(topics, topic)
	}
	sort.Strings(topics)
	return topics
}

// DecodePayload decodes an event's data into the registered payload type
// for its topic.
func (r *Registry) DecodePayload(e event.Event) (any, error) {
	def, ok := r.Resolve(e.Type())
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTopicUnknown, e.Type())
	}
	payload := def.Payload()
	if err := e.DataAs(payload); err != nil {
		return nil, fmt.Errorf("decode %s payload: %w", e.Type(), err)
	}
	return payload, nil
}
