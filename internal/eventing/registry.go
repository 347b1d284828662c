package eventing

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"sync"
)

// ErrUnknownEventType is returned when an envelope names a type nobody
// registered.
var ErrUnknownEventType = errors.New("eventing: unknown event type")

// Registry maps event type names to factories so outbox payloads can be
// decoded back into their concrete types. Register every event a consumer
// subscribes to before the dispatcher runs.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]func() any
}

func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]func() any)}
}

// Register adds an event type by sample value. Pointer samples are
// flattened to their element type.
func (r *Registry) Register(sample any) {
	if r == nil || sample == nil {
		return
	}
	t := reflect.TypeOf(sample)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	r.mu.Lock()
	r.factories[t.String()] = func() any { return reflect.New(t).Interface() }
	r.mu.Unlock()
}

// Types lists registered event type names in stable order.
func (r *Registry) Types() []string {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	r.mu.RUnlock()
	sort.Strings(names)
	return names
}

// DecodePayload turns an envelope back into its concrete event value.
func (r *Registry) DecodePayload(env Envelope) (any, error) {
	if r == nil {
		return nil, errors.New("eventing: nil registry")
	}
	r.mu.RLock()
	factory := r.factories[env.EventType]
	r.mu.RUnlock()
	if factory == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownEventType, env.EventType)
	}
	target := factory()
	if err := json.Unmarshal(env.Payload, target); err != nil {
		return nil, fmt.Errorf("eventing: decode %s: %w", env.EventType, err)
	}
	value := reflect.ValueOf(target)
	if value.Kind() == reflect.Ptr && !value.IsNil() {
		return value.Elem().Interface(), nil
	}
	return target, nil
}
