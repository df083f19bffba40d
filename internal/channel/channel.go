// Package channel is the push-notification transport seen by the
// dashboard: named events in, named events out. The transport is
// opaque to callers; reconnection is the transport's problem.
package channel

import (
	"encoding/json"
	"fmt"
	"sync"
)

// Handler receives the raw JSON payload of one event delivery.
type Handler func(payload []byte)

// Channel is a bidirectional event channel bound to one user.
type Channel interface {
	// Subscribe registers a handler for a named event and returns a
	// deregistration func. The func is safe to call more than once.
	Subscribe(event string, h Handler) (func(), error)
	// Emit publishes a named event. A nil payload sends an empty body.
	Emit(event string, payload any) error
	Close()
}

// Subject maps a user-scoped event name onto a transport subject.
// Server and client must agree on this.
func Subject(userID int, event string) string {
	return fmt.Sprintf("user.%d.%s", userID, event)
}

// InProc is an in-process Channel for tests and single-binary wiring,
// same shape as the in-memory send queue.
type InProc struct {
	mu       sync.Mutex
	nextID   int
	handlers map[string]map[int]Handler
}

func NewInProc() *InProc {
	return &InProc{handlers: make(map[string]map[int]Handler)}
}

func (c *InProc) Subscribe(event string, h Handler) (func(), error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.handlers[event] == nil {
		c.handlers[event] = make(map[int]Handler)
	}
	c.nextID++
	id := c.nextID
	c.handlers[event][id] = h

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.handlers[event], id)
			c.mu.Unlock()
		})
	}, nil
}

func (c *InProc) Emit(event string, payload any) error {
	body, err := marshalPayload(payload)
	if err != nil {
		return err
	}

	c.mu.Lock()
	handlers := make([]Handler, 0, len(c.handlers[event]))
	for _, h := range c.handlers[event] {
		handlers = append(handlers, h)
	}
	c.mu.Unlock()

	for _, h := range handlers {
		h(body)
	}
	return nil
}

func (c *InProc) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers = make(map[string]map[int]Handler)
}

func marshalPayload(payload any) ([]byte, error) {
	if payload == nil {
		return nil, nil
	}
	if raw, ok := payload.([]byte); ok {
		return raw, nil
	}
	return json.Marshal(payload)
}
