package dispatch

import (
	"sync"

	"github.com/ibm-messaging/iot-go/pkg/message"
)

// Handler receives one inbound message.
type Handler func(message.Message)

// Table holds at most one handler per message kind. Setting a handler
// replaces the previous one; a nil handler clears the slot.
//
// A Table is safe for concurrent use.
type Table struct {
	mu    sync.RWMutex
	slots [len(kindSlots)]Handler
}

// kindSlots fixes the slot array size to the number of kinds.
var kindSlots = [...]message.Kind{
	message.KindEvent,
	message.KindCommand,
	message.KindNotification,
	message.KindStatus,
}

func slot(k message.Kind) (int, bool) {
	i := int(k)
	return i, i >= 0 && i < len(kindSlots)
}

// Set installs h for kind and reports whether a handler was replaced.
func (t *Table) Set(kind message.Kind, h Handler) bool {
	i, ok := slot(kind)
	if !ok {
		return false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	replaced := t.slots[i] != nil
	t.slots[i] = h
	return replaced
}

// Get returns the handler for kind, or nil.
func (t *Table) Get(kind message.Kind) Handler {
	i, ok := slot(kind)
	if !ok {
		return nil
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.slots[i]
}

// Registered lists the kinds that currently have a handler.
func (t *Table) Registered() []message.Kind {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var out []message.Kind
	for i, h := range t.slots {
		if h != nil {
			out = append(out, kindSlots[i])
		}
	}
	return out
}
