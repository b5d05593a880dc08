package core

import "sync"

// System internal event codes. Application should use codes beyond 255.
type SystemEventCode int

const (
	// Shuts the application down on the next frame.
	EVENT_CODE_APPLICATION_QUIT SystemEventCode = 0x01
	// Keyboard key pressed. Data: KeyEvent.
	EVENT_CODE_KEY_PRESSED SystemEventCode = 0x02
	// Keyboard key released. Data: KeyEvent.
	EVENT_CODE_KEY_RELEASED SystemEventCode = 0x03
	// Resized/resolution changed from the OS. Data: ResizeEvent.
	EVENT_CODE_RESIZED SystemEventCode = 0x08
	// A watched asset changed on disk. Data: AssetEvent.
	EVENT_CODE_ASSET_CHANGED SystemEventCode = 0x09

	MAX_EVENT_CODE SystemEventCode = 0xFF
)

type KeyCode uint16

const (
	KEY_ESCAPE KeyCode = 0x1B
	KEY_B      KeyCode = 0x42
	KEY_R      KeyCode = 0x52
)

type KeyEvent struct {
	KeyCode KeyCode
}

type ResizeEvent struct {
	Width  uint32
	Height uint32
}

type AssetEvent struct {
	Path string
}

type EventContext struct {
	Type SystemEventCode
	Data interface{}
}

// Should return true if handled.
type FnOnEvent func(ctx EventContext) bool

// EventBus dispatches events to listeners registered per code. Events fired
// from other goroutines (the asset watcher) are queued and delivered on the
// next Dispatch call, which the engine makes once per frame.
type EventBus struct {
	mu        sync.Mutex
	listeners map[SystemEventCode][]FnOnEvent
	pending   []EventContext
}

func NewEventBus() *EventBus {
	return &EventBus{
		listeners: make(map[SystemEventCode][]FnOnEvent),
	}
}

func (eb *EventBus) Register(code SystemEventCode, onEvent FnOnEvent) {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	eb.listeners[code] = append(eb.listeners[code], onEvent)
}

// Fire delivers ctx synchronously. If a listener returns true the event is
// considered handled and is not passed on to any more listeners.
func (eb *EventBus) Fire(ctx EventContext) bool {
	eb.mu.Lock()
	listeners := append([]FnOnEvent(nil), eb.listeners[ctx.Type]...)
	eb.mu.Unlock()

	for _, l := range listeners {
		if l(ctx) {
			return true
		}
	}
	return false
}

// Post queues ctx for the next Dispatch. Safe to call from any goroutine.
func (eb *EventBus) Post(ctx EventContext) {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	eb.pending = append(eb.pending, ctx)
}

// Dispatch fires every queued event in posting order.
func (eb *EventBus) Dispatch() {
	eb.mu.Lock()
	pending := eb.pending
	eb.pending = nil
	eb.mu.Unlock()

	for _, ctx := range pending {
		eb.Fire(ctx)
	}
}
