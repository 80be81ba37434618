package transport

import (
	"context"
	"sync"

	"github.com/Cabritto-Corps/battlecore/pkg/types"
)

// Fake is an in-memory Adapter for tests: Deliver pushes an envelope to
// every registered handler as if the channel had produced it.
type Fake struct {
	mu        sync.Mutex
	connected bool
	userID    string
	channels  map[string]bool
	handlers  map[int]Handler
	nextID    int
}

func NewFake() *Fake {
	return &Fake{
		channels: map[string]bool{},
		handlers: map[int]Handler{},
	}
}

func (f *Fake) Connect(ctx context.Context, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = true
	f.userID = userID
	return nil
}

func (f *Fake) Subscribe(ctx context.Context, channel string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.channels[channel] = true
	return nil
}

func (f *Fake) Unsubscribe(ctx context.Context, channel string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.channels, channel)
	return nil
}

func (f *Fake) OnMessage(h Handler) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.nextID
	f.nextID++
	f.handlers[id] = h
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		delete(f.handlers, id)
	}
}

func (f *Fake) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *Fake) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = false
	return nil
}

// Deliver fans an envelope out to registered handlers.
func (f *Fake) Deliver(env types.Envelope) {
	f.mu.Lock()
	hs := make([]Handler, 0, len(f.handlers))
	for _, h := range f.handlers {
		hs = append(hs, h)
	}
	f.mu.Unlock()
	for _, h := range hs {
		h(env)
	}
}

// Subscribed reports whether the channel currently has a subscription.
func (f *Fake) Subscribed(channel string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.channels[channel]
}

// HandlerCount reports how many handlers remain registered.
func (f *Fake) HandlerCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.handlers)
}
