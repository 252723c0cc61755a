// Package notify is the notification channel of the editor: short-lived,
// fire-and-forget messages that dismiss themselves after a fixed duration.
package notify

import (
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/maruel/ksid"
)

// DefaultTTL is how long a notification stays active.
const DefaultTTL = 3 * time.Second

// Level is the severity of a notification.
type Level string

const (
	// Info reports progress or success.
	Info Level = "info"
	// Error reports a failed operation.
	Error Level = "error"
)

// Notifier receives notifications. Implementations must not block.
type Notifier interface {
	Notify(level Level, message string)
}

// Notification is one queued message.
type Notification struct {
	ID      ksid.ID   `json:"id"`
	Level   Level     `json:"level"`
	Message string    `json:"message"`
	Created time.Time `json:"created"`
	Expires time.Time `json:"expires"`
}

// Center stacks notifications and dismisses each one when its TTL elapses.
// Subscribers get a ping on every change.
type Center struct {
	mu        sync.RWMutex
	ttl       time.Duration
	active    []Notification
	timers    map[ksid.ID]*time.Timer
	listeners map[chan struct{}]struct{}
}

// New creates a center. A non-positive ttl selects DefaultTTL.
func New(ttl time.Duration) *Center {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Center{
		ttl:       ttl,
		timers:    make(map[ksid.ID]*time.Timer),
		listeners: make(map[chan struct{}]struct{}),
	}
}

// SetTTL changes the duration of notifications posted from now on.
func (c *Center) SetTTL(ttl time.Duration) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	c.mu.Lock()
	c.ttl = ttl
	c.mu.Unlock()
}

// Notify implements Notifier.
func (c *Center) Notify(level Level, message string) {
	c.Post(level, message)
}

// Post queues a notification and returns it.
func (c *Center) Post(level Level, message string) Notification {
	now := time.Now()
	c.mu.Lock()
	n := Notification{ID: ksid.NewID(), Level: level, Message: message, Created: now, Expires: now.Add(c.ttl)}
	c.active = append(c.active, n)
	c.timers[n.ID] = time.AfterFunc(c.ttl, func() { c.Dismiss(n.ID) })
	c.mu.Unlock()

	if level == Error {
		slog.Warn("notify", "msg", message)
	} else {
		slog.Info("notify", "msg", message)
	}
	c.broadcast()
	return n
}

// Dismiss removes a notification before it expires. It reports whether the
// notification was still active.
func (c *Center) Dismiss(id ksid.ID) bool {
	c.mu.Lock()
	i := slices.IndexFunc(c.active, func(n Notification) bool { return n.ID == id })
	if i >= 0 {
		c.active = slices.Delete(c.active, i, i+1)
	}
	if t, ok := c.timers[id]; ok {
		t.Stop()
		delete(c.timers, id)
	}
	c.mu.Unlock()
	if i >= 0 {
		c.broadcast()
	}
	return i >= 0
}

// Active returns the notifications currently displayed, oldest first.
func (c *Center) Active() []Notification {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Clone(c.active)
}

// Close dismisses everything and stops pending timers.
func (c *Center) Close() {
	c.mu.Lock()
	for id, t := range c.timers {
		t.Stop()
		delete(c.timers, id)
	}
	c.active = nil
	c.mu.Unlock()
	c.broadcast()
}

// Subscribe returns a channel that receives a ping when the active set changes.
// The caller must call Unsubscribe when done.
func (c *Center) Subscribe() chan struct{} {
	ch := make(chan struct{}, 1)
	c.mu.Lock()
	c.listeners[ch] = struct{}{}
	c.mu.Unlock()
	return ch
}

// Unsubscribe removes a listener channel and closes it.
func (c *Center) Unsubscribe(ch chan struct{}) {
	c.mu.Lock()
	delete(c.listeners, ch)
	c.mu.Unlock()
	close(ch)
}

func (c *Center) broadcast() {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for ch := range c.listeners {
		select {
		case ch <- struct{}{}:
		default:
			// Listener already has a pending ping.
		}
	}
}

// Recorder is a Notifier that keeps every message, for tests and the CLI.
type Recorder struct {
	mu       sync.Mutex
	Messages []Notification
}

// Notify implements Notifier.
func (r *Recorder) Notify(level Level, message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Messages = append(r.Messages, Notification{Level: level, Message: message, Created: time.Now()})
}

// Texts returns the recorded messages.
func (r *Recorder) Texts() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.Messages))
	for i, n := range r.Messages {
		out[i] = n.Message
	}
	return out
}

// Last returns the most recent notification, if any.
func (r *Recorder) Last() (Notification, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.Messages) == 0 {
		return Notification{}, false
	}
	return r.Messages[len(r.Messages)-1], true
}
