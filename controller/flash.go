package controller

import (
	"sync"
	"time"
)

// Kind classifies a message.
type Kind int

const (
	KindNone Kind = iota
	KindInfo
	KindSuccess
	KindError
)

// Message is the one line of feedback a controller currently shows.
type Message struct {
	Kind Kind
	Text string
}

// Empty reports whether nothing is shown.
func (m Message) Empty() bool { return m.Text == "" }

// Flash holds a message that optionally clears itself. A newer message
// always replaces an older one, and an old timer never clears a newer message.
type Flash struct {
	mu    sync.Mutex
	msg   Message
	gen   uint64
	timer *time.Timer
}

// Show displays m. With ttl > 0 it clears after ttl; otherwise it stays until
// replaced or cleared.
func (f *Flash) Show(m Message, ttl time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopLocked()
	f.gen++
	f.msg = m
	if ttl <= 0 {
		return
	}
	gen := f.gen
	f.timer = time.AfterFunc(ttl, func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		if f.gen == gen {
			f.msg = Message{}
		}
	})
}

// Current returns the message on display.
func (f *Flash) Current() Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.msg
}

// Clear removes the message now.
func (f *Flash) Clear() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopLocked()
	f.gen++
	f.msg = Message{}
}

func (f *Flash) stopLocked() {
	if f.timer != nil {
		f.timer.Stop()
		f.timer = nil
	}
}
