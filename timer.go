package main

import (
	"log"
	"sync"
	"time"
)

// TimerService owns one countdown per active session. Starting a
// countdown for an id retires any previous one, so two loops can never
// double-decrement the same session. Stopping is unconditional and
// idempotent.
type TimerService struct {
	mu       sync.Mutex
	interval time.Duration
	timers   map[string]*countdown
}

type countdown struct {
	stop chan struct{}
	once sync.Once
}

func (c *countdown) cancel() {
	c.once.Do(func() {
		close(c.stop)
	})
}

func newTimerService(interval time.Duration) *TimerService {
	return &TimerService{
		interval: interval,
		timers:   make(map[string]*countdown),
	}
}

// Start begins a countdown from seconds, invoking onTick after each
// interval with the remaining value and onExpire exactly once when the
// countdown reaches zero. Callbacks run on the countdown goroutine; a
// panicking callback is logged and the loop keeps ticking.
func (t *TimerService) Start(sessionID string, seconds int, onTick func(remaining int), onExpire func()) {
	c := &countdown{
		stop: make(chan struct{}),
	}

	t.mu.Lock()
	if prev, ok := t.timers[sessionID]; ok {
		prev.cancel()
	}
	t.timers[sessionID] = c
	t.mu.Unlock()

	go t.run(sessionID, c, seconds, onTick, onExpire)
}

func (t *TimerService) run(sessionID string, c *countdown, seconds int, onTick func(remaining int), onExpire func()) {
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	remaining := seconds

	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			remaining--
			safeCall(func() { onTick(remaining) })

			if remaining <= 0 {
				t.remove(sessionID, c)
				safeCall(onExpire)
				return
			}
		}
	}
}

// Stop cancels the countdown for a session, if one is running.
func (t *TimerService) Stop(sessionID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	c, ok := t.timers[sessionID]
	if !ok {
		return false
	}
	c.cancel()
	delete(t.timers, sessionID)
	return true
}

// Running reports whether a countdown currently exists for a session.
func (t *TimerService) Running(sessionID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	_, ok := t.timers[sessionID]
	return ok
}

// remove clears the map entry only if it still belongs to this
// countdown; a restart may already have replaced it.
func (t *TimerService) remove(sessionID string, c *countdown) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if current, ok := t.timers[sessionID]; ok && current == c {
		delete(t.timers, sessionID)
	}
}

// safeCall keeps one failing broadcast from killing the countdown for
// the remaining ticks.
func safeCall(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("timer callback panic: %v", r)
		}
	}()
	fn()
}
