package service

import (
	"context"
	"sync"
)

const stateBufferSize = 8

// StateBroker fans run transitions out to live subscribers keyed by run id.
type StateBroker struct {
	mu          sync.RWMutex
	subscribers map[string]map[chan StateChange]struct{}
}

// NewStateBroker constructs an empty broker.
func NewStateBroker() *StateBroker {
	return &StateBroker{subscribers: make(map[string]map[chan StateChange]struct{})}
}

// Subscribe registers interest in a run. The returned cleanup must be called once.
func (b *StateBroker) Subscribe(runID string) (<-chan StateChange, func()) {
	channel := make(chan StateChange, stateBufferSize)

	b.mu.Lock()
	if _, ok := b.subscribers[runID]; !ok {
		b.subscribers[runID] = make(map[chan StateChange]struct{})
	}
	b.subscribers[runID][channel] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	cleanup := func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if subs, ok := b.subscribers[runID]; ok {
				delete(subs, channel)
				if len(subs) == 0 {
					delete(b.subscribers, runID)
				}
			}
			close(channel)
		})
	}

	return channel, cleanup
}

// Subscribers returns the number of live subscribers for a run.
func (b *StateBroker) Subscribers(runID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers[runID])
}

// OnStateChange delivers change to subscribers of its run, dropping it for slow consumers.
func (b *StateBroker) OnStateChange(_ context.Context, change StateChange) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for channel := range b.subscribers[change.RunID] {
		select {
		case channel <- change:
		default:
		}
	}
}
