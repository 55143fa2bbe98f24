// Package events delivers in-process notifications to ordered subscribers.
package events

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/louisbranch/autonexus/internal/services/nexus/domain"
)

// Verdict is what a subscriber returns.
type Verdict int

const (
	// Continue passes the event to the next subscriber.
	Continue Verdict = iota
	// Cancel stops delivery to later subscribers.
	Cancel
)

// Handler receives one event.
type Handler[E any] func(ctx context.Context, event E) Verdict

type subscriber[E any] struct {
	id uint64
	fn Handler[E]
}

// Bus invokes subscribers in registration order. It is safe for concurrent
// use; a Post sees the subscriber list as of its start.
type Bus[E any] struct {
	mu     sync.RWMutex
	nextID uint64
	subs   []subscriber[E]
}

// Subscribe appends fn and returns a func that removes it.
func (b *Bus[E]) Subscribe(fn Handler[E]) (unsubscribe func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	id := b.nextID
	b.subs = append(b.subs, subscriber[E]{id: id, fn: fn})
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		for i, sub := range b.subs {
			if sub.id == id {
				b.subs = append(b.subs[:i:i], b.subs[i+1:]...)
				return
			}
		}
	}
}

// Post delivers event and reports whether a subscriber cancelled it.
func (b *Bus[E]) Post(ctx context.Context, event E) (cancelled bool) {
	b.mu.RLock()
	subs := b.subs
	b.mu.RUnlock()
	for _, sub := range subs {
		if sub.fn(ctx, event) == Cancel {
			return true
		}
	}
	return false
}

// Len returns the number of subscribers.
func (b *Bus[E]) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// MetadataChanged follows a successful metadata write by this process.
type MetadataChanged struct {
	UUID          uuid.UUID
	Field         string
	ResolvedField string
	Group         string
	Value         string
	Delta         float64
	Type          domain.TxType
}

// BalanceChanged follows a balance notification from any process.
type BalanceChanged struct {
	Update domain.BalanceUpdate
	UUID   uuid.UUID
}

// PlayerSynced follows a remote request to refresh a player's cached record.
type PlayerSynced struct {
	UUID uuid.UUID
	// Field and Value are set when the request named a single field.
	Field string
	Value string
}

// Buses groups the buses a node exposes.
type Buses struct {
	Metadata Bus[MetadataChanged]
	Balance  Bus[BalanceChanged]
	Sync     Bus[PlayerSynced]
}
