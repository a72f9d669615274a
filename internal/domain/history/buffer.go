// Package history keeps the bounded, insertion-ordered record of recent bridge traffic
// that is replayed to newly connected clients.
package history

import (
	"fmt"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/xj1core/cloud-bridge/internal/domain/model"
)

const DefaultCapacity = 100

// Reader is the read-only view handed to the Hub and the HTTP surface.
type Reader interface {
	Recent(n int) []model.Record
	Snapshot(n int) ([]model.Record, uint64)
	Len() int
}

// Buffer holds at most Capacity records, oldest first.
//
// Entries are keyed by a monotonically increasing sequence and never looked up with Get,
// so the LRU eviction order is exactly the insertion order.
type Buffer struct {
	mu       sync.Mutex // serializes sequence allocation with insertion
	seq      uint64
	capacity int
	store    *lru.Cache[uint64, model.Record]
}

func New(capacity int) (*Buffer, error) {
	store, err := lru.New[uint64, model.Record](capacity)
	if err != nil {
		return nil, fmt.Errorf("history: invalid capacity %d: %w", capacity, err)
	}
	return &Buffer{capacity: capacity, store: store}, nil
}

// Append stores r at the tail, evicting the head once capacity is exceeded.
// The returned copy carries the sequence number assigned to it.
func (b *Buffer) Append(r model.Record) model.Record {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.seq++
	r.Seq = b.seq
	b.store.Add(b.seq, r)
	return r
}

// Recent returns up to n of the newest records, oldest first.
func (b *Buffer) Recent(n int) []model.Record {
	if n <= 0 {
		return []model.Record{}
	}
	all := b.store.Values()
	if len(all) > n {
		all = all[len(all)-n:]
	}
	return all
}

// Snapshot is Recent plus the sequence of the newest record ever appended, read atomically
// with respect to Append. Records with a higher sequence were appended after the snapshot.
func (b *Buffer) Snapshot(n int) ([]model.Record, uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.Recent(n), b.seq
}

func (b *Buffer) Len() int      { return b.store.Len() }
func (b *Buffer) Capacity() int { return b.capacity }
