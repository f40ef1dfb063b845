// Package cache provides a content-addressed image cache. Fetched bytes for
// a given content id are immutable, so entries never need invalidation.
package cache

import (
	"container/list"
	"context"
	"sync"
)

// ImageCache stores raw image bytes keyed by content id. Implementations are
// best-effort: a miss or a failed write must never fail the operation.
type ImageCache interface {
	Get(ctx context.Context, cid string) ([]byte, bool)
	Set(ctx context.Context, cid string, data []byte)
}

// Memory is a bounded in-process LRU cache.
type Memory struct {
	mu       sync.Mutex
	maxBytes int
	curBytes int
	order    *list.List
	entries  map[string]*list.Element
}

type memoryEntry struct {
	cid  string
	data []byte
}

// NewMemory creates a cache bounded to maxBytes of stored image data.
func NewMemory(maxBytes int) *Memory {
	if maxBytes <= 0 {
		maxBytes = 64 << 20 // 64MB
	}
	return &Memory{
		maxBytes: maxBytes,
		order:    list.New(),
		entries:  make(map[string]*list.Element),
	}
}

func (m *Memory) Get(_ context.Context, cid string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	el, ok := m.entries[cid]
	if !ok {
		return nil, false
	}
	m.order.MoveToFront(el)
	data := el.Value.(*memoryEntry).data
	out := make([]byte, len(data))
	copy(out, data)
	return out, true
}

func (m *Memory) Set(_ context.Context, cid string, data []byte) {
	if len(data) == 0 || len(data) > m.maxBytes {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if el, ok := m.entries[cid]; ok {
		m.order.MoveToFront(el)
		entry := el.Value.(*memoryEntry)
		m.curBytes += len(data) - len(entry.data)
		entry.data = append([]byte(nil), data...)
	} else {
		el := m.order.PushFront(&memoryEntry{cid: cid, data: append([]byte(nil), data...)})
		m.entries[cid] = el
		m.curBytes += len(data)
	}

	for m.curBytes > m.maxBytes {
		oldest := m.order.Back()
		if oldest == nil {
			break
		}
		entry := oldest.Value.(*memoryEntry)
		m.order.Remove(oldest)
		delete(m.entries, entry.cid)
		m.curBytes -= len(entry.data)
	}
}
