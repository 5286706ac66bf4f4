package queue

import (
	"fmt"
	"sync"
)

// BatchManager tracks groups of sub-tasks and fires a callback exactly once
// when every sub-task in a batch has reported completion.
type BatchManager struct {
	mu      sync.Mutex
	nextID  int
	batches map[string]*batch
}

type batch struct {
	remaining  int
	onComplete func()
}

// NewBatchManager ...
func NewBatchManager() *BatchManager {
	return &BatchManager{batches: map[string]*batch{}}
}

// CreateBatch registers a batch of expectedCount sub-tasks and returns its
// id. onComplete fires on the UpdateBatch call that brings the count to
// zero; a zero expectedCount fires it immediately.
func (m *BatchManager) CreateBatch(expectedCount int, onComplete func()) string {
	m.mu.Lock()
	m.nextID++
	id := fmt.Sprintf("batch-%d", m.nextID)
	if expectedCount > 0 {
		m.batches[id] = &batch{remaining: expectedCount, onComplete: onComplete}
		m.mu.Unlock()
		return id
	}
	m.mu.Unlock()

	if onComplete != nil {
		onComplete()
	}
	return id
}

// UpdateBatch records one completed sub-task. Updates on unknown or already
// completed batches are no-ops.
func (m *BatchManager) UpdateBatch(id string) {
	m.mu.Lock()
	b, ok := m.batches[id]
	if !ok {
		m.mu.Unlock()
		return
	}
	b.remaining--
	if b.remaining > 0 {
		m.mu.Unlock()
		return
	}
	delete(m.batches, id)
	m.mu.Unlock()

	if b.onComplete != nil {
		b.onComplete()
	}
}
