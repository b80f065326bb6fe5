package state

import (
	"context"
	"sync"

	"github.com/ajitpratap0/emarsys-tap/pkg/errors"
)

var errWriteRefused = errors.New(errors.ErrorTypeState, "memory store refused write")

// MemoryStore keeps the checkpoint in memory and records every write.
type MemoryStore struct {
	mu      sync.Mutex
	current *Document
	history []*Document
	// FailAfter makes the Nth and later writes fail when positive
	FailAfter int
	writes    int
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates a store seeded with doc, which may be nil
func NewMemoryStore(doc *Document) *MemoryStore {
	s := &MemoryStore{}
	if doc != nil {
		s.current = doc.Clone()
	}
	return s
}

// Read returns a copy of the current document
func (s *MemoryStore) Read(context.Context) (*Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return New(), nil
	}
	return s.current.Clone(), nil
}

// Write stores a copy of doc
func (s *MemoryStore) Write(_ context.Context, doc *Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writes++
	if s.FailAfter > 0 && s.writes >= s.FailAfter {
		err := errWriteRefused
		recordWrite("memory", err)
		return err
	}
	s.current = doc.Clone()
	s.history = append(s.history, doc.Clone())
	recordWrite("memory", nil)
	return nil
}

// History returns every successfully written document, oldest first
func (s *MemoryStore) History() []*Document {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Document, len(s.history))
	copy(out, s.history)
	return out
}

// Close is a no-op
func (s *MemoryStore) Close() error {
	return nil
}
