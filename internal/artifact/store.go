// Package artifact stores generated report files until they are downloaded.
package artifact

import (
	"context"
	"sync"
	"time"

	"github.com/kursadbilgin/nikverify/internal/domain"
)

type Artifact struct {
	Filename    string
	ContentType string
	Data        []byte
}

// Store keeps one artifact per job. Take is a read-and-delete: a second Take
// for the same job returns domain.ErrNotFound.
type Store interface {
	Save(ctx context.Context, jobID string, a Artifact, ttl time.Duration) error
	Take(ctx context.Context, jobID string) (*Artifact, error)
	Delete(ctx context.Context, jobID string) error
}

var _ Store = (*MemoryStore)(nil)

// MemoryStore is the single-process Store used when Redis is not configured.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
}

type memoryEntry struct {
	artifact  Artifact
	expiresAt time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]memoryEntry),
		now:     time.Now,
	}
}

func (s *MemoryStore) Save(_ context.Context, jobID string, a Artifact, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry := memoryEntry{artifact: a}
	if ttl > 0 {
		entry.expiresAt = s.now().Add(ttl)
	}
	s.entries[jobID] = entry
	return nil
}

func (s *MemoryStore) Take(_ context.Context, jobID string) (*Artifact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[jobID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	delete(s.entries, jobID)

	if !entry.expiresAt.IsZero() && !s.now().Before(entry.expiresAt) {
		return nil, domain.ErrNotFound
	}
	a := entry.artifact
	return &a, nil
}

func (s *MemoryStore) Delete(_ context.Context, jobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.entries, jobID)
	return nil
}

// Sweep drops expired artifacts and reports how many were removed.
func (s *MemoryStore) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	removed := 0
	for id, entry := range s.entries {
		if !entry.expiresAt.IsZero() && !now.Before(entry.expiresAt) {
			delete(s.entries, id)
			removed++
		}
	}
	return removed
}
