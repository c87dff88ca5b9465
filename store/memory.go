package store

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrProfileNotFound is returned when no profile exists for a user.
var ErrProfileNotFound = errors.New("profile not found")

// Memory is an in-memory document and profile store for tests and for
// running the server without postgres.
type Memory struct {
	mu       sync.RWMutex
	docs     []Document
	profiles map[string]Profile
}

func NewMemory() *Memory {
	return &Memory{profiles: make(map[string]Profile)}
}

func (m *Memory) ListAvailable(ctx context.Context) (Catalog, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var cat Catalog
	for _, d := range m.docs {
		ref := DocumentRef{ID: d.ID.String(), Source: d.Source}
		switch d.Kind {
		case KindJD:
			cat.JD = append(cat.JD, ref)
		case KindProfile:
			cat.Profile = append(cat.Profile, ref)
		default:
			cat.CV = append(cat.CV, ref)
		}
	}
	return cat, nil
}

func (m *Memory) GetDocuments(ctx context.Context, ids []string) ([]Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	var docs []Document
	for _, d := range m.docs {
		if want[d.ID.String()] {
			docs = append(docs, d)
		}
	}
	return docs, nil
}

func (m *Memory) IngestText(ctx context.Context, kind, source, userID, text string) (int, error) {
	chunks := ChunkText(text, defaultChunkSize, defaultChunkOverlap)
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	for _, chunk := range chunks {
		m.docs = append(m.docs, Document{
			ID:        uuid.New(),
			Kind:      kind,
			Source:    source,
			Content:   chunk,
			UserID:    userID,
			CreatedAt: now,
		})
	}
	return len(chunks), nil
}

func (m *Memory) SaveProfile(ctx context.Context, p *Profile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	p.UpdatedAt = time.Now()
	m.profiles[p.UserID] = *p
	return nil
}

func (m *Memory) GetProfile(ctx context.Context, userID string) (*Profile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.profiles[userID]
	if !ok {
		return nil, ErrProfileNotFound
	}
	return &p, nil
}

func (m *Memory) DeleteProfile(ctx context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.profiles, userID)
	return nil
}
