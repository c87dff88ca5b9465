// Package store persists the documents a turn-stream session can attach as
// context, plus the user profile rows behind onboarding and roadmap views.
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// Document kinds. The catalog groups documents by kind so the UI can offer
// CVs, job descriptions and analyzed profiles separately.
const (
	KindCV      = "cv"
	KindJD      = "jd"
	KindProfile = "profile"
)

// Document is one ingested context document chunk.
type Document struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"`
	Kind      string    `gorm:"index"`
	Source    string
	Content   string
	UserID    string `gorm:"index"`
	CreatedAt time.Time
}

// Profile holds the CRUD-only onboarding/roadmap state for one user.
type Profile struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"`
	UserID    string    `gorm:"uniqueIndex"`
	Name      string
	Headline  string
	Skills    string
	Roadmap   string `gorm:"type:text"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// DocumentRef is a catalog entry: enough for the caller to pick context ids
// without pulling full content.
type DocumentRef struct {
	ID     string `json:"id"`
	Source string `json:"source"`
}

// Catalog is the available-context listing consumed before starting a
// turn-stream session.
type Catalog struct {
	CV      []DocumentRef `json:"cv"`
	JD      []DocumentRef `json:"jd"`
	Profile []DocumentRef `json:"profile,omitempty"`
}

// Store is the postgres-backed document and profile store.
type Store struct {
	db *gorm.DB
}

// Open connects to postgres and migrates the schema.
func Open(dsn string) (*Store, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.AutoMigrate(&Document{}, &Profile{}); err != nil {
		return nil, fmt.Errorf("migrate schema: %w", err)
	}
	return &Store{db: db}, nil
}

// ListAvailable returns the context catalog grouped by document kind.
func (s *Store) ListAvailable(ctx context.Context) (Catalog, error) {
	var docs []Document
	if err := s.db.WithContext(ctx).
		Select("id", "kind", "source").
		Order("created_at ASC").
		Find(&docs).Error; err != nil {
		return Catalog{}, fmt.Errorf("list documents: %w", err)
	}
	var cat Catalog
	for _, d := range docs {
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

// GetDocuments fetches full documents for the given ids, preserving the
// requested order where possible.
func (s *Store) GetDocuments(ctx context.Context, ids []string) ([]Document, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var docs []Document
	if err := s.db.WithContext(ctx).Where("id IN ?", ids).Find(&docs).Error; err != nil {
		return nil, fmt.Errorf("get documents: %w", err)
	}
	return docs, nil
}

// IngestText chunks raw text and stores each chunk as a document. Returns
// the number of chunks written.
func (s *Store) IngestText(ctx context.Context, kind, source, userID, text string) (int, error) {
	chunks := ChunkText(text, defaultChunkSize, defaultChunkOverlap)
	docs := make([]Document, 0, len(chunks))
	now := time.Now()
	for _, chunk := range chunks {
		docs = append(docs, Document{
			ID:        uuid.New(),
			Kind:      kind,
			Source:    source,
			Content:   chunk,
			UserID:    userID,
			CreatedAt: now,
		})
	}
	if len(docs) == 0 {
		return 0, nil
	}
	if err := s.db.WithContext(ctx).Create(&docs).Error; err != nil {
		return 0, fmt.Errorf("ingest documents: %w", err)
	}
	return len(docs), nil
}

// SaveProfile upserts the profile row for its user.
func (s *Store) SaveProfile(ctx context.Context, p *Profile) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	var existing Profile
	err := s.db.WithContext(ctx).Where("user_id = ?", p.UserID).First(&existing).Error
	switch {
	case err == nil:
		p.ID = existing.ID
		p.CreatedAt = existing.CreatedAt
		return s.db.WithContext(ctx).Save(p).Error
	case err == gorm.ErrRecordNotFound:
		return s.db.WithContext(ctx).Create(p).Error
	default:
		return fmt.Errorf("save profile: %w", err)
	}
}

// GetProfile fetches the profile for a user.
func (s *Store) GetProfile(ctx context.Context, userID string) (*Profile, error) {
	var p Profile
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).First(&p).Error; err != nil {
		return nil, fmt.Errorf("get profile: %w", err)
	}
	return &p, nil
}

// DeleteProfile removes the profile for a user.
func (s *Store) DeleteProfile(ctx context.Context, userID string) error {
	return s.db.WithContext(ctx).Where("user_id = ?", userID).Delete(&Profile{}).Error
}
