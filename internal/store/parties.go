package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// DocumentTypeOAB is the document type of lawyers identified by bar
// registration number.
const DocumentTypeOAB = "oab"

// Party is a resolved participant entity, unique per document.
type Party struct {
	ID           uuid.UUID
	Name         string
	DocumentType string
	Document     string
	CreatedAt    time.Time
}

// PartyStore persists participant entities.
type PartyStore struct {
	db querier
}

// NewPartyStore constructs a PartyStore over an existing pool.
func NewPartyStore(db querier) *PartyStore {
	return &PartyStore{db: db}
}

// FindByDocuments returns the already-known parties among the given
// documents of one type. Missing documents are simply absent from the
// result.
func (s *PartyStore) FindByDocuments(ctx context.Context, documentType string, documents []string) ([]Party, error) {
	if len(documents) == 0 {
		return nil, nil
	}
	rows, err := s.db.Query(ctx, `
SELECT id, name, document_type, document, created_at
FROM parties
WHERE document_type = $1 AND document = ANY($2)`,
		documentType, documents)
	if err != nil {
		return nil, fmt.Errorf("find parties: %w", err)
	}
	defer rows.Close()

	var parties []Party
	for rows.Next() {
		var p Party
		if err := rows.Scan(&p.ID, &p.Name, &p.DocumentType, &p.Document, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan party: %w", err)
		}
		parties = append(parties, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate parties: %w", err)
	}
	return parties, nil
}

// Create inserts a new party. The unique (document_type, document) key
// makes concurrent creates collide; callers should re-query on
// IsUniqueViolation.
func (s *PartyStore) Create(ctx context.Context, name, documentType, document string) (Party, error) {
	if document == "" {
		return Party{}, fmt.Errorf("document is required")
	}
	p := Party{
		ID:           uuid.New(),
		Name:         name,
		DocumentType: documentType,
		Document:     document,
	}
	err := s.db.QueryRow(ctx, `
INSERT INTO parties (id, name, document_type, document)
VALUES ($1, $2, $3, $4)
RETURNING created_at`,
		p.ID, p.Name, p.DocumentType, p.Document).Scan(&p.CreatedAt)
	if err != nil {
		return Party{}, fmt.Errorf("insert party: %w", err)
	}
	return p, nil
}
