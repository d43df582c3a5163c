package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/auctionlens/gazette-harvester/internal/extract"
	"github.com/auctionlens/gazette-harvester/internal/metrics"
	"github.com/auctionlens/gazette-harvester/internal/store"
)

type partyStore interface {
	FindByDocuments(ctx context.Context, documentType string, documents []string) ([]store.Party, error)
	Create(ctx context.Context, name, documentType, document string) (store.Party, error)
}

type caseStore interface {
	FindByProcess(ctx context.Context, processNumber string) (*store.CaseRecord, error)
	Create(ctx context.Context, rec store.CaseRecord) (uuid.UUID, error)
	Update(ctx context.Context, rec store.CaseRecord) error
}

type timelineStore interface {
	Insert(ctx context.Context, e store.TimelineEntry) (bool, error)
}

// Resolver turns carved records into durable entities: parties resolved
// by bar number, one case record per process number with participants
// accumulated across editions, and one timeline entry per appearance.
// Every step is idempotent so a replayed book converges to the same
// state.
type Resolver struct {
	parties  partyStore
	cases    caseStore
	timeline timelineStore
	logger   *zap.Logger
}

// NewResolver constructs a Resolver.
func NewResolver(parties partyStore, cases caseStore, timeline timelineStore, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{parties: parties, cases: cases, timeline: timeline, logger: logger}
}

// Resolve persists one carved record published on bookDate.
func (r *Resolver) Resolve(ctx context.Context, rec extract.Record, sourceID string, bookDate time.Time) error {
	plaintiffs, defendants, err := r.resolveParties(ctx, rec.Parties)
	if err != nil {
		return err
	}
	if err := r.upsertCase(ctx, rec, sourceID, bookDate, plaintiffs, defendants); err != nil {
		return err
	}
	if _, err := r.timeline.Insert(ctx, store.TimelineEntry{
		ProcessNumber: rec.ProcessNumber,
		Page:          rec.Page,
		SnapshotDate:  bookDate,
		Body:          rec.Text,
	}); err != nil {
		return fmt.Errorf("timeline entry for %s: %w", rec.ProcessNumber, err)
	}
	return nil
}

// resolveParties maps each carved party to its entity id, creating
// entities for bar numbers seen for the first time. Parties whose side
// could not be determined are still created but join neither list; the
// timeline body keeps their context.
func (r *Resolver) resolveParties(ctx context.Context, parties []extract.Party) (plaintiffs, defendants []uuid.UUID, err error) {
	if len(parties) == 0 {
		return nil, nil, nil
	}

	seen := map[string]extract.Party{}
	docs := make([]string, 0, len(parties))
	for _, p := range parties {
		if _, ok := seen[p.OAB]; ok {
			continue
		}
		seen[p.OAB] = p
		docs = append(docs, p.OAB)
	}

	known, err := r.parties.FindByDocuments(ctx, store.DocumentTypeOAB, docs)
	if err != nil {
		return nil, nil, fmt.Errorf("find parties: %w", err)
	}
	ids := make(map[string]uuid.UUID, len(docs))
	for _, p := range known {
		ids[p.Document] = p.ID
	}

	for _, doc := range docs {
		if _, ok := ids[doc]; ok {
			continue
		}
		created, err := r.parties.Create(ctx, seen[doc].Name, store.DocumentTypeOAB, doc)
		if store.IsUniqueViolation(err) {
			// Another worker created it between our lookup and insert.
			refetched, ferr := r.parties.FindByDocuments(ctx, store.DocumentTypeOAB, []string{doc})
			if ferr != nil {
				return nil, nil, fmt.Errorf("refetch party %s: %w", doc, ferr)
			}
			if len(refetched) == 0 {
				return nil, nil, fmt.Errorf("party %s vanished after unique violation", doc)
			}
			ids[doc] = refetched[0].ID
			continue
		}
		if err != nil {
			return nil, nil, fmt.Errorf("create party %s: %w", doc, err)
		}
		metrics.PartyCreated()
		ids[doc] = created.ID
	}

	for _, doc := range docs {
		switch seen[doc].Side {
		case extract.SidePlaintiff:
			plaintiffs = append(plaintiffs, ids[doc])
		case extract.SideDefendant:
			defendants = append(defendants, ids[doc])
		}
	}
	return plaintiffs, defendants, nil
}

func (r *Resolver) upsertCase(ctx context.Context, rec extract.Record, sourceID string, bookDate time.Time, plaintiffs, defendants []uuid.UUID) error {
	existing, err := r.cases.FindByProcess(ctx, rec.ProcessNumber)
	if err != nil {
		return fmt.Errorf("find case %s: %w", rec.ProcessNumber, err)
	}
	if existing == nil {
		_, err := r.cases.Create(ctx, store.CaseRecord{
			ProcessNumber: rec.ProcessNumber,
			Title:         rec.Title,
			Subjects:      rec.Subjects,
			PlaintiffIDs:  plaintiffs,
			DefendantIDs:  defendants,
			SourceID:      sourceID,
			Page:          rec.Page,
			BookDate:      bookDate,
		})
		if err == nil {
			return nil
		}
		if !store.IsUniqueViolation(err) {
			return fmt.Errorf("create case %s: %w", rec.ProcessNumber, err)
		}
		// Lost the create race; merge into the winner's row.
		existing, err = r.cases.FindByProcess(ctx, rec.ProcessNumber)
		if err != nil {
			return fmt.Errorf("refetch case %s: %w", rec.ProcessNumber, err)
		}
		if existing == nil {
			return fmt.Errorf("case %s vanished after unique violation", rec.ProcessNumber)
		}
	}

	// Merging unions participants and refreshes the title; subjects stay
	// as first recorded, later publications rarely restate them in full.
	merged := *existing
	merged.PlaintiffIDs = unionUUIDs(existing.PlaintiffIDs, plaintiffs)
	merged.DefendantIDs = unionUUIDs(existing.DefendantIDs, defendants)
	if rec.Title != "" {
		merged.Title = rec.Title
	}
	if !bookDate.Before(existing.BookDate) {
		merged.BookDate = bookDate
		merged.Page = rec.Page
	}
	if err := r.cases.Update(ctx, merged); err != nil {
		return fmt.Errorf("update case %s: %w", rec.ProcessNumber, err)
	}
	return nil
}

// unionUUIDs merges two id lists preserving first-seen order.
func unionUUIDs(a, b []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(a)+len(b))
	out := make([]uuid.UUID, 0, len(a)+len(b))
	for _, list := range [][]uuid.UUID{a, b} {
		for _, id := range list {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			out = append(out, id)
		}
	}
	return out
}
