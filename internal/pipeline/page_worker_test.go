package pipeline

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/auctionlens/gazette-harvester/internal/extract"
	"github.com/auctionlens/gazette-harvester/internal/gazette"
	"github.com/auctionlens/gazette-harvester/internal/store"
)

type fakePageStore struct {
	books map[string]map[int]string
	qty   map[string]int
}

func newFakePageStore() *fakePageStore {
	return &fakePageStore{books: map[string]map[int]string{}, qty: map[string]int{}}
}

func (s *fakePageStore) AddPage(_ context.Context, bookID string, page, pageQty int, text string) (bool, error) {
	if s.books[bookID] == nil {
		s.books[bookID] = map[int]string{}
	}
	s.qty[bookID] = pageQty
	if _, ok := s.books[bookID][page]; ok {
		return false, nil
	}
	s.books[bookID][page] = text
	return true, nil
}

func (s *fakePageStore) IsComplete(_ context.Context, bookID string, pageQty int) (bool, error) {
	return len(s.books[bookID]) >= pageQty, nil
}

func (s *fakePageStore) OrderedBook(_ context.Context, bookID string) (string, error) {
	pages := s.books[bookID]
	numbers := make([]int, 0, len(pages))
	for n := range pages {
		numbers = append(numbers, n)
	}
	sort.Ints(numbers)
	var b strings.Builder
	for _, n := range numbers {
		b.WriteString("\n\n")
		b.WriteString(strings.TrimSpace(pages[n]))
	}
	return b.String(), nil
}

func (s *fakePageStore) Purge(_ context.Context, bookID string) error {
	delete(s.books, bookID)
	return nil
}

func (s *fakePageStore) Pages(_ context.Context, bookID string) ([]store.StoredPage, error) {
	numbers := make([]int, 0, len(s.books[bookID]))
	for n := range s.books[bookID] {
		numbers = append(numbers, n)
	}
	sort.Ints(numbers)
	var out []store.StoredPage
	for _, n := range numbers {
		out = append(out, store.StoredPage{Number: n, PageQty: s.qty[bookID], Text: s.books[bookID][n]})
	}
	return out, nil
}

type fakeClaimStore struct {
	allow    bool
	acquired []string
	released []string
	finished []string
	reset    []string
}

func (s *fakeClaimStore) Acquire(_ context.Context, bookID string, _ time.Duration) (bool, error) {
	if !s.allow {
		return false, nil
	}
	s.acquired = append(s.acquired, bookID)
	return true, nil
}

func (s *fakeClaimStore) Release(_ context.Context, bookID string) error {
	s.released = append(s.released, bookID)
	return nil
}

func (s *fakeClaimStore) Finish(_ context.Context, bookID string) error {
	s.finished = append(s.finished, bookID)
	return nil
}

func (s *fakeClaimStore) Reset(_ context.Context, bookID string) error {
	s.reset = append(s.reset, bookID)
	return nil
}

type fakeResolver struct {
	resolved []extract.Record
	err      error
}

func (r *fakeResolver) Resolve(_ context.Context, rec extract.Record, _ string, _ time.Time) error {
	if r.err != nil {
		return r.err
	}
	r.resolved = append(r.resolved, rec)
	return nil
}

// rawBody renders page text the way the upstream converter emits it:
// masthead near the top, official footer at the bottom, and on pages
// after the first a standalone page-number paragraph before the content.
func rawBody(page int, content string) string {
	head := fmt.Sprintf("Ano 16 – nº 123/%d\nDiário da Justiça Eletrônico", time.Now().Year())
	mid := "\n"
	if page > 1 {
		mid = fmt.Sprintf(" \n\n%d \n\n", page)
	}
	return head + mid + content + "\n" + gazette.PageFooter
}

func caseParagraph() string {
	return "045. DESPEJO 0001234-56.2024.8.19.0001 - Ação de despejo por falta de pagamento " +
		"movida contra o réu, com pedido de citação e penhora de bens para garantia do juízo. " +
		"Assunto: Cobrança Origem: Capital. ADV: MARIA DA SILVA (OAB/RJ-111222)"
}

func processedBody(t *testing.T, page, qty int, content string) []byte {
	t.Helper()
	return mustMarshal(t, ProcessedPage{
		SourceID: gazette.SourceID,
		Text:     rawBody(page, content),
		Metadata: PageMetadata{
			Source:   gazette.SourceID,
			Category: gazette.CategoryFirstCapital,
			Date:     "2024-05-10",
			Page:     page,
			PageQty:  qty,
			Instance: 1,
		},
	})
}

func newTestWorker(pages *fakePageStore, claims *fakeClaimStore, resolver *fakeResolver) *PageWorker {
	return NewPageWorker(pages, claims, resolver, gazette.NewNormalizer(),
		extract.New(extract.DefaultConfig(), zap.NewNop()), 15*time.Minute, zap.NewNop())
}

func TestPageWorkerExtractsCompletedBook(t *testing.T) {
	t.Parallel()

	pages := newFakePageStore()
	claims := &fakeClaimStore{allow: true}
	resolver := &fakeResolver{}
	w := newTestWorker(pages, claims, resolver)

	require.NoError(t, w.Handle(context.Background(), processedBody(t, 1, 1, caseParagraph())))

	label := gazette.CategoryLabels[gazette.CategoryFirstCapital]
	bookID := gazette.BookID("2024-05-10", label)

	// The raw backup survives the purge of the normalized pages.
	assert.Contains(t, pages.books, gazette.RawBookID("2024-05-10", label))
	assert.NotContains(t, pages.books, bookID)

	require.Len(t, resolver.resolved, 1)
	assert.Equal(t, "0001234-56.2024.8.19.0001", resolver.resolved[0].ProcessNumber)
	assert.Equal(t, 1, resolver.resolved[0].Page)

	assert.Equal(t, []string{bookID}, claims.acquired)
	assert.Equal(t, []string{bookID}, claims.finished)
	assert.Empty(t, claims.released)
}

func TestPageWorkerWaitsForMissingPages(t *testing.T) {
	t.Parallel()

	pages := newFakePageStore()
	claims := &fakeClaimStore{allow: true}
	resolver := &fakeResolver{}
	w := newTestWorker(pages, claims, resolver)

	require.NoError(t, w.Handle(context.Background(), processedBody(t, 1, 2, caseParagraph())))

	assert.Empty(t, claims.acquired)
	assert.Empty(t, resolver.resolved)
}

func TestPageWorkerSkipsWhenClaimLost(t *testing.T) {
	t.Parallel()

	pages := newFakePageStore()
	claims := &fakeClaimStore{allow: false}
	resolver := &fakeResolver{}
	w := newTestWorker(pages, claims, resolver)

	require.NoError(t, w.Handle(context.Background(), processedBody(t, 1, 1, caseParagraph())))
	assert.Empty(t, resolver.resolved)
	assert.Empty(t, claims.finished)
}

func TestPageWorkerRejectsInvalidDeliveries(t *testing.T) {
	t.Parallel()

	w := newTestWorker(newFakePageStore(), &fakeClaimStore{allow: true}, &fakeResolver{})

	tests := []struct {
		name string
		body []byte
	}{
		{"malformed json", []byte("{")},
		{"unknown source", mustMarshal(t, ProcessedPage{SourceID: "OTHER", Text: "x",
			Metadata: PageMetadata{Source: "OTHER", Category: "C", Date: "2024-05-10", Page: 1, PageQty: 1}})},
		{"unknown category", mustMarshal(t, ProcessedPage{SourceID: gazette.SourceID, Text: "x",
			Metadata: PageMetadata{Category: "Z", Date: "2024-05-10", Page: 1, PageQty: 1}})},
		{"bad date", mustMarshal(t, ProcessedPage{SourceID: gazette.SourceID, Text: "x",
			Metadata: PageMetadata{Category: "C", Date: "10/05/2024", Page: 1, PageQty: 1}})},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := w.Handle(context.Background(), tt.body)
			require.Error(t, err)
			assert.True(t, IsInvalid(err), "want invalid-input error, got %v", err)
		})
	}
}

func TestPageWorkerRetriesUnpublishedLayout(t *testing.T) {
	t.Parallel()

	w := newTestWorker(newFakePageStore(), &fakeClaimStore{allow: true}, &fakeResolver{})
	body := mustMarshal(t, ProcessedPage{SourceID: gazette.SourceID, Text: "not a gazette page",
		Metadata: PageMetadata{Category: "C", Date: "2024-05-10", Page: 1, PageQty: 1}})

	// The edition may simply not be published yet, so a layout mismatch
	// must stay retryable instead of being treated as invalid input.
	err := w.Handle(context.Background(), body)
	require.ErrorIs(t, err, gazette.ErrBadLayout)
	assert.False(t, IsInvalid(err))

	pub := newFakePublisher()
	h := WithRetry(RetryPolicy{MaxAttempts: 5, RequeueDelay: 10 * time.Second}, pub, "processed_pdf", zap.NewNop(), w.Handle)
	d := &fakeDelivery{body: body, attempts: 1}
	h(context.Background(), d)

	assert.True(t, d.requeued)
	assert.False(t, d.finished)
	assert.Empty(t, pub.topic("processed_pdf.deadletter"))
}

func TestPageWorkerThreePagesOutOfOrderWithDuplicate(t *testing.T) {
	t.Parallel()

	pages := newFakePageStore()
	claims := &fakeClaimStore{allow: true}
	resolver := &fakeResolver{}
	w := newTestWorker(pages, claims, resolver)

	thirdCase := "101. EXECUÇÃO Proc. 0009999-11.2024.8.19.0003 - Penhora de bens do executado " +
		"determinada para garantia integral do juízo, intimadas as partes para manifestação " +
		"no prazo legal. ADV: ANA LIMA (RJ-444333)"
	secondCase := "099. COBRANÇA Proc. 0007777-88.2024.8.19.0002 - Sentença de extinção do feito " +
		"nos termos do artigo, intimadas as partes para ciência do inteiro teor da decisão " +
		"publicada neste caderno. ADV: PEDRO ALVES (RJ-555666)"

	// Pages arrive 2, 1, 2 again, 3; nothing extracts until the book is
	// whole, and the duplicate delivery must not double anything.
	require.NoError(t, w.Handle(context.Background(), processedBody(t, 2, 3, secondCase)))
	require.NoError(t, w.Handle(context.Background(), processedBody(t, 1, 3, caseParagraph())))
	assert.Empty(t, resolver.resolved)
	require.NoError(t, w.Handle(context.Background(), processedBody(t, 2, 3, secondCase)))
	assert.Empty(t, resolver.resolved)
	require.NoError(t, w.Handle(context.Background(), processedBody(t, 3, 3, thirdCase)))

	bookID := gazette.BookID("2024-05-10", gazette.CategoryLabels[gazette.CategoryFirstCapital])
	assert.Equal(t, []string{bookID}, claims.acquired)
	assert.Equal(t, []string{bookID}, claims.finished)

	require.Len(t, resolver.resolved, 3)
	byProcess := map[string]int{}
	for _, rec := range resolver.resolved {
		byProcess[rec.ProcessNumber]++
	}
	assert.Equal(t, map[string]int{
		"0001234-56.2024.8.19.0001": 1,
		"0007777-88.2024.8.19.0002": 1,
		"0009999-11.2024.8.19.0003": 1,
	}, byProcess)
	assert.Equal(t, 1, resolver.resolved[0].Page)
	assert.Equal(t, 2, resolver.resolved[1].Page)
	assert.Equal(t, 3, resolver.resolved[2].Page)
}

func TestPageWorkerAssemblesMultiPageBook(t *testing.T) {
	t.Parallel()

	pages := newFakePageStore()
	claims := &fakeClaimStore{allow: true}
	resolver := &fakeResolver{}
	w := newTestWorker(pages, claims, resolver)

	secondCase := "099. COBRANÇA Proc. 0007777-88.2024.8.19.0002 - Sentença de extinção do feito " +
		"nos termos do artigo, intimadas as partes para ciência do inteiro teor da decisão " +
		"publicada neste caderno. ADV: PEDRO ALVES (RJ-555666)"

	require.NoError(t, w.Handle(context.Background(), processedBody(t, 2, 2, secondCase)))
	assert.Empty(t, resolver.resolved)

	require.NoError(t, w.Handle(context.Background(), processedBody(t, 1, 2, caseParagraph())))

	require.Len(t, resolver.resolved, 2)
	assert.Equal(t, "0001234-56.2024.8.19.0001", resolver.resolved[0].ProcessNumber)
	assert.Equal(t, 1, resolver.resolved[0].Page)
	assert.Equal(t, "0007777-88.2024.8.19.0002", resolver.resolved[1].ProcessNumber)
	assert.Equal(t, 2, resolver.resolved[1].Page)
}

func TestReplayerRebuildsFromRawBackup(t *testing.T) {
	t.Parallel()

	pages := newFakePageStore()
	claims := &fakeClaimStore{allow: true}
	resolver := &fakeResolver{}
	w := newTestWorker(pages, claims, resolver)

	label := gazette.CategoryLabels[gazette.CategoryFirstCapital]
	rawID := gazette.RawBookID("2024-05-10", label)
	_, err := pages.AddPage(context.Background(), rawID, 1, 1, rawBody(1, caseParagraph()))
	require.NoError(t, err)

	replayer := NewReplayer(w, pages, claims, zap.NewNop())
	n, err := replayer.Replay(context.Background(), "2024-05-10", gazette.CategoryFirstCapital)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	bookID := gazette.BookID("2024-05-10", label)
	assert.Equal(t, []string{bookID}, claims.reset)
	require.Len(t, resolver.resolved, 1)
	assert.Equal(t, "0001234-56.2024.8.19.0001", resolver.resolved[0].ProcessNumber)
}

func TestReplayerFailsWithoutRawBackup(t *testing.T) {
	t.Parallel()

	pages := newFakePageStore()
	w := newTestWorker(pages, &fakeClaimStore{allow: true}, &fakeResolver{})
	replayer := NewReplayer(w, pages, &fakeClaimStore{allow: true}, zap.NewNop())

	_, err := replayer.Replay(context.Background(), "2024-05-10", gazette.CategoryFirstCapital)
	require.Error(t, err)
}
