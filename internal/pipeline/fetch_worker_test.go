package pipeline

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	blobmem "github.com/auctionlens/gazette-harvester/internal/blob/memory"
	"github.com/auctionlens/gazette-harvester/internal/gazette"
)

type fakeSource struct {
	pdf []byte
	err error
}

func (s *fakeSource) PDFURL(date, category string, page int) string {
	return fmt.Sprintf("https://example.test/pdf.aspx?dtPub=%s&caderno=%s&pagina=%d", date, category, page)
}

func (s *fakeSource) DownloadPDF(_ context.Context, _ string) ([]byte, error) {
	return s.pdf, s.err
}

func TestFetchWorkerPublishesConvertJob(t *testing.T) {
	t.Parallel()

	pub := newFakePublisher()
	blobs := blobmem.New()
	w := NewFetchWorker(&fakeSource{pdf: []byte("%PDF-1.4 fake")}, pub, blobs, "convert_pdf", zap.NewNop())

	job := NewFetchJob(gazette.SourceID, gazette.CategoryFirstCapital, 3, 120, "2024-05-10")
	body, err := json.Marshal(job)
	require.NoError(t, err)

	require.NoError(t, w.Handle(context.Background(), body))

	published := pub.topic("convert_pdf")
	require.Len(t, published, 1)
	var convert ConvertJob
	require.NoError(t, json.Unmarshal(published[0], &convert))
	assert.Equal(t, base64.StdEncoding.EncodeToString([]byte("%PDF-1.4 fake")), convert.Base64PDF)
	assert.Equal(t, gazette.SourceID, convert.Metadata.Source)
	assert.Equal(t, gazette.CategoryFirstCapital, convert.Metadata.Category)
	assert.Equal(t, 3, convert.Metadata.Page)
	assert.Equal(t, 120, convert.Metadata.PageQty)
	assert.Equal(t, 1, convert.Metadata.Instance)
	assert.Contains(t, convert.Metadata.URL, "pagina=3")

	backup, ok := blobs.Get("dje/2024-05-10/C/3.pdf")
	require.True(t, ok)
	assert.Equal(t, "%PDF-1.4 fake", string(backup))
}

func TestFetchWorkerRejectsInvalidJobs(t *testing.T) {
	t.Parallel()

	w := NewFetchWorker(&fakeSource{}, newFakePublisher(), nil, "convert_pdf", zap.NewNop())

	tests := []struct {
		name string
		body []byte
	}{
		{"malformed json", []byte("{")},
		{"unknown source", mustMarshal(t, NewFetchJob("OTHER", gazette.CategoryFirstCapital, 1, 10, "2024-05-10"))},
		{"unknown category", mustMarshal(t, NewFetchJob(gazette.SourceID, "Z", 1, 10, "2024-05-10"))},
		{"page out of range", mustMarshal(t, NewFetchJob(gazette.SourceID, gazette.CategoryFirstCapital, 11, 10, "2024-05-10"))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := w.Handle(context.Background(), tt.body)
			require.Error(t, err)
			assert.True(t, IsInvalid(err))
		})
	}
}

func TestFetchWorkerDownloadFailureIsRetryable(t *testing.T) {
	t.Parallel()

	w := NewFetchWorker(&fakeSource{err: errors.New("upstream 503")}, newFakePublisher(), nil, "convert_pdf", zap.NewNop())
	body := mustMarshal(t, NewFetchJob(gazette.SourceID, gazette.CategoryFirstCapital, 1, 10, "2024-05-10"))

	err := w.Handle(context.Background(), body)
	require.Error(t, err)
	assert.False(t, IsInvalid(err))
}

func mustMarshal(t *testing.T, v any) []byte {
	t.Helper()
	body, err := json.Marshal(v)
	require.NoError(t, err)
	return body
}
