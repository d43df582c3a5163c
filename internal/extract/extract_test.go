package extract

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const (
	proc1 = "0001234-56.2024.8.19.0001"
	proc2 = "0007777-88.2024.8.19.0002"
)

// markedPage renders text the way the page normalizer does, with a page
// marker on every line.
func markedPage(page int, text string) string {
	marker := fmt.Sprintf("\n[[page:%d]]", page)
	return strings.TrimSpace(marker + strings.ReplaceAll(text, "\n", marker))
}

func buildBook(pages ...string) string {
	return strings.Join(pages, "\n\n")
}

func sampleBook() string {
	rec1 := "045. DESPEJO " + proc1 +
		" - Ação de despejo por falta de pagamento movida contra o réu, com pedido de citação.\n" +
		"Assunto: Despesas Condominiais / Cobrança Origem: Capital 12 Vara Civel. " +
		"ADV: MARIA DA SILVA (OAB/RJ-111222) REQDO: FULANO DE TAL ADV: JOSE SANTOS (98765/RJ)"
	rec2 := "Proc. " + proc2 +
		" - Sentença de extinção do feito nos termos do artigo, intimadas as partes para ciência " +
		"do inteiro teor da decisão publicada neste caderno. ADV: PEDRO ALVES (RJ-555666)"
	return buildBook(markedPage(3, "Intimações da 12ª Vara Cível\n\n"+rec1+"\n\n"+rec2))
}

func TestScanBookCarvesRecords(t *testing.T) {
	e := New(DefaultConfig(), zap.NewNop())

	records := e.ScanBook(sampleBook())
	require.Len(t, records, 2)

	first := records[0]
	assert.Equal(t, proc1, first.ProcessNumber)
	assert.Equal(t, 3, first.Page)
	assert.Equal(t, "DESPEJO", first.Title)
	assert.Equal(t, []string{"despesas condominiais", "cobrança"}, first.Subjects)
	require.Len(t, first.Parties, 2)
	assert.Equal(t, Party{Name: "Maria Da Silva", OAB: "RJ-111222", Side: SidePlaintiff}, first.Parties[0])
	assert.Equal(t, Party{Name: "Jose Santos", OAB: "98765/RJ", Side: SideDefendant}, first.Parties[1])
	assert.NotContains(t, first.Text, "[[page:")
	assert.NotContains(t, first.Text, proc2)

	second := records[1]
	assert.Equal(t, proc2, second.ProcessNumber)
	assert.Equal(t, 3, second.Page)
	assert.Equal(t, "", second.Title)
	require.Len(t, second.Parties, 1)
	assert.Equal(t, Party{Name: "Pedro Alves", OAB: "RJ-555666", Side: SideUnknown}, second.Parties[0])
}

func TestScanBookIsDeterministic(t *testing.T) {
	e := New(DefaultConfig(), zap.NewNop())
	book := sampleBook()

	first := e.ScanBook(book)
	second := e.ScanBook(book)
	assert.Equal(t, first, second)
}

func TestScanBookRecordsDoNotOverlap(t *testing.T) {
	e := New(DefaultConfig(), zap.NewNop())

	records := e.ScanBook(sampleBook())
	require.Len(t, records, 2)
	// Each block is consumed exactly once; the second must not repeat any
	// of the first's text.
	assert.NotContains(t, records[1].Text, "DESPEJO")
	assert.NotContains(t, records[0].Text, "Sentença")
}

func TestScanBookRejectsShortBlocks(t *testing.T) {
	e := New(DefaultConfig(), zap.NewNop())

	book := buildBook(markedPage(1, "Proc. "+proc1+" curto."))
	assert.Empty(t, e.ScanBook(book))
}

func TestScanBookShortBlockDoesNotFallThrough(t *testing.T) {
	e := New(DefaultConfig(), zap.NewNop())

	// A short "Proc." block ends the attempt for that occurrence; the
	// ordinal anchor must not reach ahead to the later heading and swallow
	// the record sitting in between.
	short := "Proc. " + proc1 + " curto."
	middle := "Proc. " + proc2 +
		" - Sentença de extinção do feito nos termos do artigo, intimadas as partes para ciência " +
		"do inteiro teor da decisão publicada neste caderno. ADV: PEDRO ALVES (RJ-555666)"
	heading := "045. DESPEJO " + proc1 +
		" - Ação de despejo por falta de pagamento movida contra o réu, com pedido de citação " +
		"e penhora de bens para garantia do juízo. ADV: MARIA DA SILVA (OAB/RJ-111222)"
	book := buildBook(markedPage(1, short+"\n\n"+middle+"\n\n"+heading))

	records := e.ScanBook(book)
	require.Len(t, records, 2)
	assert.Equal(t, proc2, records[0].ProcessNumber)
	assert.Equal(t, proc1, records[1].ProcessNumber)
	assert.Equal(t, "DESPEJO", records[1].Title)
	for _, rec := range records {
		assert.NotContains(t, rec.Text, "curto")
	}
}

func TestScanBookRejectsWidePageSpan(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxPageSpan = 2
	e := New(cfg, zap.NewNop())

	long := "edital de citação publicado no caderno para os devidos fins de direito e ciência geral"
	book := buildBook(
		markedPage(1, long),
		markedPage(2, long),
		markedPage(3, long+"\n\nProc. "+proc1+" - "+long+" "+long+" ADV: ANA LIMA (RJ-999888)"),
	)
	assert.Empty(t, e.ScanBook(book))
}

func TestScanBookEmptyInput(t *testing.T) {
	e := New(DefaultConfig(), zap.NewNop())
	assert.Empty(t, e.ScanBook(""))
	assert.Empty(t, e.ScanBook(markedPage(1, "nenhum processo neste trecho")))
}

func TestExtractPartiesVersusFallback(t *testing.T) {
	text := "JOAO PEREIRA (RJ-111111)  X  EMPRESA RE LTDA ADV: ANA LIMA (222333/RJ)"
	parties := ExtractParties(text)
	require.Len(t, parties, 2)
	assert.Equal(t, Party{Name: "Joao Pereira", OAB: "RJ-111111", Side: SidePlaintiff}, parties[0])
	assert.Equal(t, Party{Name: "Ana Lima", OAB: "222333/RJ", Side: SideDefendant}, parties[1])
}

func TestExtractPartiesNoSeparator(t *testing.T) {
	parties := ExtractParties("ADV: CARLOS MOURA (OAB/SP-42)")
	require.Len(t, parties, 1)
	assert.Equal(t, Party{Name: "Carlos Moura", OAB: "SP-42", Side: SideUnknown}, parties[0])
}

func TestExtractPartiesNoBarNumbers(t *testing.T) {
	assert.Empty(t, ExtractParties("despacho sem advogados constituídos"))
}

func TestCleanPersonName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{" MARIA   DA SILVA (", "Maria Da Silva"},
		{"JOSÉ D'AVILA-SOUZA", "José D'avila-souza"},
		{"  ", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, CleanPersonName(tt.in))
	}
}

func TestStripRTF(t *testing.T) {
	in := `\bNegrito\b0 e \ulSublinhado\ulnone\par \pard`
	assert.Equal(t, "Negrito e Sublinhado", StripRTF(in))
}

func TestExtractSubjects(t *testing.T) {
	got := ExtractSubjects("despacho\nAssunto: Dano Moral / Cobrança\nOrigem: Capital")
	assert.Equal(t, []string{"dano moral", "cobrança"}, got)

	assert.Empty(t, ExtractSubjects("despacho sem linha de assunto"))
}
