package gazette

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// ErrInvalidDate reports that the gazette publishes nothing for the
// requested date (weekend, holiday, or not yet released).
type ErrInvalidDate struct {
	Date   string
	Reason string
}

func (e *ErrInvalidDate) Error() string {
	return fmt.Sprintf("no gazette edition for %s: %s", e.Date, e.Reason)
}

// Client talks to the upstream consultation endpoints. The upstream wraps
// every JSON response in an ASP.NET-style {"d": ...} envelope.
type Client struct {
	httpClient *http.Client
	baseURL    string
	userAgent  string
	now        func() time.Time
}

// NewClient constructs a Client. httpClient may carry custom transports
// for tests; nil falls back to a 30 s default.
func NewClient(httpClient *http.Client, baseURL, userAgent string) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(baseURL, "/"),
		userAgent:  userAgent,
		now:        time.Now,
	}
}

type envelope struct {
	D string `json:"d"`
}

func (c *Client) getJSON(ctx context.Context, rawURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("get %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("get %s: unexpected status %d", rawURL, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return "", fmt.Errorf("decode envelope: %w", err)
	}
	return env.D, nil
}

// ValidateDate asks the upstream whether an edition exists for date
// (ISO yyyy-mm-dd). An empty "d" means valid; anything else is the
// upstream's rejection reason.
func (c *Client) ValidateDate(ctx context.Context, date string) error {
	rawURL := fmt.Sprintf(`%s/Caderno.asmx/ValidaDia?data=%s`, c.baseURL, url.QueryEscape(`"`+date+`"`))
	d, err := c.getJSON(ctx, rawURL)
	if err != nil {
		return err
	}
	if d != "" {
		return &ErrInvalidDate{Date: date, Reason: d}
	}
	return nil
}

// PageCount returns how many pages the category's edition has on date.
// The upstream wants the date in dd/mm/yyyy.
func (c *Client) PageCount(ctx context.Context, date, category string) (int, error) {
	if !ValidCategory(category) {
		return 0, fmt.Errorf("invalid category %q", category)
	}
	parts := strings.Split(date, "-")
	for i, j := 0, len(parts)-1; i < j; i, j = i+1, j-1 {
		parts[i], parts[j] = parts[j], parts[i]
	}
	dateBR := strings.Join(parts, "/")

	rawURL := fmt.Sprintf(`%s/Caderno.asmx/ConsultarQuantidadePaginas?dtPub=%s&codCaderno=%s`,
		c.baseURL,
		url.QueryEscape(`"`+dateBR+`"`),
		url.QueryEscape(`"`+category+`"`),
	)
	d, err := c.getJSON(ctx, rawURL)
	if err != nil {
		return 0, err
	}
	count, err := strconv.Atoi(strings.TrimSpace(d))
	if err != nil {
		return 0, fmt.Errorf("parse page count %q: %w", d, err)
	}
	return count, nil
}

// PDFURL builds the download URL for one page of one category's edition.
// The _dc timestamp defeats the upstream's response cache.
func (c *Client) PDFURL(date, category string, page int) string {
	return fmt.Sprintf("%s/pdf.aspx?dtPub=%s&caderno=%s&pagina=%d&_dc=%d",
		c.baseURL, date, category, page, c.now().UnixMilli())
}

// DownloadPDF fetches raw PDF bytes. Empty bodies are upstream glitches
// and reported as errors so the job retries.
func (c *Client) DownloadPDF(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download %s: unexpected status %d", rawURL, resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read pdf body: %w", err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("empty pdf from %s", rawURL)
	}
	return data, nil
}
