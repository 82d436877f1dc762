package scrape

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func TestNormalizeURL(t *testing.T) {
	assert.Equal(t, "https://acme.example", NormalizeURL("acme.example"))
	assert.Equal(t, "https://acme.example", NormalizeURL("  acme.example "))
	assert.Equal(t, "http://acme.example", NormalizeURL("http://acme.example"))
	assert.Equal(t, "https://acme.example", NormalizeURL("https://acme.example"))
	assert.Equal(t, "", NormalizeURL(""))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", Truncate("short", 100))
	long := strings.Repeat("word ", 1000)
	cut := Truncate(long, 2000)
	assert.LessOrEqual(t, len(cut), 2000)
	assert.False(t, strings.HasSuffix(cut, " "))
	assert.Equal(t, "unbounded", Truncate("unbounded", 0))
}

func TestStripHTML(t *testing.T) {
	html := `<html><head><title>Acme</title><style>.x{color:red}</style>
	<script>alert(1)</script></head>
	<body><h1>Acme &amp; Co</h1><p>We   make widgets.</p><!-- hidden --></body></html>`
	text := stripHTML(html)
	assert.Equal(t, "Acme Acme & Co We make widgets.", text)
	assert.NotContains(t, text, "alert")
	assert.NotContains(t, text, "color:red")
	assert.NotContains(t, text, "hidden")
}

func TestLocalScraper(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><head><title>Acme Inc</title></head><body>` +
			strings.Repeat("<p>Acme makes widgets for industry.</p>", 20) + `</body></html>`))
	}))
	defer srv.Close()

	s := NewLocalScraper(5 * time.Second)
	res, err := s.Scrape(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "Acme Inc", res.Title)
	assert.Contains(t, res.Text, "Acme makes widgets")
	assert.Equal(t, "local_http", res.Source)
}

func TestLocalScraperServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	s := NewLocalScraper(5 * time.Second)
	_, err := s.Scrape(context.Background(), srv.URL)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 500")
}

func TestLocalScraperDetectsCaptcha(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><body>please solve this recaptcha to continue</body></html>`))
	}))
	defer srv.Close()

	s := NewLocalScraper(5 * time.Second)
	_, err := s.Scrape(context.Background(), srv.URL)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "blocked (captcha)")
}

// scripted scraper for chain tests.
type fakeScraper struct {
	name     string
	supports bool
	result   *Result
	err      error
	calls    int
}

func (f *fakeScraper) Name() string            { return f.name }
func (f *fakeScraper) Supports(_ string) bool  { return f.supports }
func (f *fakeScraper) Scrape(_ context.Context, url string) (*Result, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

func TestChainFallsThrough(t *testing.T) {
	first := &fakeScraper{name: "first", supports: true, err: eris.New("blocked")}
	second := &fakeScraper{name: "second", supports: true, result: &Result{Text: "hello world text", Source: "second"}}

	chain := NewChain(2000, first, second)
	res, err := chain.Scrape(context.Background(), "acme.example")
	require.NoError(t, err)
	assert.Equal(t, "second", res.Source)
	assert.Equal(t, 1, first.calls)
	assert.Equal(t, 1, second.calls)
}

func TestChainSkipsUnsupported(t *testing.T) {
	open := &fakeScraper{name: "tripped", supports: false}
	ok := &fakeScraper{name: "ok", supports: true, result: &Result{Text: "content here please", Source: "ok"}}

	chain := NewChain(2000, open, ok)
	res, err := chain.Scrape(context.Background(), "acme.example")
	require.NoError(t, err)
	assert.Equal(t, "ok", res.Source)
	assert.Zero(t, open.calls)
}

func TestChainAllFail(t *testing.T) {
	s := &fakeScraper{name: "only", supports: true, err: eris.New("down")}
	chain := NewChain(2000, s)
	_, err := chain.Scrape(context.Background(), "acme.example")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "all scrapers failed")
}

func TestChainBoundsText(t *testing.T) {
	s := &fakeScraper{name: "long", supports: true, result: &Result{Text: strings.Repeat("a ", 5000)}}
	chain := NewChain(100, s)
	res, err := chain.Scrape(context.Background(), "acme.example")
	require.NoError(t, err)
	assert.LessOrEqual(t, len(res.Text), 100)
}

func TestCircuitBreakerTripsAndCools(t *testing.T) {
	cb := newCircuitBreaker(2, time.Minute, 50*time.Millisecond)
	assert.False(t, cb.isOpen())
	cb.recordFailure()
	assert.False(t, cb.isOpen())
	cb.recordFailure()
	assert.True(t, cb.isOpen())

	time.Sleep(60 * time.Millisecond)
	assert.False(t, cb.isOpen())

	cb.recordSuccess()
	cb.recordFailure()
	assert.False(t, cb.isOpen(), "success resets the failure count")
}
