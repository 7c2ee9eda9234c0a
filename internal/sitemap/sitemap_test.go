package sitemap

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleSitemap = `<?xml version="1.0" encoding="UTF-8"?>
<urlset xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">
  <url>
    <loc>https://shop.example.com/products/older</loc>
    <lastmod>2026-01-10</lastmod>
  </url>
  <url>
    <loc>https://shop.example.com/products/newest</loc>
    <lastmod>2026-02-20T08:30:00Z</lastmod>
  </url>
  <url>
    <loc>https://shop.example.com/products/undated</loc>
  </url>
  <url>
    <loc>https://shop.example.com/products/middle</loc>
    <lastmod>2026-02-01</lastmod>
  </url>
</urlset>`

func TestParse_SortsNewestFirst(t *testing.T) {
	entries := Parse(strings.NewReader(sampleSitemap))

	require.Len(t, entries, 4)
	assert.Equal(t, "https://shop.example.com/products/newest", entries[0].URL)
	assert.Equal(t, "https://shop.example.com/products/middle", entries[1].URL)
	assert.Equal(t, "https://shop.example.com/products/older", entries[2].URL)

	// Entries without a usable lastmod sort last
	assert.Equal(t, "https://shop.example.com/products/undated", entries[3].URL)
	assert.True(t, entries[3].LastMod.IsZero())
}

func TestParse_UnparseableLastModTreatedAsUndated(t *testing.T) {
	doc := `<urlset>
  <url>
    <loc>https://shop.example.com/products/a</loc>
    <lastmod>whenever</lastmod>
  </url>
</urlset>`

	entries := Parse(strings.NewReader(doc))

	require.Len(t, entries, 1)
	assert.True(t, entries[0].LastMod.IsZero())
}

func TestParse_SkipsEntriesWithoutLoc(t *testing.T) {
	doc := `<urlset>
  <url>
    <lastmod>2026-02-01</lastmod>
  </url>
  <url>
    <loc>https://shop.example.com/products/a</loc>
  </url>
</urlset>`

	entries := Parse(strings.NewReader(doc))

	require.Len(t, entries, 1)
	assert.Equal(t, "https://shop.example.com/products/a", entries[0].URL)
}

func TestParse_TruncatedDocumentKeepsCollectedEntries(t *testing.T) {
	doc := `<urlset>
  <url>
    <loc>https://shop.example.com/products/a</loc>
    <lastmod>2026-02-01</lastmod>
  </url>
  <url>
    <loc>https://shop.example.com/products/b`

	entries := Parse(strings.NewReader(doc))

	require.Len(t, entries, 1)
	assert.Equal(t, "https://shop.example.com/products/a", entries[0].URL)
}

func TestParse_EmptyDocument(t *testing.T) {
	entries := Parse(strings.NewReader(""))
	assert.Empty(t, entries)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestFetch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/sitemap.xml":
			w.Write([]byte(sampleSitemap))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	extractor := NewExtractor(5*time.Second, testLogger())

	t.Run("reachable sitemap", func(t *testing.T) {
		entries, err := extractor.Fetch(context.Background(), server.URL+"/sitemap.xml")
		require.NoError(t, err)
		assert.Len(t, entries, 4)
	})

	t.Run("non-200 response is an error", func(t *testing.T) {
		_, err := extractor.Fetch(context.Background(), server.URL+"/missing.xml")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "404")
	})

	t.Run("unreachable host is an error", func(t *testing.T) {
		_, err := extractor.Fetch(context.Background(), "http://127.0.0.1:1/sitemap.xml")
		require.Error(t, err)
	})
}
