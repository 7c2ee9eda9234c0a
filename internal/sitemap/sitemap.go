package sitemap

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"time"
)

// Entry is one candidate URL extracted from a sitemap. LastMod is the zero
// time when the sitemap carried no usable modification timestamp.
type Entry struct {
	URL     string
	LastMod time.Time
}

// lastmod values appear in either full RFC3339 or date-only form
var lastModFormats = []string{
	time.RFC3339,
	"2006-01-02",
}

// Extractor fetches sitemap documents and extracts candidate URLs
type Extractor struct {
	httpClient *http.Client
	logger     *slog.Logger
}

// NewExtractor creates a sitemap extractor
func NewExtractor(timeout time.Duration, logger *slog.Logger) *Extractor {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &Extractor{
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

// Fetch downloads a sitemap and returns its entries sorted newest first.
// An unreachable document is an error; malformed entries inside a reachable
// document are skipped silently.
func (e *Extractor) Fetch(ctx context.Context, sitemapURL string) ([]Entry, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sitemapURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build sitemap request: %w", err)
	}

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch sitemap: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("sitemap fetch returned status %d", resp.StatusCode)
	}

	entries := Parse(resp.Body)

	e.logger.Info("Sitemap fetched",
		slog.String("sitemap_url", sitemapURL),
		slog.Int("entries", len(entries)),
	)

	return entries, nil
}

// Parse extracts (url, lastmod) pairs from a sitemap document, sorted
// descending by lastmod with undated entries last. Parsing is
// element-by-element and tolerant: unmatched or malformed tags end the scan
// without discarding entries already collected.
func Parse(r io.Reader) []Entry {
	decoder := xml.NewDecoder(r)
	decoder.Strict = false

	var entries []Entry
	var current *Entry
	var field string

	for {
		token, err := decoder.Token()
		if err != nil {
			// io.EOF or a document broken beyond this point; keep
			// everything collected so far
			break
		}

		switch tok := token.(type) {
		case xml.StartElement:
			switch tok.Name.Local {
			case "url":
				current = &Entry{}
			case "loc", "lastmod":
				field = tok.Name.Local
			default:
				field = ""
			}

		case xml.CharData:
			if current == nil || field == "" {
				continue
			}

			text := strings.TrimSpace(string(tok))
			if text == "" {
				continue
			}

			switch field {
			case "loc":
				current.URL = text
			case "lastmod":
				current.LastMod = parseLastMod(text)
			}

		case xml.EndElement:
			switch tok.Name.Local {
			case "url":
				if current != nil && current.URL != "" {
					entries = append(entries, *current)
				}
				current = nil
			case "loc", "lastmod":
				field = ""
			}
		}
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].LastMod.After(entries[j].LastMod)
	})

	return entries
}

// parseLastMod returns the zero time for timestamps in no known format
func parseLastMod(value string) time.Time {
	for _, format := range lastModFormats {
		if t, err := time.Parse(format, value); err == nil {
			return t
		}
	}
	return time.Time{}
}
