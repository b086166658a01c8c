package ics

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	appLog "calfeed/internal/log"
)

// Source is a single feed URL.
type Source struct {
	// ID is used for logging; defaults to the URL.
	ID  string
	URL string
}

// FetchResult is the decoded body of one source.
type FetchResult struct {
	Source    Source
	Text      string
	FromCache bool // true if the cached body was reused (304 or fetch failure)
}

// FetchError reports a source that produced no body.
type FetchError struct {
	Source Source
	Err    error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s: %v", redactURL(e.Source.URL), e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// cacheEntry holds HTTP cache metadata for a single feed URL.
type cacheEntry struct {
	URL          string    `json:"url"`
	ETag         string    `json:"etag,omitempty"`
	LastModified string    `json:"last_modified,omitempty"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// FetcherConfig configures NewFetcher. Zero values get defaults.
type FetcherConfig struct {
	CacheDir     string
	UserAgent    string
	From         string
	Timeout      time.Duration
	RequestDelay time.Duration
	Decoder      *Decoder
	Client       *http.Client
}

// Fetcher downloads feeds with an ETag / Last-Modified disk cache.
type Fetcher struct {
	client    *http.Client
	cacheDir  string
	userAgent string
	from      string
	delay     time.Duration
	decoder   *Decoder
}

func NewFetcher(cfg FetcherConfig) *Fetcher {
	if cfg.CacheDir == "" {
		cfg.CacheDir = "./.cache/feeds"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.Decoder == nil {
		// The default charset is always known.
		cfg.Decoder, _ = NewDecoder(DefaultCharset)
	}
	client := cfg.Client
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	return &Fetcher{
		client:    client,
		cacheDir:  cfg.CacheDir,
		userAgent: cfg.UserAgent,
		from:      cfg.From,
		delay:     cfg.RequestDelay,
		decoder:   cfg.Decoder,
	}
}

// FetchAll fetches sources one after another, pausing between requests.
// Failed sources are logged and returned in the error slice; the result slice
// only holds sources that produced a body.
func (f *Fetcher) FetchAll(ctx context.Context, sources []Source) ([]FetchResult, []error) {
	results := make([]FetchResult, 0, len(sources))
	errs := make([]error, 0)

	for i, src := range sources {
		if src.ID == "" {
			src.ID = src.URL
		}
		if i > 0 && f.delay > 0 {
			select {
			case <-ctx.Done():
				errs = append(errs, ctx.Err())
				return results, errs
			case <-time.After(f.delay):
			}
		}

		res, err := f.FetchOne(ctx, src)
		if err != nil {
			errs = append(errs, &FetchError{Source: src, Err: err})
			appLog.Warn("feed will be skipped", "id", src.ID, "url", redactURL(src.URL), "err", err)
			continue
		}
		results = append(results, res)

		if (i+1)%25 == 0 {
			appLog.Debug("feed download progress", "done", i+1, "total", len(sources))
		}
	}

	return results, errs
}

// FetchOne fetches and decodes a single source, honoring ETag and
// Last-Modified from the disk cache keyed by a hash of the URL.
func (f *Fetcher) FetchOne(ctx context.Context, src Source) (FetchResult, error) {
	if src.URL == "" {
		return FetchResult{}, errors.New("source URL is empty")
	}
	if src.ID == "" {
		src.ID = src.URL
	}

	cachePath := f.cachePathForURL(src.URL)
	if err := os.MkdirAll(cachePath, 0o700); err != nil {
		return FetchResult{}, err
	}

	meta, _ := f.loadCacheMeta(cachePath)
	cachedBody, _ := f.loadCacheBody(cachePath)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src.URL, nil)
	if err != nil {
		return FetchResult{}, err
	}
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}
	if f.from != "" {
		req.Header.Set("From", f.from)
	}
	// Only trust validators when the body they describe is still on disk.
	if len(cachedBody) > 0 {
		if meta.ETag != "" {
			req.Header.Set("If-None-Match", meta.ETag)
		}
		if meta.LastModified != "" {
			req.Header.Set("If-Modified-Since", meta.LastModified)
		}
	}

	appLog.Debug("feed fetch start", "id", src.ID, "url", redactURL(src.URL))

	resp, err := f.client.Do(req)
	if err != nil {
		// *url.Error repeats the full request URL in its message.
		var ue *url.Error
		if errors.As(err, &ue) {
			ue.URL = redactURL(ue.URL)
		}
		if len(cachedBody) > 0 && ctx.Err() == nil {
			appLog.Warn("feed fetch network error, using cached body", "id", src.ID, "url", redactURL(src.URL), "err", err)
			return f.result(src, cachedBody, true), nil
		}
		return FetchResult{}, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		body, readErr := io.ReadAll(resp.Body)
		if readErr != nil {
			return FetchResult{}, readErr
		}

		newMeta := cacheEntry{
			URL:          src.URL,
			ETag:         resp.Header.Get("ETag"),
			LastModified: resp.Header.Get("Last-Modified"),
		}
		if err := f.saveCache(cachePath, newMeta, body); err != nil {
			// Log but still return the freshly fetched body.
			appLog.Error("feed cache save failed", err, "id", src.ID)
		}

		appLog.Debug("feed fetch success", "id", src.ID, "status", resp.StatusCode, "bytes", len(body))
		return f.result(src, body, false), nil

	case http.StatusNotModified:
		if len(cachedBody) == 0 {
			return FetchResult{}, errors.New("received 304 Not Modified but no cached body available")
		}
		appLog.Debug("feed not modified; using cache", "id", src.ID)
		return f.result(src, cachedBody, true), nil

	default:
		if len(cachedBody) > 0 {
			appLog.Warn("feed fetch non-OK, using cached body", "id", src.ID, "url", redactURL(src.URL), "status", resp.StatusCode)
			return f.result(src, cachedBody, true), nil
		}
		return FetchResult{}, errors.New(resp.Status)
	}
}

func (f *Fetcher) result(src Source, body []byte, fromCache bool) FetchResult {
	return FetchResult{
		Source:    src,
		Text:      f.decoder.Decode(body),
		FromCache: fromCache,
	}
}

func (f *Fetcher) cachePathForURL(rawURL string) string {
	sum := sha256.Sum256([]byte(rawURL))
	// Use first 16 hex chars as directory name.
	return filepath.Join(f.cacheDir, hex.EncodeToString(sum[:8]))
}

func (f *Fetcher) loadCacheMeta(cachePath string) (cacheEntry, error) {
	var meta cacheEntry
	data, err := os.ReadFile(filepath.Join(cachePath, "meta.json"))
	if err != nil {
		return meta, err
	}
	if err := json.Unmarshal(data, &meta); err != nil {
		return cacheEntry{}, err
	}
	return meta, nil
}

func (f *Fetcher) loadCacheBody(cachePath string) ([]byte, error) {
	return os.ReadFile(filepath.Join(cachePath, "body.ics"))
}

func (f *Fetcher) saveCache(cachePath string, meta cacheEntry, body []byte) error {
	// Write body first so meta never points at missing body.
	if err := os.WriteFile(filepath.Join(cachePath, "body.ics"), body, 0o600); err != nil {
		return err
	}

	meta.UpdatedAt = time.Now().UTC()
	data, err := json.MarshalIndent(&meta, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(cachePath, "meta.json"), data, 0o600)
}

// redactURL keeps only scheme and host so tokens in feed paths or query
// strings stay out of the logs.
//
//	https://example.com/path/to/private.ics?token=abcd
//	-> https://example.com/...(redacted)
func redactURL(u string) string {
	const redactedSuffix = "/...(redacted)"

	i := strings.Index(u, "://")
	if i == -1 {
		return "ics://...(redacted)"
	}
	host := u[i+3:]
	if j := strings.IndexAny(host, "/?#"); j != -1 {
		host = host[:j]
	}
	return u[:i+3] + host + redactedSuffix
}
