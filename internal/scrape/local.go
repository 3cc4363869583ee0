package scrape

import (
	"compress/gzip"
	"context"
	"io"
	"mime"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/brotli"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/text/encoding/htmlindex"

	"github.com/sells-group/enrichment-worker/internal/model"
	"github.com/sells-group/enrichment-worker/internal/resilience"
)

// Scraper fetches HTML via net/http and harvests contacts from it.
type Scraper struct {
	client       *http.Client
	userAgent    string
	maxBodyBytes int64
	phoneRegion  string
}

// Option configures a Scraper.
type Option func(*Scraper)

// WithUserAgent overrides the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(s *Scraper) {
		if ua != "" {
			s.userAgent = ua
		}
	}
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(s *Scraper) {
		if d > 0 {
			s.client.Timeout = d
		}
	}
}

// WithMaxBodyBytes caps how much of the decoded body is read.
func WithMaxBodyBytes(n int64) Option {
	return func(s *Scraper) {
		if n > 0 {
			s.maxBodyBytes = n
		}
	}
}

// WithPhoneRegion selects the phone pattern used on page text.
func WithPhoneRegion(region string) Option {
	return func(s *Scraper) {
		if region != "" {
			s.phoneRegion = strings.ToUpper(region)
		}
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(s *Scraper) {
		if c != nil {
			s.client = c
		}
	}
}

// NewScraper creates a Scraper with a 15s timeout and the default
// User-Agent. Redirects are followed.
func NewScraper(opts ...Option) *Scraper {
	s := &Scraper{
		client: &http.Client{
			Timeout: 15 * time.Second,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{
					Timeout: 10 * time.Second,
				}).DialContext,
				TLSHandshakeTimeout: 10 * time.Second,
			},
		},
		userAgent:    DefaultUserAgent,
		maxBodyBytes: DefaultMaxBodyBytes,
		phoneRegion:  "AR",
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Extract fetches targetURL and harvests its contacts. Non-HTML and non-2xx
// responses yield empty Contacts with no error.
func (s *Scraper) Extract(ctx context.Context, targetURL string) resilience.Result[model.Contacts] {
	html, ok, err := s.fetch(ctx, targetURL)
	if err != nil {
		return resilience.Degrade(emptyContacts(), err)
	}
	if !ok {
		return resilience.OK(emptyContacts())
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return resilience.Degrade(emptyContacts(), eris.Wrap(err, "scrape: parse html"))
	}

	return resilience.OK(harvest(doc, html, targetURL, phonePattern(s.phoneRegion)))
}

// fetch returns the page decoded to UTF-8. ok is false when the response
// was not usable HTML.
func (s *Scraper) fetch(ctx context.Context, targetURL string) (html string, ok bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, targetURL, nil)
	if err != nil {
		return "", false, eris.Wrap(err, "scrape: create request")
	}
	req.Header.Set("User-Agent", s.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml;q=0.9,*/*;q=0.5")
	req.Header.Set("Accept-Encoding", "gzip, br")

	resp, err := s.client.Do(req)
	if err != nil {
		return "", false, eris.Wrap(err, "scrape: fetch")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		if resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusServiceUnavailable {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
			if bt := DetectBlock(resp.StatusCode, resp.Header, body); bt != BlockNone {
				zap.L().Debug("scrape: blocked",
					zap.String("url", targetURL),
					zap.String("block_type", string(bt)),
				)
			}
		}
		return "", false, nil
	}

	contentType := resp.Header.Get("Content-Type")
	if !isHTML(contentType) {
		return "", false, nil
	}

	body, err := decodeBody(resp.Body, resp.Header.Get("Content-Encoding"), contentType)
	if err != nil {
		return "", false, err
	}

	raw, err := io.ReadAll(io.LimitReader(body, s.maxBodyBytes))
	if err != nil {
		return "", false, eris.Wrap(err, "scrape: read body")
	}
	return string(raw), true, nil
}

func isHTML(contentType string) bool {
	ct := strings.ToLower(contentType)
	return strings.Contains(ct, "text/html") || strings.Contains(ct, "application/xhtml")
}

// decodeBody undoes the content encoding and converts the declared charset
// to UTF-8. Unknown charsets are passed through unchanged.
func decodeBody(r io.Reader, contentEncoding, contentType string) (io.Reader, error) {
	switch strings.ToLower(strings.TrimSpace(contentEncoding)) {
	case "", "identity":
	case "gzip", "x-gzip":
		gz, err := gzip.NewReader(r)
		if err != nil {
			return nil, eris.Wrap(err, "scrape: gzip reader")
		}
		r = gz
	case "br":
		r = brotli.NewReader(r)
	default:
		return nil, eris.Errorf("scrape: unsupported content encoding %q", contentEncoding)
	}

	_, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return r, nil
	}
	charset := params["charset"]
	if charset == "" {
		return r, nil
	}
	enc, err := htmlindex.Get(charset)
	if err != nil {
		zap.L().Debug("scrape: unknown charset", zap.String("charset", charset))
		return r, nil
	}
	return enc.NewDecoder().Reader(r), nil
}
