// Package source discovers a business's website and social profiles from
// search results.
package source

import (
	"context"
	"net/url"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/enrichment-worker/internal/model"
	"github.com/sells-group/enrichment-worker/internal/resilience"
	"github.com/sells-group/enrichment-worker/pkg/brave"
)

// socialDomain maps a platform domain to its source type. Matched in
// declaration order; the first hit wins.
type socialDomain struct {
	domain string
	typ    model.SourceType
}

var socialDomains = []socialDomain{
	{"instagram.com", model.SourceInstagram},
	{"facebook.com", model.SourceFacebook},
	{"linkedin.com", model.SourceLinkedIn},
	{"twitter.com", model.SourceTwitter},
	{"x.com", model.SourceTwitter},
}

// skipDomains are directories, review sites and maps that are never a
// business's own website.
var skipDomains = map[string]bool{
	"yelp.com":                true,
	"tripadvisor.com":         true,
	"tripadvisor.com.ar":      true,
	"google.com":              true,
	"google.com.ar":           true,
	"maps.google.com":         true,
	"paginasamarillas.com.ar": true,
	"paginasamarillas.com":    true,
	"yellowpages.com":         true,
	"wikipedia.org":           true,
	"youtube.com":             true,
	"guiaoleo.com.ar":         true,
	"restorando.com.ar":       true,
}

// Options holds the locale hints sent with every query.
type Options struct {
	Count      int
	Country    string
	SearchLang string
}

// Resolver queries the search collaborator and classifies the results.
type Resolver struct {
	search brave.Client
	opts   Options
}

// NewResolver creates a Resolver. A zero Count defaults to 10.
func NewResolver(search brave.Client, opts Options) *Resolver {
	if opts.Count <= 0 {
		opts.Count = 10
	}
	return &Resolver{search: search, opts: opts}
}

// Resolve searches for "name locality" and classifies the returned URLs.
// Search failures degrade to an empty Resolution; the error is carried in
// the Result and never returned on its own.
func (r *Resolver) Resolve(ctx context.Context, name, locality string) resilience.Result[model.Resolution] {
	query := strings.TrimSpace(name + " " + locality)

	resp, err := r.search.Search(ctx, query,
		brave.WithCount(r.opts.Count),
		brave.WithCountry(r.opts.Country),
		brave.WithSearchLang(r.opts.SearchLang),
	)
	if err != nil {
		return resilience.Degrade(emptyResolution(), eris.Wrapf(err, "source: search %q", query))
	}

	return resilience.OK(Classify(resp.URLs()))
}

// Classify applies the source rules to urls in order: social profiles first,
// then deny-listed hosts are dropped, then the first remaining URL becomes
// the website.
func Classify(urls []string) model.Resolution {
	res := emptyResolution()
	for _, u := range urls {
		if u == "" {
			continue
		}
		res.AllURLs = append(res.AllURLs, u)

		domain := Domain(u)
		if typ, ok := SocialType(domain); ok {
			res.Social = append(res.Social, model.SocialURL{Type: typ, URL: u})
			continue
		}
		if domain == "" || skipped(domain) {
			continue
		}
		if res.Website == "" {
			res.Website = u
		}
	}
	return res
}

// SocialType returns the social platform for a normalized host. The host
// must equal the platform domain or be a subdomain of it.
func SocialType(domain string) (model.SourceType, bool) {
	for _, sd := range socialDomains {
		if domain == sd.domain || strings.HasSuffix(domain, "."+sd.domain) {
			return sd.typ, true
		}
	}
	return "", false
}

// skipped reports whether domain or one of its parent domains is deny-listed.
func skipped(domain string) bool {
	for d := domain; d != ""; {
		if skipDomains[d] {
			return true
		}
		i := strings.IndexByte(d, '.')
		if i < 0 {
			return false
		}
		d = d[i+1:]
	}
	return false
}

// Domain returns the lowercased host of rawURL without a leading "www.".
// Unparseable input yields "".
func Domain(rawURL string) string {
	parsed, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return ""
	}
	host := strings.ToLower(parsed.Hostname())
	return strings.TrimPrefix(host, "www.")
}

func emptyResolution() model.Resolution {
	return model.Resolution{Social: []model.SocialURL{}, AllURLs: []string{}}
}
