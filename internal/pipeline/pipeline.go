// Package pipeline enriches businesses with contact information and drives
// enrichment jobs to a terminal state.
package pipeline

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/enrichment-worker/internal/model"
	"github.com/sells-group/enrichment-worker/internal/normalize"
	"github.com/sells-group/enrichment-worker/internal/resilience"
	"github.com/sells-group/enrichment-worker/internal/scorer"
	"github.com/sells-group/enrichment-worker/internal/scrape"
	"github.com/sells-group/enrichment-worker/internal/source"
	"github.com/sells-group/enrichment-worker/internal/store"
)

// DefaultMaxScrapeURLs caps the pages scraped per business.
const DefaultMaxScrapeURLs = 3

// SourceResolver discovers a business's website and social profiles.
type SourceResolver interface {
	Resolve(ctx context.Context, name, locality string) resilience.Result[model.Resolution]
}

// Writer is the persistence used while enriching one business.
type Writer interface {
	store.SourceWriter
	store.ContactWriter
}

// Options tunes per-business enrichment.
type Options struct {
	MaxScrapeURLs int
	Cooldown      time.Duration
	Region        string
}

// Pipeline enriches one business at a time.
type Pipeline struct {
	resolver  SourceResolver
	extractor scrape.Extractor
	writer    Writer
	opts      Options
}

// New creates a Pipeline. A zero MaxScrapeURLs defaults to 3 and an empty
// Region to AR.
func New(resolver SourceResolver, extractor scrape.Extractor, writer Writer, opts Options) *Pipeline {
	if opts.MaxScrapeURLs <= 0 {
		opts.MaxScrapeURLs = DefaultMaxScrapeURLs
	}
	if opts.Region == "" {
		opts.Region = normalize.DefaultRegion
	}
	return &Pipeline{
		resolver:  resolver,
		extractor: extractor,
		writer:    writer,
		opts:      opts,
	}
}

// BusinessResult summarizes the enrichment of one business.
type BusinessResult struct {
	BusinessID        string `json:"business_id"`
	Website           string `json:"website,omitempty"`
	SourcesStored     int    `json:"sources_stored"`
	ContactsStored    int    `json:"contacts_stored"`
	DuplicateContacts int    `json:"duplicate_contacts"`
	URLsScraped       int    `json:"urls_scraped"`
}

// EnrichBusiness resolves, scrapes, normalizes, scores and stores contacts
// for b. Collaborator failures are logged and absorbed; an error is returned
// only when ctx is already done before any work starts.
func (p *Pipeline) EnrichBusiness(ctx context.Context, searchID string, b model.Business) (*BusinessResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, eris.Wrapf(err, "pipeline: enrich business %s", b.ID)
	}

	log := zap.L().With(
		zap.String("search_id", searchID),
		zap.String("business_id", b.ID),
	)

	res := p.resolver.Resolve(ctx, b.Name, b.Locality)
	if res.Degraded() {
		log.Warn("pipeline: source resolution degraded",
			zap.String("error_kind", string(resilience.Classify(res.Err))),
			zap.Error(res.Err),
		)
	}
	resolution := res.Value

	result := &BusinessResult{BusinessID: b.ID, Website: resolution.Website}
	p.storeSources(ctx, log, searchID, b.ID, resolution, result)

	urls := TruncateURLs(ScrapeList(resolution.Website, b.ExistingWebsite), p.opts.MaxScrapeURLs)
	for _, u := range urls {
		if ctx.Err() != nil {
			break
		}
		ext := p.extractor.Extract(ctx, u)
		result.URLsScraped++
		if ext.Degraded() {
			log.Warn("pipeline: contact extraction degraded",
				zap.String("url", u),
				zap.String("error_kind", string(resilience.Classify(ext.Err))),
				zap.Error(ext.Err),
			)
			continue
		}
		if ext.Value.Empty() {
			log.Debug("pipeline: no contacts on page", zap.String("url", u))
			continue
		}
		p.storeContacts(ctx, log, searchID, b.ID, ext.Value, result)
	}

	cooldown(ctx, p.opts.Cooldown)

	log.Debug("pipeline: business enriched",
		zap.Int("sources", result.SourcesStored),
		zap.Int("contacts", result.ContactsStored),
		zap.Int("duplicates", result.DuplicateContacts),
		zap.Int("urls_scraped", result.URLsScraped),
	)
	return result, nil
}

func (p *Pipeline) storeSources(ctx context.Context, log *zap.Logger, searchID, businessID string, r model.Resolution, result *BusinessResult) {
	var sources []model.LeadSource
	if r.HasWebsite() {
		sources = append(sources, leadSource(searchID, businessID, model.SourceWebsite, r.Website))
	}
	for _, s := range r.Social {
		sources = append(sources, leadSource(searchID, businessID, s.Type, s.URL))
	}

	for _, src := range sources {
		if err := p.writer.InsertLeadSource(ctx, src); err != nil {
			log.Warn("pipeline: store lead source failed",
				zap.String("url", src.URL),
				zap.Error(err),
			)
			continue
		}
		result.SourcesStored++
	}
}

func (p *Pipeline) storeContacts(ctx context.Context, log *zap.Logger, searchID, businessID string, contacts model.Contacts, result *BusinessResult) {
	for _, c := range contacts.All() {
		normalized, valid := normalize.Contact(c, p.opts.Region)
		if normalized == "" {
			continue
		}
		nc := model.NormalizedContact{
			SearchID:        searchID,
			BusinessID:      businessID,
			Type:            c.Type,
			RawValue:        c.Raw,
			NormalizedValue: normalized,
			IsValid:         valid,
			Confidence:      scorer.Contact(c.Type, valid, c.Provenance()),
			SourceURL:       c.PageURL,
		}

		inserted, err := p.writer.UpsertContact(ctx, nc)
		if err != nil {
			log.Warn("pipeline: store contact failed",
				zap.String("contact_type", string(c.Type)),
				zap.String("url", c.PageURL),
				zap.Error(err),
			)
			continue
		}
		if inserted {
			result.ContactsStored++
		} else {
			result.DuplicateContacts++
		}
	}
}

func leadSource(searchID, businessID string, typ model.SourceType, url string) model.LeadSource {
	return model.LeadSource{
		SearchID:   searchID,
		BusinessID: businessID,
		Type:       typ,
		URL:        url,
		Domain:     source.Domain(url),
	}
}

// ScrapeList returns the pages to scrape for a business: the resolved
// website, then the existing website when its domain is known and differs
// from the resolved one.
func ScrapeList(resolvedWebsite, existingWebsite string) []string {
	var urls []string
	if resolvedWebsite != "" {
		urls = append(urls, resolvedWebsite)
	}
	if existingWebsite != "" {
		existing := source.Domain(existingWebsite)
		if existing != "" && existing != source.Domain(resolvedWebsite) {
			urls = append(urls, existingWebsite)
		}
	}
	return urls
}

// TruncateURLs keeps at most n urls.
func TruncateURLs(urls []string, n int) []string {
	if n >= 0 && len(urls) > n {
		return urls[:n]
	}
	return urls
}

// cooldown waits d or until ctx is done.
func cooldown(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
