// Package scrape fetches a single page and harvests raw contact candidates
// from it. Validity is judged downstream by the normalizer.
package scrape

import (
	"context"

	"github.com/sells-group/enrichment-worker/internal/model"
	"github.com/sells-group/enrichment-worker/internal/resilience"
)

// Extractor fetches url and returns the contacts found on it. Failures are
// carried in the Result alongside empty Contacts.
type Extractor interface {
	Extract(ctx context.Context, url string) resilience.Result[model.Contacts]
}

// Result caps per page.
const (
	MaxEmails    = 5
	MaxPhones    = 5
	MaxWhatsApps = 3
)

// DefaultUserAgent identifies the worker to scraped sites.
const DefaultUserAgent = "PurosoftwareBot/1.0 (+https://purosoftware.com)"

// DefaultMaxBodyBytes bounds how much of a page is read.
const DefaultMaxBodyBytes = 2 << 20

func emptyContacts() model.Contacts {
	return model.Contacts{
		Emails:    []model.ContactCandidate{},
		Phones:    []model.ContactCandidate{},
		WhatsApps: []model.ContactCandidate{},
	}
}
