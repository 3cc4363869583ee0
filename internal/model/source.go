package model

// SourceType classifies a discovered URL.
type SourceType string

const (
	SourceWebsite   SourceType = "website"
	SourceInstagram SourceType = "instagram"
	SourceFacebook  SourceType = "facebook"
	SourceLinkedIn  SourceType = "linkedin"
	SourceTwitter   SourceType = "twitter"
)

// Valid reports whether t is a known source type.
func (t SourceType) Valid() bool {
	switch t {
	case SourceWebsite, SourceInstagram, SourceFacebook, SourceLinkedIn, SourceTwitter:
		return true
	default:
		return false
	}
}

// SocialURL is a social profile found in search results.
type SocialURL struct {
	Type SourceType `json:"type"`
	URL  string     `json:"url"`
}

// Resolution is the classified outcome of a business search.
type Resolution struct {
	Website string      `json:"website,omitempty"`
	Social  []SocialURL `json:"social_urls"`
	AllURLs []string    `json:"all_urls"`
}

// HasWebsite reports whether a website candidate was resolved.
func (r Resolution) HasWebsite() bool { return r.Website != "" }

// LeadSource is one persisted source row for a business.
type LeadSource struct {
	SearchID   string     `json:"search_id"`
	BusinessID string     `json:"business_id"`
	Type       SourceType `json:"source_type"`
	URL        string     `json:"url"`
	Domain     string     `json:"domain"`
}
