package model

// ContactType is the kind of contact harvested from a page.
type ContactType string

const (
	ContactEmail    ContactType = "email"
	ContactPhone    ContactType = "phone"
	ContactWhatsApp ContactType = "whatsapp"
)

// Valid reports whether t is a known contact type.
func (t ContactType) Valid() bool {
	switch t {
	case ContactEmail, ContactPhone, ContactWhatsApp:
		return true
	default:
		return false
	}
}

// ContactOrigin records where on the page a candidate was found.
type ContactOrigin string

const (
	OriginText         ContactOrigin = "text"
	OriginMailto       ContactOrigin = "mailto"
	OriginTel          ContactOrigin = "tel"
	OriginWhatsAppLink ContactOrigin = "whatsapp_link"
)

// ContactCandidate is a raw, unvalidated contact string.
type ContactCandidate struct {
	Type    ContactType   `json:"type"`
	Raw     string        `json:"raw"`
	PageURL string        `json:"page_url"`
	Origin  ContactOrigin `json:"origin"`
	Link    string        `json:"link,omitempty"` // href or markup match, when found in a link
}

// Provenance is the URL the candidate came from: the link itself when the
// candidate was harvested from one, otherwise the page.
func (c ContactCandidate) Provenance() string {
	if c.Link != "" {
		return c.Link
	}
	return c.PageURL
}

// Contacts groups the candidates harvested from a single page.
type Contacts struct {
	Emails    []ContactCandidate `json:"emails"`
	Phones    []ContactCandidate `json:"phones"`
	WhatsApps []ContactCandidate `json:"whatsapps"`
}

// Empty reports whether no candidates of any kind were found.
func (c Contacts) Empty() bool {
	return len(c.Emails) == 0 && len(c.Phones) == 0 && len(c.WhatsApps) == 0
}

// All returns every candidate in email, phone, whatsapp order.
func (c Contacts) All() []ContactCandidate {
	all := make([]ContactCandidate, 0, len(c.Emails)+len(c.Phones)+len(c.WhatsApps))
	all = append(all, c.Emails...)
	all = append(all, c.Phones...)
	all = append(all, c.WhatsApps...)
	return all
}

// NormalizedContact is a scored contact ready for persistence. At most one
// row exists per (BusinessID, Type, NormalizedValue).
type NormalizedContact struct {
	SearchID        string      `json:"search_id"`
	BusinessID      string      `json:"business_id"`
	Type            ContactType `json:"contact_type"`
	RawValue        string      `json:"raw_value"`
	NormalizedValue string      `json:"normalized_value"`
	IsValid         bool        `json:"is_valid"`
	Confidence      float64     `json:"confidence"`
	SourceURL       string      `json:"source_url"`
}
