package scrape

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/sells-group/enrichment-worker/internal/model"
)

var (
	emailRe    = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)
	whatsAppRe = regexp.MustCompile(`(?:wa\.me/|api\.whatsapp\.com/send\?phone=)\+?(\d{10,15})`)
	nonPhoneRe = regexp.MustCompile(`[^\d+]`)

	// phonePatterns are matched against visible page text, keyed by region.
	phonePatterns = map[string]*regexp.Regexp{
		"AR": regexp.MustCompile(`(?:\+?54\s?9?\s?)?(?:\(?\d{2,4}\)?\s?[\-.]?\s?)?\d{4}\s?[\-.]?\s?\d{4}`),
	}
	genericPhoneRe = regexp.MustCompile(`\+?\(?\d[\d\s().\-]{6,}\d`)
)

// junkEmailDomains are tracking, placeholder and vendor domains that show up
// in page markup but never belong to the business.
var junkEmailDomains = map[string]bool{
	"example.com":          true,
	"sentry.io":            true,
	"wixpress.com":         true,
	"w3.org":               true,
	"schema.org":           true,
	"googleapis.com":       true,
	"googletagmanager.com": true,
}

// minPhoneLen is the shortest sanitized phone kept.
const minPhoneLen = 8

func phonePattern(region string) *regexp.Regexp {
	if re, ok := phonePatterns[region]; ok {
		return re
	}
	return genericPhoneRe
}

// harvest collects candidates from a parsed document in first-seen order.
func harvest(doc *goquery.Document, markup, pageURL string, phoneRe *regexp.Regexp) model.Contacts {
	text := visibleText(doc)
	return model.Contacts{
		Emails:    harvestEmails(doc, text, pageURL),
		Phones:    harvestPhones(doc, text, pageURL, phoneRe),
		WhatsApps: harvestWhatsApps(doc, markup, pageURL),
	}
}

func harvestEmails(doc *goquery.Document, text, pageURL string) []model.ContactCandidate {
	seen := make(map[string]bool)
	out := []model.ContactCandidate{}
	add := func(raw string, origin model.ContactOrigin, link string) {
		key := strings.ToLower(raw)
		if seen[key] || isJunkEmail(key) {
			return
		}
		seen[key] = true
		out = append(out, model.ContactCandidate{
			Type: model.ContactEmail, Raw: raw, PageURL: pageURL, Origin: origin, Link: link,
		})
	}

	doc.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		href := strings.TrimSpace(a.AttrOr("href", ""))
		target, ok := cutSchemeFold(href, "mailto:")
		if !ok {
			return
		}
		target, _, _ = strings.Cut(target, "?")
		if unescaped, err := url.PathUnescape(target); err == nil {
			target = unescaped
		}
		for _, addr := range strings.Split(target, ",") {
			addr = strings.TrimSpace(addr)
			if strings.Contains(addr, "@") {
				add(addr, model.OriginMailto, href)
			}
		}
	})
	for _, m := range emailRe.FindAllString(text, -1) {
		add(m, model.OriginText, "")
	}

	return capCandidates(out, MaxEmails)
}

func harvestPhones(doc *goquery.Document, text, pageURL string, phoneRe *regexp.Regexp) []model.ContactCandidate {
	seen := make(map[string]bool)
	out := []model.ContactCandidate{}
	add := func(raw string, origin model.ContactOrigin, link string) {
		clean := nonPhoneRe.ReplaceAllString(raw, "")
		if len(clean) < minPhoneLen || seen[clean] {
			return
		}
		seen[clean] = true
		out = append(out, model.ContactCandidate{
			Type: model.ContactPhone, Raw: clean, PageURL: pageURL, Origin: origin, Link: link,
		})
	}

	doc.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		href := strings.TrimSpace(a.AttrOr("href", ""))
		if target, ok := cutSchemeFold(href, "tel:"); ok {
			if unescaped, err := url.PathUnescape(target); err == nil {
				target = unescaped
			}
			add(target, model.OriginTel, href)
		}
	})
	for _, m := range phoneRe.FindAllString(text, -1) {
		add(m, model.OriginText, "")
	}

	return capCandidates(out, MaxPhones)
}

func harvestWhatsApps(doc *goquery.Document, markup, pageURL string) []model.ContactCandidate {
	seen := make(map[string]bool)
	out := []model.ContactCandidate{}
	add := func(number, link string) {
		if seen[number] {
			return
		}
		seen[number] = true
		out = append(out, model.ContactCandidate{
			Type: model.ContactWhatsApp, Raw: number, PageURL: pageURL, Origin: model.OriginWhatsAppLink, Link: link,
		})
	}

	doc.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		href := a.AttrOr("href", "")
		if m := whatsAppRe.FindStringSubmatch(href); m != nil {
			add(m[1], href)
		}
	})
	for _, m := range whatsAppRe.FindAllStringSubmatch(markup, -1) {
		add(m[1], m[0])
	}

	return capCandidates(out, MaxWhatsApps)
}

func isJunkEmail(email string) bool {
	at := strings.LastIndexByte(email, '@')
	return junkEmailDomains[strings.ToLower(email[at+1:])]
}

// cutSchemeFold strips a case-insensitive scheme prefix.
func cutSchemeFold(href, scheme string) (string, bool) {
	if len(href) < len(scheme) || !strings.EqualFold(href[:len(scheme)], scheme) {
		return "", false
	}
	return href[len(scheme):], true
}

func capCandidates(c []model.ContactCandidate, n int) []model.ContactCandidate {
	if len(c) > n {
		return c[:n]
	}
	return c
}

// visibleText joins the document's text nodes with spaces, skipping
// non-rendered elements.
func visibleText(doc *goquery.Document) string {
	var parts []string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.DataAtom {
			case atom.Script, atom.Style, atom.Noscript, atom.Template:
				return
			}
		}
		if n.Type == html.TextNode {
			if s := strings.TrimSpace(n.Data); s != "" {
				parts = append(parts, s)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	for _, n := range doc.Nodes {
		walk(n)
	}
	return strings.Join(parts, " ")
}
