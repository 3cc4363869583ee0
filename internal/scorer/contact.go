// Package scorer assigns confidence scores to normalized contacts.
package scorer

import (
	"math"
	"strings"

	"github.com/sells-group/enrichment-worker/internal/model"
)

// Score components.
const (
	baseScore     = 0.5
	validBonus    = 0.3
	linkBonus     = 0.1
	whatsAppBonus = 0.1
)

// Contact scores a contact of kind found at source. Valid contacts and
// contacts taken from explicit mailto:, tel: or click-to-chat links score
// higher. The result is always in [0, 1].
func Contact(kind model.ContactType, valid bool, source string) float64 {
	score := baseScore
	if valid {
		score += validBonus
	}

	src := strings.ToLower(strings.TrimSpace(source))
	if strings.HasPrefix(src, "mailto:") || strings.HasPrefix(src, "tel:") {
		score += linkBonus
	}
	if isWhatsAppLink(src) {
		score += whatsAppBonus
	}

	// Round away float drift so 0.5+0.3+0.1 compares equal to 0.9.
	score = math.Round(score*100) / 100
	return math.Max(0, math.Min(score, 1))
}

func isWhatsAppLink(src string) bool {
	return strings.Contains(src, "wa.me/") || strings.Contains(src, "api.whatsapp.com/send")
}
