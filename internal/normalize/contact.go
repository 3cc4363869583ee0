package normalize

import (
	"github.com/sells-group/enrichment-worker/internal/model"
)

// Contact normalizes a candidate according to its type. Phone and WhatsApp
// numbers are parsed for region.
func Contact(c model.ContactCandidate, region string) (string, bool) {
	switch c.Type {
	case model.ContactEmail:
		return Email(c.Raw)
	case model.ContactPhone:
		return Phone(c.Raw, region)
	case model.ContactWhatsApp:
		return WhatsApp(c.Raw, region)
	default:
		return c.Raw, false
	}
}
