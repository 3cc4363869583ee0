// Package normalize canonicalizes raw contact values. Normalization never
// fails: unparseable input comes back trimmed with valid=false.
package normalize

import (
	"strings"

	"github.com/nyaruka/phonenumbers"
)

// DefaultRegion is used when no region is supplied.
const DefaultRegion = "AR"

var phoneStripper = strings.NewReplacer(" ", "", "-", "", ".", "")

// Phone parses raw for region and formats it as E.164. The bool reports
// whether the number is valid for its region.
func Phone(raw, region string) (string, bool) {
	if region == "" {
		region = DefaultRegion
	}
	cleaned := phoneStripper.Replace(strings.TrimSpace(raw))

	num, err := phonenumbers.Parse(cleaned, strings.ToUpper(region))
	if err != nil {
		return strings.TrimSpace(raw), false
	}
	return phonenumbers.Format(num, phonenumbers.E164), phonenumbers.IsValidNumber(num)
}

// WhatsApp normalizes a click-to-chat number. Click-to-chat links carry the
// full international number without the leading "+", so one is added
// before parsing.
func WhatsApp(raw, region string) (string, bool) {
	trimmed := strings.TrimSpace(raw)
	if trimmed != "" && !strings.HasPrefix(trimmed, "+") {
		if num, ok := Phone("+"+trimmed, region); ok {
			return num, true
		}
	}
	return Phone(raw, region)
}
