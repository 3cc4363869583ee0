package normalize

import (
	"net/mail"
	"strings"

	"golang.org/x/net/idna"
)

// Email checks the syntax of raw and canonicalizes it. A valid address is a
// bare addr-spec whose domain is dotted and IDNA-valid; it is returned with
// the local part untouched and the domain lowercased. No MX lookup is made.
func Email(raw string) (string, bool) {
	trimmed := strings.TrimSpace(raw)
	fallback := strings.ToLower(trimmed)

	addr, err := mail.ParseAddress(trimmed)
	if err != nil || addr.Name != "" || addr.Address != trimmed {
		return fallback, false
	}

	at := strings.LastIndexByte(addr.Address, '@')
	if at <= 0 || at == len(addr.Address)-1 {
		return fallback, false
	}
	local, domain := addr.Address[:at], strings.ToLower(addr.Address[at+1:])

	if !strings.Contains(domain, ".") || strings.HasPrefix(domain, ".") || strings.HasSuffix(domain, ".") {
		return fallback, false
	}
	if _, err := idna.Lookup.ToASCII(domain); err != nil {
		return fallback, false
	}
	return local + "@" + domain, true
}
