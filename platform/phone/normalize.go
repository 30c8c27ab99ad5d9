// Package phone normalizes client phone numbers.
package phone

import (
	"strings"

	"github.com/nyaruka/phonenumbers"
)

// DefaultRegion applies when a tenant has not configured one.
const DefaultRegion = "CZ"

// NormalizeE164ForRegion returns input in E.164 form, reading numbers without
// a country prefix as belonging to region. Unparseable or invalid numbers are
// returned trimmed but otherwise untouched.
func NormalizeE164ForRegion(input, region string) string {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return ""
	}
	region = strings.ToUpper(strings.TrimSpace(region))
	if region == "" {
		region = DefaultRegion
	}

	number, err := phonenumbers.Parse(trimmed, region)
	if err != nil || !phonenumbers.IsValidNumber(number) {
		return trimmed
	}
	return phonenumbers.Format(number, phonenumbers.E164)
}
