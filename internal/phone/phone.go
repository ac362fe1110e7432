// Package phone normalizes Brazilian phone numbers to E.164.
package phone

import (
	"strings"

	"github.com/nyaruka/phonenumbers"

	appErrors "github.com/unclebandit/prospect-pipeline/internal/errors"
)

// DefaultRegion applies to numbers given without a country code.
const DefaultRegion = "BR"

// NormalizeE164 parses raw ("(11) 99999-0000", "5511999990000", "+55 11 ...")
// and returns it as "+5511999990000".
func NormalizeE164(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", appErrors.NewValidationError("phone", raw, "empty")
	}
	// WhatsApp ids arrive as "5511999990000@c.us"
	if at := strings.IndexByte(trimmed, '@'); at > 0 {
		trimmed = trimmed[:at]
	}
	if !strings.HasPrefix(trimmed, "+") && strings.HasPrefix(digitsOnly(trimmed), "55") && len(digitsOnly(trimmed)) >= 12 {
		trimmed = "+" + digitsOnly(trimmed)
	}

	num, err := phonenumbers.Parse(trimmed, DefaultRegion)
	if err != nil {
		return "", appErrors.NewValidationError("phone", raw, err.Error())
	}
	if !phonenumbers.IsValidNumber(num) {
		return "", appErrors.NewValidationError("phone", raw, "not a valid number")
	}
	return phonenumbers.Format(num, phonenumbers.E164), nil
}

func digitsOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
