package identifier

import (
	"regexp"
	"strings"
)

// Kind classifies a normalized identifier.
type Kind string

const (
	KindEmail   Kind = "email"
	KindPhone   Kind = "phone"
	KindInvalid Kind = "invalid"
)

// Identifier is the result of normalizing a user-supplied login identifier.
// For phones, PhoneDigits is an E.164-like digit string without the plus sign
// (e.g. "8801712345678") and E164 is the same string with a leading "+".
type Identifier struct {
	Kind        Kind
	Email       string
	PhoneDigits string
	E164        string
}

// Permissive local@domain.tld check. Stricter RFC validation is deliberately
// not attempted: a deliverable-looking address that bounces is caught by the
// delivery path.
var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]{2,}$`)

var nonPhoneChars = regexp.MustCompile(`[^\d+]`)

// Bangladeshi mobile operator prefixes (the two digits after the leading "1"
// of the subscriber number... i.e. "1X" where X identifies the operator).
var bdOperatorPrefixes = map[string]bool{
	"13": true, // Grameenphone
	"14": true, // Banglalink
	"15": true, // Teletalk
	"16": true, // Airtel
	"17": true, // Grameenphone
	"18": true, // Robi
	"19": true, // Banglalink
}

// Normalize parses a raw user-supplied string into a canonical email or
// phone identifier. Unrecognized input yields Kind == KindInvalid, which
// callers must treat as a hard validation failure.
func Normalize(raw string) Identifier {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return Identifier{Kind: KindInvalid}
	}

	if strings.Contains(trimmed, "@") {
		email := strings.ToLower(trimmed)
		if emailPattern.MatchString(email) {
			return Identifier{Kind: KindEmail, Email: email}
		}
		return Identifier{Kind: KindInvalid}
	}

	hasPlus := strings.HasPrefix(trimmed, "+")
	digits := nonPhoneChars.ReplaceAllString(trimmed, "")
	digits = strings.TrimPrefix(digits, "+")
	if digits == "" {
		return Identifier{Kind: KindInvalid}
	}

	if canonical, ok := normalizeBDMobile(digits); ok {
		if !bdOperatorPrefixes[canonical[3:5]] {
			return Identifier{Kind: KindInvalid}
		}
		return Identifier{
			Kind:        KindPhone,
			PhoneDigits: canonical,
			E164:        "+" + canonical,
		}
	}

	// Non-Bangladesh numbers are accepted only when explicitly +-prefixed;
	// we cannot validate other countries' numbering plans.
	if hasPlus && len(digits) >= 8 && len(digits) <= 15 {
		return Identifier{
			Kind:        KindPhone,
			PhoneDigits: digits,
			E164:        "+" + digits,
		}
	}

	return Identifier{Kind: KindInvalid}
}

// normalizeBDMobile rewrites the common malformed variants of a Bangladeshi
// mobile number into the canonical "880" + 9-digit subscriber form:
//
//	01712345678      local with leading zero
//	1712345678       bare local mobile
//	8801712345678    already canonical
//	88001712345678   double country-code typo (880 + 01...)
//	008801712345678  00 international dialing prefix
//	08801712345678   extra leading zero before the country code
//	8808801712345678 country code typed twice
func normalizeBDMobile(digits string) (string, bool) {
	switch {
	case len(digits) == 13 && strings.HasPrefix(digits, "8801"):
		return digits, true
	case len(digits) == 14 && strings.HasPrefix(digits, "88001"):
		return "880" + digits[4:], true
	case len(digits) == 15 && strings.HasPrefix(digits, "008801"):
		return digits[2:], true
	case len(digits) == 14 && strings.HasPrefix(digits, "08801"):
		return digits[1:], true
	case len(digits) == 16 && strings.HasPrefix(digits, "8808801"):
		return digits[3:], true
	case len(digits) == 11 && strings.HasPrefix(digits, "01"):
		return "880" + digits[1:], true
	case len(digits) == 10 && strings.HasPrefix(digits, "1"):
		return "880" + digits, true
	}
	return "", false
}

// Mask returns a redacted form of an identifier suitable for audit logs.
func Mask(value string) string {
	if at := strings.Index(value, "@"); at > 0 {
		local := value[:at]
		if len(local) <= 2 {
			return "**" + value[at:]
		}
		return local[:2] + strings.Repeat("*", len(local)-2) + value[at:]
	}
	if len(value) > 7 {
		return value[:5] + strings.Repeat("*", len(value)-7) + value[len(value)-2:]
	}
	if len(value) > 2 {
		return value[:1] + strings.Repeat("*", len(value)-1)
	}
	return "**"
}
