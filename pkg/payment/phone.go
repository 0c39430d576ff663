package payment

import (
	"strconv"
	"strings"
)

// Normalizer canonicalizes payer phone numbers into the digit-only,
// country-code-prefixed wire format.
type Normalizer struct {
	// CountryCode is prepended to national numbers (e.g. "258")
	CountryCode string

	// TrunkPrefix is the domestic dialing prefix replaced by the country code (e.g. "0")
	TrunkPrefix string

	// NationalLength is the number of digits after the country code
	NationalLength int
}

// DefaultNormalizer is the Mozambique M-Pesa format: 258 + 9 digits.
var DefaultNormalizer = Normalizer{
	CountryCode:    "258",
	TrunkPrefix:    "0",
	NationalLength: 9,
}

// NormalizePhone canonicalizes raw with DefaultNormalizer.
func NormalizePhone(raw string) (string, error) {
	return DefaultNormalizer.Normalize(raw)
}

// CanonicalLength is the length of a canonical identifier.
func (n Normalizer) CanonicalLength() int {
	return len(n.CountryCode) + n.NationalLength
}

// Normalize strips every non-digit from raw and accepts three shapes:
//   - country code + national number, kept as is
//   - the bare national number, prefixed with the country code
//   - trunk prefix + national number, trunk prefix replaced by the country code
//
// Anything else yields a *ValidationError wrapping ErrInvalidPhone.
func (n Normalizer) Normalize(raw string) (string, error) {
	digits := digitsOnly(raw)

	switch {
	case len(digits) == n.CanonicalLength() && strings.HasPrefix(digits, n.CountryCode):
		return digits, nil
	case len(digits) == n.NationalLength:
		return n.CountryCode + digits, nil
	case n.TrunkPrefix != "" &&
		len(digits) == len(n.TrunkPrefix)+n.NationalLength &&
		strings.HasPrefix(digits, n.TrunkPrefix):
		return n.CountryCode + digits[len(n.TrunkPrefix):], nil
	}

	return "", &ValidationError{
		Field: "phone_number",
		Message: "phone number must be " + n.CountryCode + " followed by " +
			strconv.Itoa(n.NationalLength) + " digits",
		Err: ErrInvalidPhone,
	}
}

// MaskPhone keeps the first seven characters of phone and masks the rest.
func MaskPhone(phone string) string {
	if len(phone) < 8 {
		return "***"
	}
	return phone[:7] + strings.Repeat("*", len(phone)-7)
}

func digitsOnly(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if c := s[i]; c >= '0' && c <= '9' {
			b.WriteByte(c)
		}
	}
	return b.String()
}
