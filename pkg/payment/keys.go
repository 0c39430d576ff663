package payment

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
	"unicode"
)

const (
	// MaxIdempotencyKeyLength is the longest key the payment service stores.
	MaxIdempotencyKeyLength = 100

	// MaxAccountReferenceLength is the longest account reference the payment service accepts.
	MaxAccountReferenceLength = 20

	idempotencyDateLayout = "2006-01-02"
)

// keyEscaper keeps "-" out of the leading key components. "%" is escaped
// first so that escaped and literal text never meet.
var keyEscaper = strings.NewReplacer("%", "%25", "-", "%2D")

// IdempotencyKey derives the deduplication key for a payment intent:
// {entityType}-{entityID}-{requesterID}-{YYYY-MM-DD}.
//
// The date is taken in day's own location, so identical inputs on the same
// calendar day always produce the same key and a repeated initiate is seen by
// the payment service as a retry rather than a new charge.
//
// "-" and "%" inside entityType and entityID are percent-escaped, so the
// first two separators always delimit them; requesterID is followed only by
// the fixed-length date and is kept verbatim. Keys longer than
// MaxIdempotencyKeyLength become {sha256 hex}-{YYYY-MM-DD}.
func IdempotencyKey(entityType, entityID, requesterID string, day time.Time) string {
	date := day.Format(idempotencyDateLayout)
	key := strings.Join([]string{keyEscaper.Replace(entityType), keyEscaper.Replace(entityID), requesterID, date}, "-")
	if len(key) <= MaxIdempotencyKeyLength {
		return key
	}

	sum := sha256.Sum256([]byte(strings.Join([]string{entityType, entityID, requesterID}, "\x00")))
	return hex.EncodeToString(sum[:]) + "-" + date
}

// ValidateAccountReference checks a reference against the payment service's
// rules: non-empty, at most MaxAccountReferenceLength characters, no control
// characters and no surrounding whitespace.
func ValidateAccountReference(ref string) error {
	if ref == "" {
		return &ValidationError{Field: "account_reference", Message: "is required", Err: ErrInvalidIntent}
	}

	if len(ref) > MaxAccountReferenceLength {
		return &ValidationError{
			Field:   "account_reference",
			Message: fmt.Sprintf("must be at most %d characters", MaxAccountReferenceLength),
			Err:     ErrInvalidIntent,
		}
	}

	for _, r := range ref {
		if unicode.IsControl(r) {
			return &ValidationError{Field: "account_reference", Message: "contains control character", Err: ErrInvalidIntent}
		}
	}

	if strings.TrimSpace(ref) != ref {
		return &ValidationError{Field: "account_reference", Message: "has leading or trailing whitespace", Err: ErrInvalidIntent}
	}

	return nil
}

// SanitizeText removes control characters and truncates s to max bytes
// without splitting a rune.
func SanitizeText(s string, max int) string {
	var b strings.Builder
	for _, r := range s {
		if unicode.IsControl(r) {
			continue
		}
		if max > 0 && b.Len()+len(string(r)) > max {
			break
		}
		b.WriteRune(r)
	}
	return strings.TrimSpace(b.String())
}
