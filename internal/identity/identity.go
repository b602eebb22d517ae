// Package identity derives the stable event identifier and hashed phone
// token from raw row input. Everything here is pure; raw phone numbers must
// never cross this package boundary unhashed.
package identity

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"
)

// Namespace prefixes every event identifier. The downstream API deduplicates
// on the full identifier, so the namespace keeps this pipeline's events from
// colliding with identifiers minted elsewhere.
const Namespace = "chat-threshold"

// DefaultLabel is used when a row carries no experiment label.
const DefaultLabel = "default"

var e164Pattern = regexp.MustCompile(`^\+\d{8,16}$`)

// Normalize canonicalizes a raw phone number into E.164 form. It trims the
// input, requires a leading "+", strips every other non-digit character and
// accepts only "+" followed by 8 to 16 digits. Returns false when the input
// cannot be normalized.
func Normalize(raw string) (string, bool) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" || !strings.HasPrefix(trimmed, "+") {
		return "", false
	}

	var b strings.Builder
	for _, r := range trimmed {
		if r == '+' || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}

	digits := b.String()
	if !e164Pattern.MatchString(digits) {
		return "", false
	}
	return digits, true
}

// Hash produces the one-way token sent downstream in place of the phone
// number: leading "+" stripped, lowercased, trimmed, SHA-256, lowercase hex.
func Hash(normalized string) string {
	v := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(normalized, "+")))
	sum := sha256.Sum256([]byte(v))
	return hex.EncodeToString(sum[:])
}

// EventID composes the deterministic downstream idempotency key for a
// session/experiment pair. Identical inputs always yield the identical
// identifier, across runs and processes.
func EventID(sessionID, experimentLabel string) string {
	label := strings.TrimSpace(experimentLabel)
	if label == "" {
		label = DefaultLabel
	}
	return Namespace + ":" + label + ":" + sessionID
}
