// Package eligibility decides whether a source row qualifies for dispatch.
package eligibility

import (
	"strings"

	"github.com/relayloop/capi-dispatch/internal/identity"
	"github.com/relayloop/capi-dispatch/internal/models"
)

// MessageThreshold is the activity floor: a row is dispatchable only when its
// message count strictly exceeds this value.
const MessageThreshold = 5

// Eligible reports whether a row should ever be dispatched. The phone number
// must normalize, must not appear in the exclusion set, and the message count
// must exceed MessageThreshold. Pure and total; ineligible rows are expected
// noise, not errors.
func Eligible(row models.SourceRow, exclusions map[string]struct{}) bool {
	e164, ok := identity.Normalize(row.PhoneE164)
	if !ok {
		return false
	}
	if _, excluded := exclusions[e164]; excluded {
		return false
	}
	return row.MessagesSent > MessageThreshold
}

// ParseExclusions builds the exclusion set from a comma-separated list of
// E.164 numbers (test and internal phones). Entries are normalized so
// formatted numbers in config still match; entries that cannot be
// normalized are dropped.
func ParseExclusions(csv string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, entry := range strings.Split(csv, ",") {
		e164, ok := identity.Normalize(strings.TrimSpace(entry))
		if !ok {
			continue
		}
		set[e164] = struct{}{}
	}
	return set
}
