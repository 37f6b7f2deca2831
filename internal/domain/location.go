package domain

import "strings"

// NormalizeLocation canonicalizes a location string for use as a weather
// cache key: lowercased, trimmed, inner whitespace runs collapsed to a
// single space. "Austin, TX" and " austin,  tx " share one cache slot.
func NormalizeLocation(location string) string {
	return strings.Join(strings.Fields(strings.ToLower(location)), " ")
}
