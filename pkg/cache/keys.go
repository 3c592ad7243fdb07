package cache

import "strings"

// BuildKey joins key segments with the ":" separator used across both
// tiers, e.g. BuildKey("odds", "week", "2024", "5") -> "odds:week:2024:5".
func BuildKey(parts ...string) string {
	return strings.Join(parts, ":")
}

// ParseKey splits a key back into its segments. It is the exact inverse
// of BuildKey for segments that contain no ":".
func ParseKey(key string) []string {
	return strings.Split(key, ":")
}
