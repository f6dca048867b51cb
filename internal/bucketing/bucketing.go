// Package bucketing assigns users to experiment variants without storing the
// assignment. The same user and test name always land in the same bucket.
package bucketing

import "unicode/utf16"

// DefaultVariant is returned when there is nothing to hash or nothing to pick from.
const DefaultVariant = "control"

// Hash is the 32-bit "h*31 + c" rolling hash over UTF-16 code units, folded to
// a signed int32 and then made non-negative.
func Hash(s string) int64 {
	var h int32
	for _, c := range utf16.Encode([]rune(s)) {
		h = (h << 5) - h + int32(c)
	}
	v := int64(h)
	if v < 0 {
		v = -v
	}
	return v
}

// Bucket maps key into [0, n). n must be positive.
func Bucket(key string, n int) int {
	return int(Hash(key) % int64(n))
}

// Assign picks one of variants for userID within testName.
func Assign(userID, testName string, variants []string) string {
	if userID == "" || len(variants) == 0 {
		return DefaultVariant
	}
	return variants[Bucket(userID+testName, len(variants))]
}

// AssignWeighted sends split percent of users to promoted and spreads the rest
// evenly over the remaining variants. Without a valid promotion it behaves like Assign.
func AssignWeighted(userID, testName string, variants []string, promoted string, split int) string {
	if userID == "" || len(variants) == 0 {
		return DefaultVariant
	}
	if promoted == "" || split <= 0 || !contains(variants, promoted) {
		return Assign(userID, testName, variants)
	}
	if split >= 100 || Bucket(userID+testName, 100) < split {
		return promoted
	}

	rest := make([]string, 0, len(variants)-1)
	for _, v := range variants {
		if v != promoted {
			rest = append(rest, v)
		}
	}
	if len(rest) == 0 {
		return promoted
	}
	return rest[Bucket(testName+userID, len(rest))]
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
