package keys

import (
	"regexp"
	"strings"
)

// Join prefixes a logical key with the engine namespace.
func Join(ns, key string) string {
	return ns + ":" + key
}

// JoinAll maps Join over keys.
func JoinAll(ns string, ks []string) []string {
	out := make([]string, len(ks))
	for i, k := range ks {
		out[i] = Join(ns, k)
	}
	return out
}

// Strip removes the namespace prefix from a storage key.
// ok is false when the key does not belong to the namespace.
func Strip(ns, storageKey string) (string, bool) {
	p := ns + ":"
	if !strings.HasPrefix(storageKey, p) {
		return "", false
	}
	return storageKey[len(p):], true
}

// IsGlob reports whether pattern contains redis-style glob metacharacters.
func IsGlob(pattern string) bool {
	return strings.ContainsAny(pattern, "*?[")
}

// GlobToRegexp compiles a redis-style glob (*, ?, [abc]) into an anchored
// regexp usable against logical keys. The translation mirrors what a MATCH
// clause would select server-side: * crosses segment separators.
func GlobToRegexp(pattern string) (*regexp.Regexp, error) {
	q := regexp.QuoteMeta(pattern)
	q = strings.ReplaceAll(q, `\*`, `.*`)
	q = strings.ReplaceAll(q, `\?`, `.`)
	q = strings.ReplaceAll(q, `\[`, `[`)
	q = strings.ReplaceAll(q, `\]`, `]`)
	return regexp.Compile(`^` + q + `$`)
}
