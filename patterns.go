package strata

import "regexp"

// Pattern selects keys for Invalidate. Build one with Glob, Regex or
// Predicate; the zero Pattern matches nothing.
type Pattern struct {
	glob string
	re   *regexp.Regexp
	pred func(key string, value []byte) bool
}

// Glob matches logical keys with * (any run) and ? (one character). A glob
// without metacharacters deletes exactly one key and never scans; with
// them, the remote tier uses its native pattern listing.
func Glob(pattern string) Pattern { return Pattern{glob: pattern} }

// Regex matches logical keys against a compiled expression. Key names
// only; values are never fetched. The remote tier is listed in full and
// filtered locally.
func Regex(re *regexp.Regexp) Pattern { return Pattern{re: re} }

// Predicate matches on key and encoded value. The remote tier must fetch
// every candidate value to evaluate it, so cost grows with the whole
// namespace. Keep it off hot paths.
func Predicate(match func(key string, value []byte) bool) Pattern {
	return Pattern{pred: match}
}

func (p Pattern) isZero() bool { return p.glob == "" && p.re == nil && p.pred == nil }
