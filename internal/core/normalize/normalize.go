// Package normalize holds the canonical-form helpers the resolution
// pipeline keys on. Everything here is total: bad input degrades to an
// empty result, never an error.
package normalize

import (
	"strings"
	"unicode"
)

// PrefixLen is the name-key prefix length used by the candidate index.
const PrefixLen = 4

// legalSuffixes are stripped from the end of a name, token-boundary only,
// so "Incredible Inc" loses "inc" but keeps "incredible" intact.
var legalSuffixes = map[string]struct{}{
	"inc": {}, "incorporated": {}, "corp": {}, "corporation": {},
	"ltd": {}, "limited": {}, "llc": {}, "llp": {}, "plc": {},
	"gmbh": {}, "ag": {}, "sa": {}, "srl": {}, "bv": {}, "oy": {},
	"ab": {}, "pty": {}, "co": {},
}

// twoLevelTLDs are checked before singleTLDs so "co.uk" strips whole.
var twoLevelTLDs = []string{
	"co.uk", "org.uk", "ac.uk", "com.au", "net.au", "co.jp", "co.in",
	"com.br", "co.nz", "com.cn", "com.mx",
}

var singleTLDs = map[string]struct{}{
	"com": {}, "org": {}, "net": {}, "io": {}, "co": {}, "ai": {},
	"dev": {}, "app": {}, "edu": {}, "gov": {}, "mil": {}, "info": {},
	"biz": {}, "us": {}, "uk": {}, "de": {}, "fr": {}, "es": {},
	"it": {}, "nl": {}, "se": {}, "no": {}, "fi": {}, "dk": {},
	"pl": {}, "ru": {}, "cn": {}, "jp": {}, "br": {}, "in": {},
	"au": {}, "ca": {}, "ch": {}, "at": {}, "be": {}, "eu": {},
}

// Name lower-cases, drops parenthetical asides, trims punctuation at
// token edges, strips trailing legal-entity suffixes and a leading
// "the", and collapses whitespace. Empty in, empty out.
func Name(raw string) string {
	s := strings.ToLower(strings.TrimSpace(raw))
	if s == "" {
		return ""
	}
	s = stripParentheticals(s)

	tokens := strings.Fields(s)
	out := make([]string, 0, len(tokens))
	for _, tok := range tokens {
		tok = strings.TrimFunc(tok, func(r rune) bool {
			return unicode.IsPunct(r) || unicode.IsSymbol(r)
		})
		if tok != "" {
			out = append(out, tok)
		}
	}

	// Trailing legal suffixes, possibly stacked ("co ltd"). Always keep
	// at least one token so a name that IS a suffix survives.
	for len(out) > 1 {
		if _, ok := legalSuffixes[out[len(out)-1]]; !ok {
			break
		}
		out = out[:len(out)-1]
	}
	if len(out) > 1 && out[0] == "the" {
		out = out[1:]
	}
	return strings.Join(out, " ")
}

func stripParentheticals(s string) string {
	var b strings.Builder
	depth := 0
	for _, r := range s {
		switch {
		case r == '(':
			depth++
		case r == ')':
			if depth > 0 {
				depth--
			}
		case depth == 0:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Tokens splits an already-normalized name.
func Tokens(normalized string) []string {
	return strings.Fields(normalized)
}

// Initials returns the acronym candidate key for a normalized name: the
// concatenated token initials for multi-token names, the token itself
// for short single-token names, "" otherwise.
func Initials(normalized string) string {
	tokens := strings.Fields(normalized)
	switch {
	case len(tokens) >= 2:
		var b strings.Builder
		for _, tok := range tokens {
			r := []rune(tok)
			b.WriteRune(r[0])
		}
		return b.String()
	case len(tokens) == 1 && len([]rune(tokens[0])) <= 5:
		return tokens[0]
	default:
		return ""
	}
}

// Prefix returns the first n runes of s.
func Prefix(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

// Domain extracts the comparable domain token from an email address or
// URL: the host without scheme, www., path, port, or a known TLD
// suffix. This is a deliberate best-effort heuristic, not an RFC host
// parser; unparsable input reports ok=false.
func Domain(emailOrURL string) (string, bool) {
	s := strings.ToLower(strings.TrimSpace(emailOrURL))
	if s == "" {
		return "", false
	}
	if at := strings.LastIndex(s, "@"); at >= 0 {
		s = s[at+1:]
	}
	if i := strings.Index(s, "://"); i >= 0 {
		s = s[i+3:]
	}
	s = strings.TrimPrefix(s, "www.")
	if i := strings.IndexAny(s, "/?#"); i >= 0 {
		s = s[:i]
	}
	if i := strings.Index(s, ":"); i >= 0 {
		s = s[:i]
	}
	if s == "" || !strings.Contains(s, ".") {
		return "", false
	}
	for _, tld := range twoLevelTLDs {
		if rest, ok := strings.CutSuffix(s, "."+tld); ok {
			s = rest
			break
		}
	}
	if i := strings.LastIndex(s, "."); i >= 0 {
		if _, ok := singleTLDs[s[i+1:]]; ok {
			s = s[:i]
		}
	}
	if s == "" {
		return "", false
	}
	return s, true
}
