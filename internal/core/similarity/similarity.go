// Package similarity scores entity pairs on weighted name, identifier,
// affiliation and minor signals. Scoring is pure, deterministic and
// symmetric; the weighted sum is normalized by the weights of the
// signals actually present, so a missing attribute never penalizes a
// pair.
package similarity

import (
	"math"
	"strings"

	"github.com/agenthands/amalgam/internal/core/model"
	"github.com/agenthands/amalgam/internal/core/normalize"
)

// Signal weights. The denominator of the combined score only counts
// weights whose signal is present on both sides; name is always present.
const (
	weightName        = 0.5
	weightIdentifier  = 0.3
	weightAffiliation = 0.15
	weightMinor       = 0.05
)

const (
	acronymScore     = 0.9
	substringFloor   = 0.85
	abbreviatedScore = 0.85
	editBlend        = 0.6
	jaccardBlend     = 0.4

	// A shared corporate email domain is strong identity evidence for
	// people; an exact address is stronger still.
	sharedDomainScore  = 0.95
	localPartThreshold = 0.8

	minorSubstringScore = 0.8
)

// defaultGenericDomains suppress domain-level evidence: two people on
// gmail share an inbox provider, not an employer.
var defaultGenericDomains = []string{
	"gmail", "googlemail", "yahoo", "hotmail", "outlook", "live",
	"icloud", "aol", "proton", "protonmail", "gmx", "yandex", "zoho",
	"msn", "qq", "163", "126", "mail", "email", "example", "test",
	"localhost",
}

type Engine struct {
	genericDomains map[string]struct{}
}

// NewEngine builds a scorer. extraGenericDomains extends the built-in
// free-mail denylist with deployment-specific entries (raw domains are
// normalized through the same extractor the comparisons use).
func NewEngine(extraGenericDomains []string) *Engine {
	e := &Engine{genericDomains: make(map[string]struct{}, len(defaultGenericDomains)+len(extraGenericDomains))}
	for _, d := range defaultGenericDomains {
		e.genericDomains[d] = struct{}{}
	}
	for _, d := range extraGenericDomains {
		if tok, ok := normalize.Domain(d); ok {
			e.genericDomains[tok] = struct{}{}
		} else if d = strings.ToLower(strings.TrimSpace(d)); d != "" {
			e.genericDomains[d] = struct{}{}
		}
	}
	return e
}

func (e *Engine) generic(domainToken string) bool {
	if _, ok := e.genericDomains[domainToken]; ok {
		return true
	}
	// Subdomains of a generic provider are generic too.
	for g := range e.genericDomains {
		if strings.HasSuffix(domainToken, "."+g) {
			return true
		}
	}
	return false
}

// GenericDomain reports whether an extracted domain token belongs to a
// generic provider. The candidate index uses it so gmail et al. never
// become lookup keys.
func (e *Engine) GenericDomain(domainToken string) bool {
	return e.generic(domainToken)
}

// Compare scores a pair of same-kind entities. Entities without a
// display name are malformed and refuse scoring rather than scoring 0.
func (e *Engine) Compare(a, b model.EntityRecord) (model.SimilarityResult, error) {
	if a.Name == "" || b.Name == "" {
		return model.SimilarityResult{}, model.ErrMissingDisplayName
	}
	if a.Kind != b.Kind {
		return model.SimilarityResult{}, model.ErrKindMismatch
	}

	na, nb := normalize.Name(a.Name), normalize.Name(b.Name)
	if na == "" || nb == "" {
		// All-punctuation names normalize away entirely.
		return model.SimilarityResult{}, model.ErrMissingDisplayName
	}
	nameVal, acronym, nameExact := nameSignal(na, nb)

	sum := weightName * nameVal
	weights := weightName
	signals := model.Signals{Name: nameVal, Acronym: acronym}
	exact := nameExact

	if idVal, present, idExact := e.identifierSignal(a, b); present {
		sum += weightIdentifier * idVal
		weights += weightIdentifier
		signals.Identifier = &idVal
		exact = exact || idExact
	}
	if affVal, present := e.affiliationSignal(a, b); present {
		sum += weightAffiliation * affVal
		weights += weightAffiliation
		signals.Affiliation = &affVal
	}
	if minVal, present := minorSignal(a, b); present {
		sum += weightMinor * minVal
		weights += weightMinor
		signals.Minor = &minVal
	}

	method := model.MatchHeuristic
	if exact {
		method = model.MatchExact
	}
	return model.SimilarityResult{
		AUUID:   a.UUID,
		BUUID:   b.UUID,
		Score:   sum / weights,
		Signals: signals,
		Method:  method,
	}, nil
}

// nameSignal applies the match rules in order: exact, acronym,
// substring, abbreviated person form, then the edit-distance/Jaccard
// blend.
func nameSignal(na, nb string) (score float64, acronym, exact bool) {
	if na == nb {
		return 1, false, true
	}
	if isAcronymOf(na, nb) || isAcronymOf(nb, na) {
		return acronymScore, true, false
	}
	if strings.Contains(na, nb) || strings.Contains(nb, na) {
		shorter, longer := float64(len([]rune(na))), float64(len([]rune(nb)))
		if shorter > longer {
			shorter, longer = longer, shorter
		}
		return math.Max(substringFloor, shorter/longer), false, false
	}
	if abbreviatedForm(na, nb) {
		return abbreviatedScore, false, false
	}
	blend := editBlend*levenshteinSim(na, nb) +
		jaccardBlend*tokenJaccard(normalize.Tokens(na), normalize.Tokens(nb))
	return blend, false, false
}

// isAcronymOf reports whether short is a single token of at most five
// letters spelling the initials of long's tokens ("ibm" for
// "international business machines").
func isAcronymOf(short, long string) bool {
	st := normalize.Tokens(short)
	lt := normalize.Tokens(long)
	if len(st) != 1 || len(lt) < 2 {
		return false
	}
	r := []rune(st[0])
	if len(r) > 5 || len(r) != len(lt) {
		return false
	}
	for i, tok := range lt {
		if []rune(tok)[0] != r[i] {
			return false
		}
	}
	return true
}

// abbreviatedForm matches initialed person names against their long
// form: same surname, every leading token either equal or a single
// letter matching the other side's token initial ("j silva" vs
// "joão silva").
func abbreviatedForm(na, nb string) bool {
	ta, tb := normalize.Tokens(na), normalize.Tokens(nb)
	if len(ta) != len(tb) || len(ta) < 2 {
		return false
	}
	if ta[len(ta)-1] != tb[len(tb)-1] {
		return false
	}
	sawInitial := false
	for i := 0; i < len(ta)-1; i++ {
		ra, rb := []rune(ta[i]), []rune(tb[i])
		switch {
		case ta[i] == tb[i]:
		case len(ra) == 1 && ra[0] == rb[0]:
			sawInitial = true
		case len(rb) == 1 && rb[0] == ra[0]:
			sawInitial = true
		default:
			return false
		}
	}
	return sawInitial
}

func (e *Engine) identifierSignal(a, b model.EntityRecord) (val float64, present, exact bool) {
	switch a.Kind {
	case model.KindPerson:
		ea := strings.ToLower(strings.TrimSpace(a.Email))
		eb := strings.ToLower(strings.TrimSpace(b.Email))
		if ea == "" || eb == "" {
			return 0, false, false
		}
		if ea == eb {
			return 1, true, true
		}
		da, aok := normalize.Domain(ea)
		db, bok := normalize.Domain(eb)
		if aok && bok && da == db && !e.generic(da) {
			return sharedDomainScore, true, false
		}
		if sim := levenshteinSim(localPart(ea), localPart(eb)); sim > localPartThreshold {
			return sim, true, false
		}
		return 0, true, false

	case model.KindOrganization:
		da, aok := normalize.Domain(a.Domain)
		db, bok := normalize.Domain(b.Domain)
		if !aok || !bok {
			return 0, false, false
		}
		// Generic-provider domains carry no organization identity.
		if e.generic(da) || e.generic(db) {
			return 0, false, false
		}
		if da == db {
			return 1, true, true
		}
		return 0, true, false
	}
	return 0, false, false
}

func localPart(email string) string {
	if at := strings.LastIndex(email, "@"); at >= 0 {
		return email[:at]
	}
	return email
}

// affiliationSignal compares declared affiliations; a declared
// affiliation also matches the other side's comparable domain token or
// industry, so "CGI" lines up with cgi.com.
func (e *Engine) affiliationSignal(a, b model.EntityRecord) (float64, bool) {
	fa := normalize.Name(a.Affiliation)
	fb := normalize.Name(b.Affiliation)
	if fa == "" || fb == "" {
		return 0, false
	}
	if fa == fb {
		return 1, true
	}
	if e.matchesSideEvidence(fa, b) || e.matchesSideEvidence(fb, a) {
		return 1, true
	}
	return 0, true
}

func (e *Engine) matchesSideEvidence(affiliation string, rec model.EntityRecord) bool {
	if d, ok := e.domainToken(rec); ok && affiliation == d {
		return true
	}
	if ind := normalize.Name(rec.Industry); ind != "" && affiliation == ind {
		return true
	}
	return false
}

func (e *Engine) domainToken(rec model.EntityRecord) (string, bool) {
	src := rec.Domain
	if rec.Kind == model.KindPerson {
		src = rec.Email
	}
	tok, ok := normalize.Domain(src)
	if !ok || e.generic(tok) {
		return "", false
	}
	return tok, true
}

// minorSignal is the low-weight role/industry comparison.
func minorSignal(a, b model.EntityRecord) (float64, bool) {
	va, vb := a.Role, b.Role
	if a.Kind == model.KindOrganization {
		va, vb = a.Industry, b.Industry
	}
	na, nb := normalize.Name(va), normalize.Name(vb)
	if na == "" || nb == "" {
		return 0, false
	}
	if na == nb {
		return 1, true
	}
	if strings.Contains(na, nb) || strings.Contains(nb, na) {
		return minorSubstringScore, true
	}
	return 0, true
}
