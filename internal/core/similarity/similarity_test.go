package similarity

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/agenthands/amalgam/internal/core/model"
)

func person(uuid, name, email string) model.EntityRecord {
	return model.EntityRecord{UUID: uuid, Kind: model.KindPerson, Name: name, Email: email}
}

func org(uuid, name, domain string) model.EntityRecord {
	return model.EntityRecord{UUID: uuid, Kind: model.KindOrganization, Name: name, Domain: domain}
}

func TestCompare_AbbreviatedNameWithSharedDomain(t *testing.T) {
	// João Silva vs J. Silva on the same corporate domain: name hits the
	// abbreviated-form rule (0.85), identifier the shared-domain rule
	// (0.95), affiliation absent. (0.5*0.85 + 0.3*0.95) / 0.8 = 0.8875,
	// inside the review band.
	e := NewEngine(nil)
	a := person("a", "João Silva", "joao.silva@cgi.com")
	b := person("b", "J. Silva", "j.silva@cgi.com")

	res, err := e.Compare(a, b)
	assert.NoError(t, err)
	assert.InDelta(t, 0.8875, res.Score, 1e-9)
	assert.GreaterOrEqual(t, res.Score, 0.75)
	assert.Less(t, res.Score, 0.90)
	assert.Equal(t, model.MatchHeuristic, res.Method)
	assert.InDelta(t, 0.85, res.Signals.Name, 1e-9)
	if assert.NotNil(t, res.Signals.Identifier) {
		assert.InDelta(t, 0.95, *res.Signals.Identifier, 1e-9)
	}
	assert.Nil(t, res.Signals.Affiliation)
}

func TestCompare_AffiliationLiftsPastAutoMerge(t *testing.T) {
	// Same pair with "CGI" declared on both sides: the affiliation
	// signal joins the denominator and the score crosses 0.90.
	e := NewEngine(nil)
	a := person("a", "João Silva", "joao.silva@cgi.com")
	a.Affiliation = "CGI"
	b := person("b", "J. Silva", "j.silva@cgi.com")
	b.Affiliation = "CGI"

	res, err := e.Compare(a, b)
	assert.NoError(t, err)
	assert.Greater(t, res.Score, 0.90)
	assert.InDelta(t, 0.86/0.95, res.Score, 1e-9)
}

func TestCompare_AffiliationMatchesDomainToken(t *testing.T) {
	// A declared affiliation lines up with the other side's extracted
	// domain token: "CGI" vs someone on cgi.com.
	e := NewEngine(nil)
	a := person("a", "João Silva", "")
	a.Affiliation = "CGI"
	b := person("b", "João Silva", "j.silva@cgi.com")
	b.Affiliation = "CGI Group"

	res, err := e.Compare(a, b)
	assert.NoError(t, err)
	if assert.NotNil(t, res.Signals.Affiliation) {
		assert.InDelta(t, 1.0, *res.Signals.Affiliation, 1e-9)
	}
	// Only one side has an email, so the identifier signal is absent.
	assert.Nil(t, res.Signals.Identifier)
}

func TestCompare_GenericDomainGivesNoEvidence(t *testing.T) {
	// The same names on gmail: shared free-mail domains are provider
	// noise, not employer identity. Identifier stays present (both have
	// emails) but contributes nothing, dragging the pair to distinct.
	e := NewEngine(nil)
	a := person("a", "João Silva", "joao.silva@gmail.com")
	b := person("b", "J. Silva", "j.silva@gmail.com")

	res, err := e.Compare(a, b)
	assert.NoError(t, err)
	if assert.NotNil(t, res.Signals.Identifier) {
		assert.Equal(t, 0.0, *res.Signals.Identifier)
	}
	assert.InDelta(t, (0.5*0.85)/0.8, res.Score, 1e-9)
	assert.Less(t, res.Score, 0.75)
}

func TestCompare_ExactEmailOnGenericDomainStillCounts(t *testing.T) {
	// The denylist gates domain sharing, never full-address equality.
	e := NewEngine(nil)
	a := person("a", "João Silva", "joao.silva@gmail.com")
	b := person("b", "J. Silva", "joao.silva@gmail.com")

	res, err := e.Compare(a, b)
	assert.NoError(t, err)
	if assert.NotNil(t, res.Signals.Identifier) {
		assert.Equal(t, 1.0, *res.Signals.Identifier)
	}
	assert.Equal(t, model.MatchExact, res.Method)
}

func TestCompare_Acronym(t *testing.T) {
	e := NewEngine(nil)
	a := org("a", "IBM", "")
	b := org("b", "International Business Machines", "")

	res, err := e.Compare(a, b)
	assert.NoError(t, err)
	assert.True(t, res.Signals.Acronym)
	assert.InDelta(t, 0.9, res.Signals.Name, 1e-9)
	// Name is the only present signal, so the acronym value carries the
	// whole score.
	assert.GreaterOrEqual(t, res.Score, 0.85)
	assert.InDelta(t, 0.9, res.Score, 1e-9)
}

func TestCompare_SubstringName(t *testing.T) {
	e := NewEngine(nil)
	res, err := e.Compare(org("a", "Apex", ""), org("b", "Apex Global Logistics", ""))
	assert.NoError(t, err)
	// Short fragment of a long name floors at 0.85.
	assert.InDelta(t, 0.85, res.Signals.Name, 1e-9)

	res, err = e.Compare(org("a", "Apex Global", ""), org("b", "Apex Global Logistics", ""))
	assert.NoError(t, err)
	// 11 of 21 runes is still below the 0.85 floor.
	assert.InDelta(t, 0.85, res.Signals.Name, 1e-9)
}

func TestCompare_OrgDomainIdentity(t *testing.T) {
	e := NewEngine(nil)
	a := org("a", "CGI Group", "cgi.com")
	b := org("b", "CGI Inc.", "www.cgi.com")

	res, err := e.Compare(a, b)
	assert.NoError(t, err)
	if assert.NotNil(t, res.Signals.Identifier) {
		assert.Equal(t, 1.0, *res.Signals.Identifier)
	}
	assert.Equal(t, model.MatchExact, res.Method)
}

func TestCompare_OrgGenericDomainIsAbsent(t *testing.T) {
	// Organizations on free-mail domains get no identifier signal at
	// all; the weight leaves the denominator.
	e := NewEngine(nil)
	a := org("a", "Acme Flowers", "gmail.com")
	b := org("b", "Acme Flowers", "gmail.com")

	res, err := e.Compare(a, b)
	assert.NoError(t, err)
	assert.Nil(t, res.Signals.Identifier)
	assert.InDelta(t, 1.0, res.Score, 1e-9) // exact name alone
}

func TestCompare_LocalPartPartialMatch(t *testing.T) {
	e := NewEngine(nil)
	a := person("a", "Catherine Jones", "catherine.jones@acme.com")
	b := person("b", "Catherine Jones", "catherine.jone@apex.org")

	res, err := e.Compare(a, b)
	assert.NoError(t, err)
	if assert.NotNil(t, res.Signals.Identifier) {
		// 1 edit across 15 runes.
		assert.InDelta(t, 14.0/15.0, *res.Signals.Identifier, 1e-9)
	}
}

func TestCompare_MinorRoleSignal(t *testing.T) {
	e := NewEngine(nil)
	a := person("a", "Ada Byron", "")
	a.Role = "Chief Engineer"
	b := person("b", "Ada Byron", "")
	b.Role = "Engineer"

	res, err := e.Compare(a, b)
	assert.NoError(t, err)
	if assert.NotNil(t, res.Signals.Minor) {
		assert.InDelta(t, 0.8, *res.Signals.Minor, 1e-9)
	}
}

func TestCompare_SymmetryAndDeterminism(t *testing.T) {
	e := NewEngine(nil)
	a := person("a", "João Silva", "joao.silva@cgi.com")
	a.Affiliation = "CGI"
	b := person("b", "J. Silva", "j.silva@cgi.com")

	ab1, err := e.Compare(a, b)
	assert.NoError(t, err)
	ab2, err := e.Compare(a, b)
	assert.NoError(t, err)
	ba, err := e.Compare(b, a)
	assert.NoError(t, err)

	assert.Equal(t, ab1.Score, ab2.Score)
	assert.Equal(t, ab1.Signals, ab2.Signals)
	assert.Equal(t, ab1.Score, ba.Score)
}

func TestCompare_MalformedEntity(t *testing.T) {
	e := NewEngine(nil)
	_, err := e.Compare(person("a", "", "x@y.com"), person("b", "Bob", ""))
	assert.ErrorIs(t, err, model.ErrMissingDisplayName)

	// Names that are nothing but punctuation normalize to empty and are
	// just as unusable as missing ones.
	_, err = e.Compare(person("a", "(?)", ""), person("b", "Bob", ""))
	assert.ErrorIs(t, err, model.ErrMissingDisplayName)
}

func TestCompare_KindMismatch(t *testing.T) {
	e := NewEngine(nil)
	_, err := e.Compare(person("a", "Mercury", ""), org("b", "Mercury", ""))
	assert.ErrorIs(t, err, model.ErrKindMismatch)
}

func TestCompare_ExtraGenericDomains(t *testing.T) {
	e := NewEngine([]string{"corp-mail.com"})
	a := person("a", "João Silva", "joao.silva@corp-mail.com")
	b := person("b", "J. Silva", "j.silva@corp-mail.com")

	res, err := e.Compare(a, b)
	assert.NoError(t, err)
	if assert.NotNil(t, res.Signals.Identifier) {
		assert.Equal(t, 0.0, *res.Signals.Identifier)
	}
}

func TestLevenshteinDistance(t *testing.T) {
	assert.Equal(t, 0, levenshteinDistance("silva", "silva"))
	assert.Equal(t, 1, levenshteinDistance("silva", "silvas"))
	assert.Equal(t, 3, levenshteinDistance("kitten", "sitting"))
	assert.Equal(t, 5, levenshteinDistance("", "silva"))
	// Runes, not bytes.
	assert.Equal(t, 1, levenshteinDistance("joão", "joao"))
}

func TestLevenshteinSim(t *testing.T) {
	assert.InDelta(t, 1.0, levenshteinSim("silva", "silva"), 1e-9)
	// (7-3)/7 for kitten/sitting.
	assert.InDelta(t, 4.0/7.0, levenshteinSim("kitten", "sitting"), 1e-9)
	assert.InDelta(t, 1.0, levenshteinSim("", ""), 1e-9)
	assert.InDelta(t, 0.0, levenshteinSim("", "ab"), 1e-9)
}

func TestTokenJaccard(t *testing.T) {
	assert.InDelta(t, 1.0, tokenJaccard([]string{"a", "b"}, []string{"b", "a"}), 1e-9)
	assert.InDelta(t, 1.0/3.0, tokenJaccard([]string{"joão", "silva"}, []string{"j", "silva"}), 1e-9)
	assert.InDelta(t, 0.0, tokenJaccard([]string{"x"}, nil), 1e-9)
	// Duplicate tokens collapse into the set.
	assert.InDelta(t, 1.0, tokenJaccard([]string{"a", "a"}, []string{"a"}), 1e-9)
}
