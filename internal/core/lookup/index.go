// Package lookup generates candidate duplicate pairs without pairwise
// scans: entities only meet when they share a name-key prefix, an
// initials key, or a domain key within the same group and kind.
package lookup

import (
	"sort"

	"github.com/agenthands/amalgam/internal/core/model"
	"github.com/agenthands/amalgam/internal/core/normalize"
)

// DefaultBucketCap bounds pairing inside one bucket so a degenerate key
// (every "John …" in a big tenant) cannot go quadratic.
const DefaultBucketCap = 64

// Keys are the three candidate keys of an entity. They are also stored
// on the node (name_key, initials_key, domain_key) so the incremental
// finder can use the same collision rules through store indices.
type Keys struct {
	NameKey  string
	Prefix   string
	Initials string
	Domain   string
}

// KeysFor derives candidate keys. genericDomain may be nil; when it
// reports true the domain key is dropped, keeping free-mail providers
// from bucketing the whole tenant together.
func KeysFor(rec model.EntityRecord, genericDomain func(string) bool) Keys {
	name := normalize.Name(rec.Name)
	k := Keys{
		NameKey:  name,
		Prefix:   normalize.Prefix(name, normalize.PrefixLen),
		Initials: normalize.Initials(name),
	}
	src := rec.Domain
	if rec.Kind == model.KindPerson {
		src = rec.Email
	}
	if d, ok := normalize.Domain(src); ok {
		if genericDomain == nil || !genericDomain(d) {
			k.Domain = d
		}
	}
	return k
}

type bucketKey struct {
	group string
	kind  model.Kind
	class uint8 // 0 prefix, 1 initials, 2 domain
	key   string
}

type Pair struct {
	A, B model.EntityRecord
}

type Index struct {
	buckets       map[bucketKey][]model.EntityRecord
	genericDomain func(string) bool
	bucketCap     int
	overflowed    int
	added         int
}

// NewIndex builds an empty index. bucketCap <= 0 uses DefaultBucketCap.
func NewIndex(genericDomain func(string) bool, bucketCap int) *Index {
	if bucketCap <= 0 {
		bucketCap = DefaultBucketCap
	}
	return &Index{
		buckets:       make(map[bucketKey][]model.EntityRecord),
		genericDomain: genericDomain,
		bucketCap:     bucketCap,
	}
}

// Add files the entity under each of its non-empty keys. Callers filter
// malformed entities first.
func (ix *Index) Add(rec model.EntityRecord) {
	keys := KeysFor(rec, ix.genericDomain)
	ix.added++
	ix.put(rec, 0, keys.Prefix)
	ix.put(rec, 1, keys.Initials)
	ix.put(rec, 2, keys.Domain)
}

func (ix *Index) put(rec model.EntityRecord, class uint8, key string) {
	if key == "" {
		return
	}
	bk := bucketKey{group: rec.GroupID, kind: rec.Kind, class: class, key: key}
	ix.buckets[bk] = append(ix.buckets[bk], rec)
}

// Pairs yields every unordered candidate pair exactly once, in a
// deterministic order. Buckets beyond the cap pair only their first
// bucketCap members (sorted by uuid); oversized buckets are counted so
// the pass can report them.
func (ix *Index) Pairs() []Pair {
	ix.overflowed = 0
	seen := make(map[string]struct{})
	var out []Pair
	for _, members := range ix.buckets {
		if len(members) < 2 {
			continue
		}
		sort.Slice(members, func(i, j int) bool { return members[i].UUID < members[j].UUID })
		limit := len(members)
		if limit > ix.bucketCap {
			limit = ix.bucketCap
			ix.overflowed++
		}
		for i := 0; i < limit; i++ {
			for j := i + 1; j < limit; j++ {
				key := model.PairKey(members[i].UUID, members[j].UUID)
				if _, dup := seen[key]; dup {
					continue
				}
				seen[key] = struct{}{}
				out = append(out, Pair{A: members[i], B: members[j]})
			}
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return model.PairKey(out[i].A.UUID, out[i].B.UUID) < model.PairKey(out[j].A.UUID, out[j].B.UUID)
	})
	return out
}

// Size reports how many entities were added.
func (ix *Index) Size() int { return ix.added }

// Overflowed reports buckets that hit the pairing cap in the last
// Pairs call.
func (ix *Index) Overflowed() int { return ix.overflowed }
