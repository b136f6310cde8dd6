package merge

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/agenthands/amalgam/internal/core/lookup"
	"github.com/agenthands/amalgam/internal/core/model"
	"github.com/agenthands/amalgam/internal/driver"
)

// Outcome reports what a merge actually did. Noop means both ids
// resolved to the same terminal entity and nothing was written.
type Outcome struct {
	PrimaryUUID   string
	SecondaryUUID string
	EdgesRewired  int
	Noop          bool
}

// Executor performs merges against the graph store. Merges within a
// pass run serially; the executor does not synchronize across
// processes.
type Executor struct {
	driver        driver.GraphDriver
	genericDomain func(string) bool
	log           *zap.Logger
}

func NewExecutor(d driver.GraphDriver, genericDomain func(string) bool, log *zap.Logger) *Executor {
	return &Executor{driver: d, genericDomain: genericDomain, log: log.Named("merge")}
}

// ResolveAlias follows merged_into pointers to the live terminal of a
// chain (A merged into B merged into C resolves to C). Ids with no
// node at all resolve to themselves.
func (x *Executor) ResolveAlias(ctx context.Context, id string) (string, error) {
	seen := make(map[string]struct{})
	var chain []string
	cur := id
	for {
		if _, dup := seen[cur]; dup {
			return "", &ConflictError{UUID: id, Reason: "superseded chain cycles", Chain: append(chain, cur)}
		}
		seen[cur] = struct{}{}
		chain = append(chain, cur)

		res, err := x.driver.ExecuteQuery(ctx, driver.ResolvePointerQuery, map[string]interface{}{"uuid": cur})
		if err != nil {
			return "", fmt.Errorf("failed to resolve alias %s: %w", id, err)
		}
		if len(res.Records) == 0 {
			return cur, nil
		}
		rec := res.Records[0]
		if _, live := driver.EntityFromRecord(rec, "e"); live {
			return cur, nil
		}
		next, _ := rec.Get("merged_into")
		target, ok := next.(string)
		if !ok || target == "" {
			return cur, nil
		}
		cur = target
	}
}

// Execute merges secondary into primary. Both ids are resolved through
// superseded chains first; equal terminals make the call an idempotent
// no-op. The survivor among the terminals is re-chosen, so callers may
// pass the pair in either order.
func (x *Executor) Execute(ctx context.Context, primaryID, secondaryID, reason string) (Outcome, error) {
	pid, err := x.ResolveAlias(ctx, primaryID)
	if err != nil {
		return Outcome{}, err
	}
	sid, err := x.ResolveAlias(ctx, secondaryID)
	if err != nil {
		return Outcome{}, err
	}
	if pid == sid {
		return Outcome{PrimaryUUID: pid, SecondaryUUID: sid, Noop: true}, nil
	}

	// Refetch terminals: earlier merges in the pass may have rewritten
	// either record since the pair was scored.
	p, ok, err := x.fetch(ctx, pid)
	if err != nil {
		return Outcome{}, err
	}
	if !ok {
		return Outcome{}, &ConflictError{UUID: pid, Reason: "entity retired mid-pass"}
	}
	s, ok, err := x.fetch(ctx, sid)
	if err != nil {
		return Outcome{}, err
	}
	if !ok {
		return Outcome{}, &ConflictError{UUID: sid, Reason: "entity retired mid-pass"}
	}

	// Chain hops can flip which side should survive.
	p, s = ChoosePrimary(p, s)

	now := time.Now().UTC()
	merged := Plan(p, s)
	merged.UpdatedAt = now
	keys := lookup.KeysFor(merged, x.genericDomain)
	props := driver.EntityProps(merged)
	props["name_key"] = keys.NameKey
	props["initials_key"] = keys.Initials
	props["domain_key"] = keys.Domain

	if _, err := x.driver.ExecuteQuery(ctx, driver.SetEntityPropsQuery, map[string]interface{}{
		"uuid":  p.UUID,
		"props": props,
	}); err != nil {
		return Outcome{}, fmt.Errorf("failed to apply merge plan to %s: %w", p.UUID, err)
	}

	pair := map[string]interface{}{
		"primary_uuid":   p.UUID,
		"secondary_uuid": s.UUID,
	}
	if _, err := x.driver.ExecuteQuery(ctx, driver.DropPairEdgesQuery, pair); err != nil {
		return Outcome{}, fmt.Errorf("failed to drop pair edges: %w", err)
	}

	rewired := 0
	for _, q := range []string{driver.RewireOutgoingRelatesQuery, driver.RewireIncomingRelatesQuery, driver.RewireMentionsQuery} {
		res, err := x.driver.ExecuteQuery(ctx, q, pair)
		if err != nil {
			return Outcome{}, fmt.Errorf("failed to rewire edges of %s: %w", s.UUID, err)
		}
		if len(res.Records) > 0 {
			rewired += driver.RecordInt(res.Records[0], "rewired")
		}
	}

	if _, err := x.driver.ExecuteQuery(ctx, driver.RetireEntityQuery, map[string]interface{}{
		"uuid":        s.UUID,
		"merged_into": p.UUID,
		"deleted_at":  now.Format(time.RFC3339),
	}); err != nil {
		return Outcome{}, fmt.Errorf("failed to retire %s: %w", s.UUID, err)
	}

	x.log.Info("merged entities",
		zap.String("primary", p.UUID),
		zap.String("secondary", s.UUID),
		zap.Int("edges_rewired", rewired),
		zap.String("reason", reason))

	return Outcome{PrimaryUUID: p.UUID, SecondaryUUID: s.UUID, EdgesRewired: rewired}, nil
}

func (x *Executor) fetch(ctx context.Context, id string) (model.EntityRecord, bool, error) {
	res, err := x.driver.ExecuteQuery(ctx, driver.GetEntityQuery, map[string]interface{}{"uuid": id})
	if err != nil {
		return model.EntityRecord{}, false, fmt.Errorf("failed to fetch entity %s: %w", id, err)
	}
	if len(res.Records) == 0 {
		return model.EntityRecord{}, false, nil
	}
	rec, ok := driver.EntityFromRecord(res.Records[0], "n")
	return rec, ok, nil
}
