package driver

const (
	SaveEntityQuery = `
		MERGE (n:Entity {uuid: $uuid})
		SET n += $props
		RETURN n.uuid AS uuid
	`

	GetEntityQuery = `
		MATCH (n:Entity {uuid: $uuid})
		RETURN n
	`

	GetEntitiesQuery = `
		MATCH (n:Entity)
		WHERE n.uuid IN $uuids
		RETURN n
		ORDER BY n.uuid
	`

	// Resolves a uuid against live entities and tombstones in one round trip.
	ResolvePointerQuery = `
		OPTIONAL MATCH (e:Entity {uuid: $uuid})
		OPTIONAL MATCH (m:Merged {uuid: $uuid})
		RETURN e, m.merged_into AS merged_into
	`

	LoadEntitiesQuery = `
		MATCH (n:Entity)
		RETURN n
		ORDER BY n.uuid
	`

	// RFC3339 strings order lexicographically, so string comparison is
	// chronological comparison here.
	LoadEntitiesSinceQuery = `
		MATCH (n:Entity)
		WHERE n.updated_at >= $since
		RETURN n
		ORDER BY n.uuid
	`

	FindCandidatesQuery = `
		MATCH (n:Entity {group_id: $group_id, kind: $kind})
		WHERE n.uuid <> $uuid
			AND (($prefix <> "" AND n.name_key STARTS WITH $prefix)
				OR ($initials <> "" AND n.initials_key = $initials)
				OR ($domain <> "" AND n.domain_key = $domain))
		RETURN n
		ORDER BY n.uuid
		LIMIT $limit
	`

	SetEntityPropsQuery = `
		MATCH (n:Entity {uuid: $uuid})
		SET n += $props
		RETURN n.uuid AS uuid
	`

	// Must run before the rewire queries: edges between the pair would
	// otherwise be copied onto the primary as self-loops.
	DropPairEdgesQuery = `
		MATCH (a:Entity {uuid: $primary_uuid})-[r:RELATES_TO|RESOLVED_DISTINCT]-(b:Entity {uuid: $secondary_uuid})
		DELETE r
		RETURN count(*) AS dropped
	`

	RewireOutgoingRelatesQuery = `
		MATCH (s:Entity {uuid: $secondary_uuid})-[r:RELATES_TO]->(t)
		MATCH (p:Entity {uuid: $primary_uuid})
		CREATE (p)-[nr:RELATES_TO]->(t)
		SET nr = properties(r)
		DELETE r
		RETURN count(*) AS rewired
	`

	RewireIncomingRelatesQuery = `
		MATCH (t)-[r:RELATES_TO]->(s:Entity {uuid: $secondary_uuid})
		MATCH (p:Entity {uuid: $primary_uuid})
		CREATE (t)-[nr:RELATES_TO]->(p)
		SET nr = properties(r)
		DELETE r
		RETURN count(*) AS rewired
	`

	RewireMentionsQuery = `
		MATCH (ep:Episodic)-[r:MENTIONS]->(s:Entity {uuid: $secondary_uuid})
		MATCH (p:Entity {uuid: $primary_uuid})
		CREATE (ep)-[nr:MENTIONS]->(p)
		SET nr = properties(r)
		DELETE r
		RETURN count(*) AS rewired
	`

	RetireEntityQuery = `
		MATCH (n:Entity {uuid: $uuid})
		REMOVE n:Entity
		SET n:Merged,
			n.merged_into = $merged_into,
			n.deleted_at = $deleted_at
		RETURN n.uuid AS uuid
	`

	SaveReviewFlagQuery = `
		MERGE (f:ReviewFlag {pair_key: $pair_key})
		ON CREATE SET f.uuid = $uuid, f.created_at = $created_at
		SET f.group_id = $group_id,
			f.kind = $kind,
			f.primary_uuid = $primary_uuid,
			f.secondary_uuid = $secondary_uuid,
			f.score = $score,
			f.method = $method,
			f.reason = $reason
		RETURN f.uuid AS uuid
	`

	GetReviewFlagQuery = `
		MATCH (f:ReviewFlag {uuid: $uuid})
		RETURN f
	`

	ListReviewFlagsQuery = `
		MATCH (f:ReviewFlag)
		WHERE $group_id = "" OR f.group_id = $group_id
		RETURN f
		ORDER BY f.created_at DESC
		SKIP $offset
		LIMIT $limit
	`

	DeleteReviewFlagQuery = `
		MATCH (f:ReviewFlag {uuid: $uuid})
		DELETE f
		RETURN count(*) AS deleted
	`

	DeleteReviewFlagByPairQuery = `
		MATCH (f:ReviewFlag {pair_key: $pair_key})
		DELETE f
		RETURN count(*) AS deleted
	`

	SaveDistinctPairQuery = `
		MATCH (a:Entity {uuid: $a_uuid})
		MATCH (b:Entity {uuid: $b_uuid})
		MERGE (a)-[r:RESOLVED_DISTINCT]->(b)
		ON CREATE SET r.created_at = $created_at, r.reason = $reason
		RETURN count(*) AS saved
	`

	LoadDistinctPairsQuery = `
		MATCH (a:Entity)-[r:RESOLVED_DISTINCT]->(b:Entity)
		RETURN a.uuid AS a_uuid, b.uuid AS b_uuid
	`

	GetConfidenceQuery = `
		MATCH (n:Entity {uuid: $uuid})
		RETURN n.confidence AS confidence, n.corroborations AS corroborations
	`

	SetConfidenceQuery = `
		MATCH (n:Entity {uuid: $uuid})
		SET n.confidence = $confidence,
			n.corroborations = $corroborations,
			n.updated_at = $updated_at
		RETURN n.confidence AS confidence
	`

	LowConfidenceQuery = `
		MATCH (n:Entity)
		WHERE n.confidence < $threshold
			AND ($group_id = "" OR n.group_id = $group_id)
		RETURN n
		ORDER BY n.confidence ASC
		LIMIT $limit
	`
)
