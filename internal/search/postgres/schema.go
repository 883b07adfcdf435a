package postgres

// schema is applied by EnsureSchema. The (source_query, target_query)
// uniqueness the resolver depends on is enforced here.
const schema = `
CREATE TABLE IF NOT EXISTS query_relations (
	source_query  TEXT NOT NULL,
	target_query  TEXT NOT NULL,
	relation_type TEXT NOT NULL,
	score         DOUBLE PRECISION NOT NULL,
	source_origin TEXT NOT NULL,
	updated_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	PRIMARY KEY (source_query, target_query),
	CONSTRAINT query_relations_no_self_loop CHECK (source_query <> target_query),
	CONSTRAINT query_relations_score_range CHECK (score >= 0 AND score <= 1)
);

CREATE INDEX IF NOT EXISTS query_relations_origin_idx
	ON query_relations (source_origin);

CREATE TABLE IF NOT EXISTS search_logs (
	id               UUID PRIMARY KEY,
	raw_query        TEXT NOT NULL,
	normalized_query TEXT NOT NULL,
	expanded_queries JSONB NOT NULL DEFAULT '[]'::jsonb,
	session_id       TEXT,
	created_at       TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS search_logs_created_idx
	ON search_logs (created_at);

CREATE TABLE IF NOT EXISTS click_logs (
	id            BIGSERIAL PRIMARY KEY,
	search_log_id UUID NOT NULL REFERENCES search_logs (id),
	url           TEXT NOT NULL,
	rank          INTEGER NOT NULL,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS click_logs_search_idx
	ON click_logs (search_log_id);
`
