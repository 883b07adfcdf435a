package postgres

// schema is applied by EnsureSchema. URL uniqueness is enforced here;
// the claim path relies on row locks, not on any schema-level state.
const schema = `
CREATE TABLE IF NOT EXISTS crawl_targets (
	url             TEXT PRIMARY KEY,
	domain          TEXT NOT NULL,
	depth           INTEGER NOT NULL DEFAULT 0,
	status          TEXT NOT NULL DEFAULT 'pending',
	score           DOUBLE PRECISION NOT NULL DEFAULT 100.0,
	error_count     INTEGER NOT NULL DEFAULT 0,
	blocked_reason  TEXT,
	last_crawled_at TIMESTAMPTZ,
	next_crawl_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	deleted_at      TIMESTAMPTZ,
	created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	CONSTRAINT crawl_targets_blocked_reason_check
		CHECK ((status = 'blocked') = (blocked_reason IS NOT NULL)),
	CONSTRAINT crawl_targets_deleted_at_check
		CHECK ((status = 'deleted') = (deleted_at IS NOT NULL))
);

CREATE INDEX IF NOT EXISTS crawl_targets_claim_idx
	ON crawl_targets (score DESC, next_crawl_at ASC)
	WHERE status IN ('pending', 'done', 'error') AND deleted_at IS NULL;

CREATE INDEX IF NOT EXISTS crawl_targets_domain_idx
	ON crawl_targets (domain);
`
