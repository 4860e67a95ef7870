package store

const (
	TableOperators     = "operators"
	TableViolations    = "violations"
	TableStakingEvents = "staking_events"
)

var schema = `
CREATE TABLE IF NOT EXISTS ` + TableOperators + ` (
	operator_id            TEXT PRIMARY KEY,
	inserted_at            TIMESTAMP NOT NULL DEFAULT current_timestamp,
	wallet_address         TEXT NOT NULL,
	staked_amount          NUMERIC(78, 0) NOT NULL DEFAULT 0,
	performance_score      DOUBLE PRECISION NOT NULL DEFAULT 100,
	registered_at          TIMESTAMPTZ NOT NULL,
	last_performance_check TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS ` + TableViolations + ` (
	seq              BIGSERIAL,
	id               TEXT PRIMARY KEY,
	operator_id      TEXT NOT NULL REFERENCES ` + TableOperators + ` (operator_id),
	type             TEXT NOT NULL,
	timestamp        TIMESTAMPTZ NOT NULL,
	duration_minutes BIGINT,
	severity         TEXT NOT NULL,
	description      TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS violations_operator_idx ON ` + TableViolations + ` (operator_id, seq);

CREATE TABLE IF NOT EXISTS ` + TableStakingEvents + ` (
	id          BIGSERIAL PRIMARY KEY,
	inserted_at TIMESTAMP NOT NULL DEFAULT current_timestamp,
	operator_id TEXT NOT NULL REFERENCES ` + TableOperators + ` (operator_id),
	type        TEXT NOT NULL,
	amount      NUMERIC(78, 0) NOT NULL,
	timestamp   TIMESTAMPTZ NOT NULL,
	reason      TEXT
);

CREATE INDEX IF NOT EXISTS staking_events_operator_idx ON ` + TableStakingEvents + ` (operator_id, id);
`
