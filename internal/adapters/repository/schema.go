package repository

// Schema avoids FK constraints so admin purge and recompute flows stay
// fully controlled by application transactions.
const schema = `
CREATE TABLE IF NOT EXISTS sessions (
	id              TEXT PRIMARY KEY,
	status          TEXT NOT NULL,
	owner_id        TEXT NOT NULL DEFAULT '',
	share_token_id  TEXT NOT NULL DEFAULT '',
	engine_version  TEXT NOT NULL DEFAULT '',
	fc_version      TEXT NOT NULL DEFAULT '',
	created_at_unix INTEGER NOT NULL,
	updated_at_unix INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS responses (
	session_id        TEXT NOT NULL,
	question_id       TEXT NOT NULL,
	kind              TEXT NOT NULL,
	tag               TEXT NOT NULL DEFAULT '',
	block_id          TEXT NOT NULL DEFAULT '',
	value             REAL NOT NULL,
	scale_version     INTEGER NOT NULL DEFAULT 1,
	submitted_at_unix INTEGER NOT NULL,
	PRIMARY KEY (session_id, question_id)
);

CREATE TABLE IF NOT EXISTS fc_scores (
	session_id       TEXT NOT NULL,
	version          TEXT NOT NULL,
	basis            TEXT NOT NULL,
	blocks_answered  INTEGER NOT NULL,
	scores_json      TEXT NOT NULL,
	computed_at_unix INTEGER NOT NULL,
	PRIMARY KEY (session_id, version)
);

CREATE TABLE IF NOT EXISTS profiles (
	session_id        TEXT PRIMARY KEY,
	results_version   TEXT NOT NULL,
	type_code         TEXT NOT NULL,
	base_function     TEXT NOT NULL,
	creative_function TEXT NOT NULL,
	dim_scores_json   TEXT NOT NULL,
	trait_scores_json TEXT NOT NULL,
	neuro_mean        REAL NOT NULL,
	neuro_z           REAL NOT NULL,
	overlay           TEXT NOT NULL,
	fit_raw           REAL NOT NULL,
	fit_calibrated    REAL NOT NULL,
	fit_band          TEXT NOT NULL,
	conf_raw          REAL NOT NULL,
	conf_calibrated   REAL NOT NULL,
	conf_band         TEXT NOT NULL,
	close_call        INTEGER NOT NULL,
	top_gap           REAL NOT NULL,
	top_types_json    TEXT NOT NULL,
	type_scores_json  TEXT NOT NULL,
	source            TEXT NOT NULL,
	low_confidence    INTEGER NOT NULL,
	finalized_at_unix INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS calibration_anchors (
	version    TEXT NOT NULL,
	metric     TEXT NOT NULL,
	raw        REAL NOT NULL,
	calibrated REAL NOT NULL,
	band       TEXT NOT NULL,
	PRIMARY KEY (version, metric, raw)
);

CREATE INDEX IF NOT EXISTS idx_sessions_status_updated ON sessions(status, updated_at_unix);
CREATE INDEX IF NOT EXISTS idx_responses_session_kind  ON responses(session_id, kind);
`
