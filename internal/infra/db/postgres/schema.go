package postgres

// Schema holds the DDL for the job tables. Integration tests and the migrate
// command both apply it; every statement is idempotent.
const Schema = `
CREATE TABLE IF NOT EXISTS export_jobs (
    id               TEXT PRIMARY KEY,
    resource_key     TEXT        NOT NULL,
    resource_params  JSONB       NOT NULL DEFAULT '{}',
    file_format      TEXT        NOT NULL,
    file_path        TEXT        NOT NULL DEFAULT '',
    status           TEXT        NOT NULL,
    result           JSONB,
    error_message    TEXT        NOT NULL DEFAULT '',
    traceback        TEXT        NOT NULL DEFAULT '',
    progress_current INTEGER     NOT NULL DEFAULT 0,
    progress_total   INTEGER     NOT NULL DEFAULT 0,
    task_id          TEXT        NOT NULL DEFAULT '',
    created_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
    started_at       TIMESTAMPTZ,
    finished_at      TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS export_jobs_created_at_idx ON export_jobs (created_at DESC);
CREATE INDEX IF NOT EXISTS export_jobs_status_idx ON export_jobs (status);

CREATE TABLE IF NOT EXISTS import_jobs (
    id               TEXT PRIMARY KEY,
    resource_key     TEXT        NOT NULL,
    resource_params  JSONB       NOT NULL DEFAULT '{}',
    filename         TEXT        NOT NULL,
    file_path        TEXT        NOT NULL DEFAULT '',
    status           TEXT        NOT NULL,
    skip_confirm     BOOLEAN     NOT NULL DEFAULT false,
    force_import     BOOLEAN     NOT NULL DEFAULT false,
    fail_fast        BOOLEAN     NOT NULL DEFAULT false,
    parsed_data      JSONB,
    result           JSONB,
    error_message    TEXT        NOT NULL DEFAULT '',
    traceback        TEXT        NOT NULL DEFAULT '',
    progress_current INTEGER     NOT NULL DEFAULT 0,
    progress_total   INTEGER     NOT NULL DEFAULT 0,
    task_id          TEXT        NOT NULL DEFAULT '',
    created_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
    started_at       TIMESTAMPTZ,
    parse_finished   TIMESTAMPTZ,
    apply_started    TIMESTAMPTZ,
    finished_at      TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS import_jobs_created_at_idx ON import_jobs (created_at DESC);
CREATE INDEX IF NOT EXISTS import_jobs_status_idx ON import_jobs (status);
`
