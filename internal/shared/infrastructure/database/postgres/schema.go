package postgres

const schema = `
CREATE TABLE IF NOT EXISTS tasks (
    id           UUID PRIMARY KEY,
    title        TEXT NOT NULL,
    description  TEXT NOT NULL DEFAULT '',
    priority     INTEGER NOT NULL,
    deadline     TIMESTAMPTZ,
    status       TEXT NOT NULL,
    completed_at TIMESTAMPTZ,
    metadata     JSONB NOT NULL DEFAULT '{}',
    external_id  TEXT,
    created_at   TIMESTAMPTZ NOT NULL,
    updated_at   TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_tasks_status ON tasks(status);
CREATE UNIQUE INDEX IF NOT EXISTS idx_tasks_external_id ON tasks(external_id) WHERE external_id IS NOT NULL;

CREATE TABLE IF NOT EXISTS rules (
    id         UUID PRIMARY KEY,
    kind       TEXT NOT NULL,
    task_tag   TEXT NOT NULL DEFAULT '',
    params     JSONB NOT NULL DEFAULT '{}',
    confidence DOUBLE PRECISION NOT NULL,
    last_used  TIMESTAMPTZ,
    created_at TIMESTAMPTZ NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS plans (
    id           UUID PRIMARY KEY,
    window_start TIMESTAMPTZ NOT NULL,
    window_end   TIMESTAMPTZ NOT NULL,
    assignments  JSONB NOT NULL DEFAULT '[]',
    conflicts    JSONB NOT NULL DEFAULT '[]',
    emitted_at   TIMESTAMPTZ NOT NULL,
    created_at   TIMESTAMPTZ NOT NULL,
    updated_at   TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_plans_emitted_at ON plans(emitted_at);

CREATE TABLE IF NOT EXISTS execution_records (
    id          UUID PRIMARY KEY,
    agent       TEXT NOT NULL,
    operation   TEXT NOT NULL,
    task_id     UUID,
    rule_id     UUID,
    cause       TEXT NOT NULL DEFAULT '',
    duration_ms BIGINT NOT NULL,
    success     BOOLEAN NOT NULL,
    error       TEXT NOT NULL DEFAULT '',
    timestamp   TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_execution_records_timestamp ON execution_records(timestamp);
`
