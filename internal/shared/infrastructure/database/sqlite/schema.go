package sqlite

const schema = `
CREATE TABLE IF NOT EXISTS tasks (
    id           TEXT PRIMARY KEY,
    title        TEXT NOT NULL,
    description  TEXT NOT NULL DEFAULT '',
    priority     INTEGER NOT NULL,
    deadline     TIMESTAMP,
    status       TEXT NOT NULL,
    completed_at TIMESTAMP,
    metadata     TEXT NOT NULL DEFAULT '{}',
    external_id  TEXT,
    created_at   TIMESTAMP NOT NULL,
    updated_at   TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_tasks_status ON tasks(status);
CREATE UNIQUE INDEX IF NOT EXISTS idx_tasks_external_id ON tasks(external_id) WHERE external_id IS NOT NULL;

CREATE TABLE IF NOT EXISTS rules (
    id         TEXT PRIMARY KEY,
    kind       TEXT NOT NULL,
    task_tag   TEXT NOT NULL DEFAULT '',
    params     TEXT NOT NULL DEFAULT '{}',
    confidence REAL NOT NULL,
    last_used  TIMESTAMP,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS plans (
    id           TEXT PRIMARY KEY,
    window_start TIMESTAMP NOT NULL,
    window_end   TIMESTAMP NOT NULL,
    assignments  TEXT NOT NULL DEFAULT '[]',
    conflicts    TEXT NOT NULL DEFAULT '[]',
    emitted_at   TIMESTAMP NOT NULL,
    created_at   TIMESTAMP NOT NULL,
    updated_at   TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_plans_emitted_at ON plans(emitted_at);

CREATE TABLE IF NOT EXISTS execution_records (
    id          TEXT PRIMARY KEY,
    agent       TEXT NOT NULL,
    operation   TEXT NOT NULL,
    task_id     TEXT,
    rule_id     TEXT,
    cause       TEXT NOT NULL DEFAULT '',
    duration_ms INTEGER NOT NULL,
    success     INTEGER NOT NULL,
    error       TEXT NOT NULL DEFAULT '',
    timestamp   TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_execution_records_timestamp ON execution_records(timestamp);
`
