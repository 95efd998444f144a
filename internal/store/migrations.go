package store

// migration represents a single schema migration.
type migration struct {
	Version int
	Name    string
	SQL     string
}

// migrations is the ordered list of all schema migrations.
var migrations = []migration{
	{
		Version: 1,
		Name:    "create agent audit tables",
		SQL: `
			CREATE TABLE contexts (
				id           TEXT PRIMARY KEY,
				agent_id     TEXT NOT NULL,
				action_id    TEXT NOT NULL,
				owner_type   TEXT NOT NULL DEFAULT '',
				owner_id     TEXT NOT NULL DEFAULT '',
				instructions TEXT NOT NULL DEFAULT '',
				options      TEXT,
				status       TEXT NOT NULL DEFAULT 'pending',
				trace_id     TEXT NOT NULL DEFAULT '',
				created_at   TEXT NOT NULL DEFAULT (datetime('now')),
				updated_at   TEXT NOT NULL DEFAULT (datetime('now'))
			);

			CREATE INDEX idx_contexts_owner ON contexts (owner_type, owner_id);
			CREATE INDEX idx_contexts_trace ON contexts (trace_id);

			-- Serializes concurrent load-or-create for the same owned session;
			-- contexts without an owner are always freshly created.
			CREATE UNIQUE INDEX idx_contexts_owner_action
				ON contexts (owner_type, owner_id, agent_id, action_id)
				WHERE owner_type != '';

			CREATE TABLE messages (
				id            INTEGER PRIMARY KEY AUTOINCREMENT,
				context_id    TEXT NOT NULL REFERENCES contexts(id) ON DELETE CASCADE,
				role          TEXT NOT NULL,
				content       TEXT,
				content_parts TEXT,
				position      INTEGER NOT NULL,
				tool_call_id  TEXT NOT NULL DEFAULT '',
				name          TEXT NOT NULL DEFAULT '',
				function_name TEXT NOT NULL DEFAULT '',
				created_at    TEXT NOT NULL DEFAULT (datetime('now')),
				UNIQUE (context_id, position)
			);

			CREATE INDEX idx_messages_context ON messages (context_id, position);

			CREATE TABLE tool_calls (
				id            INTEGER PRIMARY KEY AUTOINCREMENT,
				context_id    TEXT NOT NULL REFERENCES contexts(id) ON DELETE CASCADE,
				name          TEXT NOT NULL,
				arguments     TEXT,
				status        TEXT NOT NULL DEFAULT 'pending',
				started_at    TEXT,
				completed_at  TEXT,
				duration_ms   INTEGER,
				result        TEXT,
				error_message TEXT NOT NULL DEFAULT '',
				position      INTEGER NOT NULL,
				external_id   TEXT NOT NULL DEFAULT '',
				created_at    TEXT NOT NULL DEFAULT (datetime('now')),
				UNIQUE (context_id, position)
			);

			CREATE INDEX idx_tool_calls_context ON tool_calls (context_id, position);
			CREATE INDEX idx_tool_calls_name ON tool_calls (name);
			CREATE INDEX idx_tool_calls_status ON tool_calls (status);

			CREATE TABLE generations (
				id                  INTEGER PRIMARY KEY AUTOINCREMENT,
				context_id          TEXT NOT NULL REFERENCES contexts(id) ON DELETE CASCADE,
				provider_id         TEXT NOT NULL DEFAULT '',
				model               TEXT NOT NULL DEFAULT '',
				finish_reason       TEXT NOT NULL DEFAULT '',
				input_tokens        INTEGER NOT NULL DEFAULT 0,
				output_tokens       INTEGER NOT NULL DEFAULT 0,
				total_tokens        INTEGER NOT NULL DEFAULT 0,
				cached_tokens       INTEGER NOT NULL DEFAULT 0,
				reasoning_tokens    INTEGER NOT NULL DEFAULT 0,
				duration_ms         INTEGER NOT NULL DEFAULT 0,
				status              TEXT NOT NULL DEFAULT 'completed',
				error_message       TEXT NOT NULL DEFAULT '',
				raw_request         TEXT,
				raw_response        TEXT,
				response_message_id INTEGER REFERENCES messages(id),
				created_at          TEXT NOT NULL DEFAULT (datetime('now'))
			);

			CREATE INDEX idx_generations_context ON generations (context_id);
		`,
	},
}
