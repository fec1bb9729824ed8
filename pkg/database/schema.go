package database

var schemaStatements = []string{
	`CREATE EXTENSION IF NOT EXISTS pgcrypto`,
	`CREATE TABLE IF NOT EXISTS rules (
		id          UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		title       TEXT NOT NULL,
		department  TEXT,
		logic       TEXT,
		is_active   BOOLEAN NOT NULL DEFAULT TRUE,
		created_by  TEXT,
		updated_by  TEXT,
		created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS rule_conditions (
		id          UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		rule_id     UUID NOT NULL REFERENCES rules(id) ON DELETE CASCADE,
		field       TEXT NOT NULL,
		operator    TEXT NOT NULL,
		value       JSONB,
		created_by  TEXT,
		updated_by  TEXT,
		created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS rule_actions (
		id          UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		rule_id     UUID NOT NULL REFERENCES rules(id) ON DELETE CASCADE,
		type        TEXT NOT NULL,
		value       JSONB,
		created_by  TEXT,
		updated_by  TEXT,
		created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_rules_created_at ON rules (created_at DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_rules_department_lower ON rules (lower(department))`,
	`CREATE INDEX IF NOT EXISTS idx_rule_conditions_rule_id ON rule_conditions (rule_id)`,
	`CREATE INDEX IF NOT EXISTS idx_rule_actions_rule_id ON rule_actions (rule_id)`,
}
