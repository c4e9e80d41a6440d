package repository

import "github.com/nimbusbank/approval-engine/pkg/database"

// Migrations returns the engine schema in version order. The partial
// unique index on workflow_requests backs the one-live-request-per-
// reference invariant at the storage level; the unique index on
// stage_approvals backs maker-checker integrity.
func Migrations() []database.Migration {
	return []database.Migration{
		{
			Version: 1,
			Name:    "workflow_definitions",
			SQL: `
				CREATE TABLE workflow_definitions (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					name TEXT NOT NULL,
					version INTEGER NOT NULL,
					amount_based INTEGER NOT NULL DEFAULT 0,
					created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
					UNIQUE (name, version)
				);

				CREATE TABLE stage_templates (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					definition_id INTEGER NOT NULL REFERENCES workflow_definitions(id),
					stage_order INTEGER NOT NULL,
					stage_key TEXT NOT NULL,
					approver_group TEXT NOT NULL,
					required_approvals INTEGER NOT NULL,
					sla_hours INTEGER NOT NULL DEFAULT 0,
					UNIQUE (definition_id, stage_order)
				);

				CREATE TABLE amount_rules (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					definition_id INTEGER NOT NULL REFERENCES workflow_definitions(id),
					currency TEXT NOT NULL,
					min_amount INTEGER NOT NULL,
					max_amount INTEGER,
					priority INTEGER NOT NULL
				);

				CREATE TABLE stage_overrides (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					rule_id INTEGER NOT NULL REFERENCES amount_rules(id),
					stage_order INTEGER NOT NULL,
					required_approvals INTEGER,
					approver_group TEXT
				);
			`,
		},
		{
			Version: 2,
			Name:    "workflow_requests",
			SQL: `
				CREATE TABLE workflow_requests (
					id TEXT PRIMARY KEY,
					definition_id INTEGER NOT NULL REFERENCES workflow_definitions(id),
					definition_version INTEGER NOT NULL,
					reference_id TEXT NOT NULL,
					reference_type TEXT NOT NULL,
					module_name TEXT NOT NULL,
					action_key TEXT NOT NULL,
					amount INTEGER NOT NULL,
					currency TEXT NOT NULL,
					payload TEXT NOT NULL DEFAULT '{}',
					current_stage_order INTEGER NOT NULL,
					status TEXT NOT NULL,
					version INTEGER NOT NULL DEFAULT 1,
					created_by TEXT NOT NULL,
					created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
					last_updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
				);

				CREATE UNIQUE INDEX idx_requests_live_reference
					ON workflow_requests (reference_id, reference_type, action_key)
					WHERE status = 'ACTIVE';

				CREATE INDEX idx_requests_module ON workflow_requests (module_name, status);

				CREATE TABLE workflow_request_stages (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					request_id TEXT NOT NULL REFERENCES workflow_requests(id),
					stage_order INTEGER NOT NULL,
					stage_key TEXT NOT NULL,
					approver_group TEXT NOT NULL,
					required_approvals INTEGER NOT NULL,
					sla_hours INTEGER NOT NULL DEFAULT 0,
					approvals_obtained INTEGER NOT NULL DEFAULT 0,
					status TEXT NOT NULL,
					started_at DATETIME,
					completed_at DATETIME,
					UNIQUE (request_id, stage_order)
				);

				CREATE INDEX idx_stages_group_status ON workflow_request_stages (approver_group, status);

				CREATE TABLE stage_approvals (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					stage_id INTEGER NOT NULL REFERENCES workflow_request_stages(id),
					request_id TEXT NOT NULL REFERENCES workflow_requests(id),
					approver_user_id TEXT NOT NULL,
					decision TEXT NOT NULL,
					remarks TEXT NOT NULL DEFAULT '',
					decided_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
					UNIQUE (stage_id, approver_user_id)
				);

				CREATE INDEX idx_approvals_approver ON stage_approvals (approver_user_id);
			`,
		},
		{
			Version: 3,
			Name:    "audit_events",
			SQL: `
				CREATE TABLE audit_events (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					request_id TEXT NOT NULL,
					stage_id INTEGER,
					event_type TEXT NOT NULL,
					actor TEXT NOT NULL,
					detail TEXT NOT NULL DEFAULT '{}',
					created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
				);

				CREATE INDEX idx_audit_request ON audit_events (request_id, created_at);
			`,
		},
	}
}
