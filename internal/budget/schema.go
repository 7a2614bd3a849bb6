package budget

import "fmt"

// schemaStatements returns the idempotent DDL of one division.
func schemaStatements(div Division) []string {
	master := ident(div.MasterTable())
	history := ident(div.HistoryTable())

	stmts := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id BIGSERIAL PRIMARY KEY,
			total_budget NUMERIC NOT NULL DEFAULT 0 CHECK (total_budget >= 0),
			current_remaining NUMERIC NOT NULL DEFAULT 0,
			total_allocated NUMERIC NOT NULL DEFAULT 0,
			total_termin1 NUMERIC NOT NULL DEFAULT 0,
			total_termin2 NUMERIC NOT NULL DEFAULT 0,
			total_termin3 NUMERIC NOT NULL DEFAULT 0,
			total_termin4 NUMERIC NOT NULL DEFAULT 0,
			total_termin5 NUMERIC NOT NULL DEFAULT 0,
			total_termin6 NUMERIC NOT NULL DEFAULT 0,
			total_actualization NUMERIC NOT NULL DEFAULT 0,
			total_budget_remaining NUMERIC NOT NULL DEFAULT 0,
			status TEXT NOT NULL DEFAULT 'Active',
			remarks TEXT NOT NULL DEFAULT '',
			budget_set BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`, master),
		fmt.Sprintf(`ALTER TABLE %s ADD COLUMN IF NOT EXISTS budget_set BOOLEAN NOT NULL DEFAULT FALSE`, master),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id BIGSERIAL PRIMARY KEY,
			entity_type TEXT NOT NULL,
			entity_id BIGINT NOT NULL,
			field_changed TEXT NOT NULL,
			old_value TEXT,
			new_value TEXT,
			changed_by TEXT NOT NULL,
			changed_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`, history),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s (changed_at DESC, id DESC)`,
			ident(div.HistoryTable()+"_changed_idx"), history),
	}

	switch div.Style {
	case StyleTermin:
		project := ident(div.ProjectTable())
		stmts = append(stmts,
			fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
				id BIGSERIAL PRIMARY KEY,
				project_name TEXT NOT NULL UNIQUE,
				total_budget NUMERIC NOT NULL DEFAULT 0,
				termin1 NUMERIC NOT NULL DEFAULT 0,
				termin2 NUMERIC NOT NULL DEFAULT 0,
				termin3 NUMERIC NOT NULL DEFAULT 0,
				termin4 NUMERIC NOT NULL DEFAULT 0,
				termin5 NUMERIC NOT NULL DEFAULT 0,
				termin6 NUMERIC NOT NULL DEFAULT 0,
				total_actualization NUMERIC NOT NULL DEFAULT 0,
				budget_remaining NUMERIC NOT NULL DEFAULT 0,
				remarks TEXT NOT NULL DEFAULT '',
				created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
				updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
			)`, project),
		)
	default:
		absorption := ident(div.AbsorptionTable())
		stmts = append(stmts,
			fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
				id BIGSERIAL PRIMARY KEY,
				period TEXT NOT NULL UNIQUE CHECK (period <> ''),
				absorption_amount NUMERIC NOT NULL DEFAULT 0,
				remaining_after NUMERIC NOT NULL DEFAULT 0,
				remarks TEXT NOT NULL DEFAULT '',
				created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
				updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
			)`, absorption),
			fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s (created_at, id)`,
				ident(div.AbsorptionTable()+"_order_idx"), absorption),
		)
	}
	return stmts
}
