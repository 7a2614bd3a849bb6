package budget

import (
	"fmt"
	"regexp"

	"github.com/hrdash/hrdash/internal/shared"
)

// Style selects the ledger shape of a division.
type Style string

const (
	// StyleAbsorption draws one total budget down period by period.
	StyleAbsorption Style = "absorption"
	// StyleTermin tracks per-project budgets paid out in up to six installments.
	StyleTermin Style = "termin"
)

// MasterPolicy controls what happens when a write needs the master row and
// none exists yet.
type MasterPolicy string

const (
	// MasterRequired fails the write with ErrMasterNotFound.
	MasterRequired MasterPolicy = "required"
	// MasterAutoCreate inserts the master row during aggregate recomputation.
	MasterAutoCreate MasterPolicy = "auto_create"
)

// Division describes one budget ledger: its route slug, table prefix and style.
type Division struct {
	Slug         string       `json:"slug"`
	Name         string       `json:"name"`
	Style        Style        `json:"style"`
	Prefix       string       `json:"-"`
	MasterPolicy MasterPolicy `json:"master_policy"`
}

// MasterTable returns the master budget table name.
func (d Division) MasterTable() string { return d.Prefix + "_budget_master" }

// AbsorptionTable returns the absorption entry table name.
func (d Division) AbsorptionTable() string { return d.Prefix + "_budget_absorption" }

// ProjectTable returns the project entry table name.
func (d Division) ProjectTable() string { return d.Prefix + "_budget_project" }

// HistoryTable returns the change history table name.
func (d Division) HistoryTable() string { return d.Prefix + "_budget_history" }

// EntryTable returns the entry table matching the division style.
func (d Division) EntryTable() string {
	if d.Style == StyleTermin {
		return d.ProjectTable()
	}
	return d.AbsorptionTable()
}

// LockKey returns the advisory lock key serialising writes to the division.
func (d Division) LockKey() string { return shared.LedgerLockKey(d.Prefix) }

// EntityType returns the history entity type of the division's entries.
func (d Division) EntityType() EntityType {
	if d.Style == StyleTermin {
		return EntityProject
	}
	return EntityAbsorption
}

var prefixPattern = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// Validate checks the division is usable as a table family.
func (d Division) Validate() error {
	if d.Slug == "" {
		return fmt.Errorf("%w: division slug is required", shared.ErrValidation)
	}
	if !prefixPattern.MatchString(d.Prefix) {
		return fmt.Errorf("%w: division %s has invalid table prefix %q", shared.ErrValidation, d.Slug, d.Prefix)
	}
	switch d.Style {
	case StyleAbsorption, StyleTermin:
	default:
		return fmt.Errorf("%w: division %s has unknown style %q", shared.ErrValidation, d.Slug, d.Style)
	}
	switch d.MasterPolicy {
	case MasterRequired, MasterAutoCreate:
	default:
		return fmt.Errorf("%w: division %s has unknown master policy %q", shared.ErrValidation, d.Slug, d.MasterPolicy)
	}
	return nil
}

var divisions = []Division{
	{Slug: "regional2x", Name: "Regional 2X", Style: StyleAbsorption, Prefix: "regional2x", MasterPolicy: MasterRequired},
	{Slug: "regional2y", Name: "Regional 2Y", Style: StyleAbsorption, Prefix: "regional2y", MasterPolicy: MasterRequired},
	{Slug: "regional2z", Name: "Regional 2Z", Style: StyleAbsorption, Prefix: "regional2z", MasterPolicy: MasterRequired},
	{Slug: "elnusa", Name: "Elnusa", Style: StyleTermin, Prefix: "elnusa", MasterPolicy: MasterAutoCreate},
	{Slug: "tar-mcu", Name: "TAR MCU", Style: StyleTermin, Prefix: "tar_mcu", MasterPolicy: MasterAutoCreate},
}

// Divisions returns the configured divisions in display order.
func Divisions() []Division {
	out := make([]Division, len(divisions))
	copy(out, divisions)
	return out
}

// LookupDivision resolves a division by slug.
func LookupDivision(slug string) (Division, error) {
	for _, d := range divisions {
		if d.Slug == slug {
			return d, nil
		}
	}
	return Division{}, fmt.Errorf("division %q: %w", slug, ErrUnknownDivision)
}
