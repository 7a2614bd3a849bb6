package budget

import (
	"errors"
	"fmt"

	"github.com/hrdash/hrdash/internal/shared"
)

// Domain errors for budget ledgers.
var (
	// ErrValidation marks input rejected before any database access.
	ErrValidation = fmt.Errorf("budget %w", shared.ErrValidation)
	// ErrActorRequired indicates a mutation without an acting user.
	ErrActorRequired = fmt.Errorf("%w: actor is required", ErrValidation)

	// ErrMasterNotFound indicates the division has no master budget row. It is
	// deliberately not a not-found error: on the write path it is a server fault.
	ErrMasterNotFound = errors.New("master budget not found")
	// ErrEntryNotFound indicates the requested ledger entry does not exist.
	ErrEntryNotFound = fmt.Errorf("ledger entry %w", shared.ErrNotFound)
	// ErrUnknownDivision indicates the division slug is not configured.
	ErrUnknownDivision = fmt.Errorf("budget division %w", shared.ErrNotFound)
	// ErrWrongStyle indicates an operation the division's ledger style lacks.
	ErrWrongStyle = fmt.Errorf("operation for this ledger style %w", shared.ErrNotFound)
	// ErrNothingToExport indicates an export of an empty ledger.
	ErrNothingToExport = fmt.Errorf("export data %w", shared.ErrNotFound)

	// ErrDuplicate indicates a unique key (period or project name) collision.
	ErrDuplicate = fmt.Errorf("budget: %w", shared.ErrDuplicate)
)
