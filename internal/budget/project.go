package budget

import (
	"context"
	"errors"
	"fmt"
)

// ProjectResult is the outcome of a project write.
type ProjectResult struct {
	Entry   ProjectEntry `json:"entry"`
	Master  MasterBudget `json:"master"`
	Created bool         `json:"created"`
}

// SaveProject inserts or updates a project of a termin division and
// recomputes the master aggregates in the same transaction.
func (s *Service) SaveProject(ctx context.Context, div Division, in ProjectInput, actor string) (ProjectResult, error) {
	if err := requireStyle(div, StyleTermin); err != nil {
		return ProjectResult{}, err
	}
	if err := ValidateProject(&in); err != nil {
		return ProjectResult{}, err
	}
	actor, err := validateActor(actor)
	if err != nil {
		return ProjectResult{}, err
	}

	var result ProjectResult
	err = s.mutate(ctx, div, "save_project", func(ctx context.Context, tx TxRepository) error {
		if err := tx.LockDivision(ctx, div); err != nil {
			return err
		}
		now := s.now()

		var (
			existing ProjectEntry
			err      error
		)
		if in.ID != nil {
			existing, err = tx.GetProject(ctx, div, *in.ID)
			if err != nil {
				return fmt.Errorf("project %d: %w", *in.ID, err)
			}
		} else {
			existing, err = tx.GetProjectByName(ctx, div, in.ProjectName)
			if err != nil && !errors.Is(err, ErrEntryNotFound) {
				return err
			}
		}

		if existing.ID == 0 {
			entry := ProjectEntry{
				ProjectName: in.ProjectName,
				TotalBudget: *in.TotalBudget,
				Remarks:     deref(in.Remarks),
				CreatedAt:   now,
				UpdatedAt:   now,
			}
			entry.SetTermins(in.Termins())
			if result.Entry, err = tx.InsertProject(ctx, div, entry); err != nil {
				return err
			}
			result.Created = true
		} else {
			previous := existing.TotalBudget
			existing.ProjectName = in.ProjectName
			existing.TotalBudget = *in.TotalBudget
			if in.Remarks != nil {
				existing.Remarks = *in.Remarks
			}
			existing.UpdatedAt = now
			existing.SetTermins(in.Termins())
			if result.Entry, err = tx.UpdateProject(ctx, div, existing); err != nil {
				return err
			}
			if !previous.Equal(existing.TotalBudget) {
				s.recordHistory(ctx, tx, div, valueChange(EntityProject, existing.ID, FieldTotalBudget,
					previous.String(), existing.TotalBudget.String(), actor, now))
			}
		}

		result.Master, err = s.recompute(ctx, tx, div, nil, now)
		return err
	})
	if err != nil {
		return ProjectResult{}, err
	}
	return result, nil
}

// DeleteProject removes a project and recomputes the master aggregates.
func (s *Service) DeleteProject(ctx context.Context, div Division, id int64, actor string) (MasterBudget, error) {
	if err := requireStyle(div, StyleTermin); err != nil {
		return MasterBudget{}, err
	}
	if id <= 0 {
		return MasterBudget{}, fmt.Errorf("%w: id must be positive", ErrValidation)
	}
	actor, err := validateActor(actor)
	if err != nil {
		return MasterBudget{}, err
	}

	var saved MasterBudget
	err = s.mutate(ctx, div, "delete_project", func(ctx context.Context, tx TxRepository) error {
		if err := tx.LockDivision(ctx, div); err != nil {
			return err
		}
		now := s.now()
		entry, err := tx.GetProject(ctx, div, id)
		if err != nil {
			return fmt.Errorf("project %d: %w", id, err)
		}
		if err := tx.DeleteProject(ctx, div, id); err != nil {
			return err
		}
		s.recordHistory(ctx, tx, div, deletion(EntityProject, entry.ID, entry, actor, now))
		saved, err = s.recompute(ctx, tx, div, nil, now)
		return err
	})
	if err != nil {
		return MasterBudget{}, err
	}
	return saved, nil
}
