package budget

import (
	"context"
	"errors"
	"time"
)

// SaveMaster creates the master budget of a division or updates it in place.
func (s *Service) SaveMaster(ctx context.Context, div Division, in MasterInput, actor string) (MasterBudget, error) {
	if err := ValidateMaster(&in); err != nil {
		return MasterBudget{}, err
	}
	actor, err := validateActor(actor)
	if err != nil {
		return MasterBudget{}, err
	}

	var saved MasterBudget
	err = s.mutate(ctx, div, "save_master", func(ctx context.Context, tx TxRepository) error {
		if err := tx.LockDivision(ctx, div); err != nil {
			return err
		}
		now := s.now()
		master, err := tx.GetMasterForUpdate(ctx, div)
		switch {
		case errors.Is(err, ErrMasterNotFound):
			saved, err = s.createMaster(ctx, tx, div, in, now)
			return err
		case err != nil:
			return err
		}
		saved, err = s.updateMaster(ctx, tx, div, master, in, actor, now)
		return err
	})
	if err != nil {
		return MasterBudget{}, err
	}
	return saved, nil
}

func (s *Service) createMaster(ctx context.Context, tx TxRepository, div Division, in MasterInput, now time.Time) (MasterBudget, error) {
	master := MasterBudget{
		TotalBudget:      *in.TotalBudget,
		CurrentRemaining: *in.TotalBudget,
		Status:           in.Status,
		Remarks:          deref(in.Remarks),
		BudgetSet:        true,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if master.Status == "" {
		master.Status = DefaultMasterStatus
	}
	if div.Style == StyleAbsorption {
		if in.CurrentRemaining != nil {
			master.CurrentRemaining = *in.CurrentRemaining
		}
		return tx.InsertMaster(ctx, div, master)
	}
	inserted, err := tx.InsertMaster(ctx, div, master)
	if err != nil {
		return MasterBudget{}, err
	}
	return s.recompute(ctx, tx, div, &inserted, now)
}

func (s *Service) updateMaster(ctx context.Context, tx TxRepository, div Division, master MasterBudget, in MasterInput, actor string, now time.Time) (MasterBudget, error) {
	previous := master.TotalBudget
	master.TotalBudget = *in.TotalBudget
	master.BudgetSet = true
	if in.Status != "" {
		master.Status = in.Status
	}
	if in.Remarks != nil {
		master.Remarks = *in.Remarks
	}
	master.UpdatedAt = now
	changed := !previous.Equal(master.TotalBudget)

	var (
		saved MasterBudget
		err   error
	)
	if div.Style == StyleTermin {
		saved, err = s.recompute(ctx, tx, div, &master, now)
	} else {
		if changed {
			// The chain starts from total_budget, so every balance moves with it.
			delta := master.TotalBudget.Sub(previous)
			master.CurrentRemaining = master.CurrentRemaining.Add(delta)
			if err := tx.ShiftAbsorptions(ctx, div, nil, delta); err != nil {
				return MasterBudget{}, err
			}
		}
		saved, err = tx.UpdateMaster(ctx, div, master)
	}
	if err != nil {
		return MasterBudget{}, err
	}
	if changed {
		s.recordHistory(ctx, tx, div, valueChange(EntityMaster, saved.ID, FieldTotalBudget,
			previous.String(), saved.TotalBudget.String(), actor, now))
	}
	return saved, nil
}

// masterForWrite loads the locked master row, creating an empty one when the
// division's policy allows it.
func (s *Service) masterForWrite(ctx context.Context, tx TxRepository, div Division, now time.Time) (MasterBudget, error) {
	master, err := tx.GetMasterForUpdate(ctx, div)
	if !errors.Is(err, ErrMasterNotFound) || div.MasterPolicy != MasterAutoCreate {
		return master, err
	}
	return tx.InsertMaster(ctx, div, MasterBudget{
		Status:    DefaultMasterStatus,
		CreatedAt: now,
		UpdatedAt: now,
	})
}

// recompute re-sums every project of a termin division onto the master row.
// A nil master is loaded, or created under MasterAutoCreate. Until a total
// budget is saved explicitly the master keeps the allocated sum as its total.
func (s *Service) recompute(ctx context.Context, tx TxRepository, div Division, master *MasterBudget, now time.Time) (MasterBudget, error) {
	totals, err := tx.SumProjects(ctx, div)
	if err != nil {
		return MasterBudget{}, err
	}
	if master == nil {
		loaded, err := tx.GetMasterForUpdate(ctx, div)
		switch {
		case errors.Is(err, ErrMasterNotFound) && div.MasterPolicy == MasterAutoCreate:
			created := MasterBudget{
				Status:    DefaultMasterStatus,
				CreatedAt: now,
				UpdatedAt: now,
			}
			created.applyTotals(totals)
			return tx.InsertMaster(ctx, div, created)
		case err != nil:
			return MasterBudget{}, err
		}
		master = &loaded
	}
	master.applyTotals(totals)
	master.UpdatedAt = now
	return tx.UpdateMaster(ctx, div, *master)
}
