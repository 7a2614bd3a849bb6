package budget

import (
	"context"
	"errors"
	"fmt"
)

// AbsorptionResult is the outcome of an absorption write.
type AbsorptionResult struct {
	Entry   AbsorptionEntry `json:"entry"`
	Master  MasterBudget    `json:"master"`
	Created bool            `json:"created"`
}

// SaveAbsorption records the amount absorbed in a period. A new period draws
// down the running balance; an existing period is corrected in place and the
// correction is carried forward to every later entry and the master row.
func (s *Service) SaveAbsorption(ctx context.Context, div Division, in AbsorptionInput, actor string) (AbsorptionResult, error) {
	if err := requireStyle(div, StyleAbsorption); err != nil {
		return AbsorptionResult{}, err
	}
	if err := ValidateAbsorption(&in); err != nil {
		return AbsorptionResult{}, err
	}
	actor, err := validateActor(actor)
	if err != nil {
		return AbsorptionResult{}, err
	}

	var result AbsorptionResult
	err = s.mutate(ctx, div, "save_absorption", func(ctx context.Context, tx TxRepository) error {
		if err := tx.LockDivision(ctx, div); err != nil {
			return err
		}
		now := s.now()
		master, err := s.masterForWrite(ctx, tx, div, now)
		if err != nil {
			return err
		}
		amount := *in.AbsorptionAmount

		existing, err := tx.GetAbsorptionByPeriod(ctx, div, in.Period)
		switch {
		case errors.Is(err, ErrEntryNotFound):
			remaining := master.CurrentRemaining.Sub(amount)
			entry, err := tx.InsertAbsorption(ctx, div, AbsorptionEntry{
				Period:           in.Period,
				AbsorptionAmount: amount,
				RemainingAfter:   remaining,
				Remarks:          deref(in.Remarks),
				CreatedAt:        now,
				UpdatedAt:        now,
			})
			if err != nil {
				return err
			}
			master.CurrentRemaining = remaining
			result.Entry, result.Created = entry, true
		case err != nil:
			return err
		default:
			previous := existing.AbsorptionAmount
			delta := amount.Sub(previous)
			existing.AbsorptionAmount = amount
			existing.RemainingAfter = existing.RemainingAfter.Sub(delta)
			if in.Remarks != nil {
				existing.Remarks = *in.Remarks
			}
			existing.UpdatedAt = now
			entry, err := tx.UpdateAbsorption(ctx, div, existing)
			if err != nil {
				return err
			}
			if !delta.IsZero() {
				if err := tx.ShiftAbsorptions(ctx, div, &entry, delta.Neg()); err != nil {
					return err
				}
				master.CurrentRemaining = master.CurrentRemaining.Sub(delta)
				s.recordHistory(ctx, tx, div, valueChange(EntityAbsorption, entry.ID, FieldAbsorptionAmount,
					previous.String(), amount.String(), actor, now))
			}
			result.Entry = entry
		}

		master.UpdatedAt = now
		result.Master, err = tx.UpdateMaster(ctx, div, master)
		return err
	})
	if err != nil {
		return AbsorptionResult{}, err
	}
	return result, nil
}

// DeleteAbsorption removes an entry and gives its amount back to the master
// balance and to every later entry.
func (s *Service) DeleteAbsorption(ctx context.Context, div Division, id int64, actor string) (MasterBudget, error) {
	if err := requireStyle(div, StyleAbsorption); err != nil {
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
	err = s.mutate(ctx, div, "delete_absorption", func(ctx context.Context, tx TxRepository) error {
		if err := tx.LockDivision(ctx, div); err != nil {
			return err
		}
		now := s.now()
		entry, err := tx.GetAbsorption(ctx, div, id)
		if err != nil {
			return fmt.Errorf("absorption %d: %w", id, err)
		}
		master, err := s.masterForWrite(ctx, tx, div, now)
		if err != nil {
			return err
		}
		if err := tx.DeleteAbsorption(ctx, div, id); err != nil {
			return err
		}
		if err := tx.ShiftAbsorptions(ctx, div, &entry, entry.AbsorptionAmount); err != nil {
			return err
		}
		master.CurrentRemaining = master.CurrentRemaining.Add(entry.AbsorptionAmount)
		master.UpdatedAt = now
		if saved, err = tx.UpdateMaster(ctx, div, master); err != nil {
			return err
		}
		s.recordHistory(ctx, tx, div, deletion(EntityAbsorption, entry.ID, entry, actor, now))
		return nil
	})
	if err != nil {
		return MasterBudget{}, err
	}
	return saved, nil
}
