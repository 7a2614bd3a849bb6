package budget

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

// MasterInput is the payload of a master budget write.
type MasterInput struct {
	TotalBudget      *decimal.Decimal `json:"total_budget" validate:"required"`
	CurrentRemaining *decimal.Decimal `json:"current_remaining"`
	Status           string           `json:"status" validate:"max=50"`
	Remarks          *string          `json:"remarks"`
}

// AbsorptionInput is the payload of an absorption entry write. Period is the
// identity: an existing period is updated in place.
type AbsorptionInput struct {
	Period           string           `json:"period" validate:"required,max=100"`
	AbsorptionAmount *decimal.Decimal `json:"absorption_amount" validate:"required"`
	Remarks          *string          `json:"remarks"`
}

// ProjectInput is the payload of a project entry write. ID wins over
// ProjectName as identity when set.
type ProjectInput struct {
	ID          *int64           `json:"id"`
	ProjectName string           `json:"project_name" validate:"required,max=255"`
	TotalBudget *decimal.Decimal `json:"total_budget" validate:"required"`
	Termin1     *decimal.Decimal `json:"termin1"`
	Termin2     *decimal.Decimal `json:"termin2"`
	Termin3     *decimal.Decimal `json:"termin3"`
	Termin4     *decimal.Decimal `json:"termin4"`
	Termin5     *decimal.Decimal `json:"termin5"`
	Termin6     *decimal.Decimal `json:"termin6"`
	Remarks     *string          `json:"remarks"`
}

// Termins returns the installments, absent ones as zero.
func (in ProjectInput) Termins() Termins {
	var out Termins
	for i, v := range []*decimal.Decimal{in.Termin1, in.Termin2, in.Termin3, in.Termin4, in.Termin5, in.Termin6} {
		if v != nil {
			out[i] = *v
		}
	}
	return out
}

var inputValidator = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})
	return v
}

func validateStruct(in any) error {
	err := inputValidator.Struct(in)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		switch fe.Tag() {
		case "required":
			msgs = append(msgs, fe.Field()+" is required")
		case "max":
			msgs = append(msgs, fmt.Sprintf("%s must be at most %s characters", fe.Field(), fe.Param()))
		default:
			msgs = append(msgs, fe.Field()+" is invalid")
		}
	}
	return fmt.Errorf("%w: %s", ErrValidation, strings.Join(msgs, "; "))
}

func nonNegative(field string, v *decimal.Decimal) error {
	if v != nil && v.IsNegative() {
		return fmt.Errorf("%w: %s must not be negative", ErrValidation, field)
	}
	return nil
}

// ValidateMaster normalises and checks a master payload.
func ValidateMaster(in *MasterInput) error {
	in.Status = strings.TrimSpace(in.Status)
	if err := validateStruct(in); err != nil {
		return err
	}
	return nonNegative("total_budget", in.TotalBudget)
}

// ValidateAbsorption normalises and checks an absorption payload.
func ValidateAbsorption(in *AbsorptionInput) error {
	in.Period = strings.TrimSpace(in.Period)
	return validateStruct(in)
}

// ValidateProject normalises and checks a project payload.
func ValidateProject(in *ProjectInput) error {
	in.ProjectName = strings.TrimSpace(in.ProjectName)
	if err := validateStruct(in); err != nil {
		return err
	}
	if in.ID != nil && *in.ID <= 0 {
		return fmt.Errorf("%w: id must be positive", ErrValidation)
	}
	return nonNegative("total_budget", in.TotalBudget)
}

func validateActor(actor string) (string, error) {
	actor = strings.TrimSpace(actor)
	if actor == "" {
		return "", ErrActorRequired
	}
	return actor, nil
}

func requireStyle(div Division, style Style) error {
	if div.Style != style {
		return fmt.Errorf("division %s is %s-style: %w", div.Slug, div.Style, ErrWrongStyle)
	}
	return nil
}
