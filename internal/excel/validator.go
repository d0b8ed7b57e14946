package excel

import (
	"context"
	"fmt"

	"biometric-attendance-sync/internal/model"
	"biometric-attendance-sync/pkg/errors"
)

const maxTemplateIDLength = 255

type Validator struct {
	maxRows int
}

func NewValidator(maxRows int) *Validator {
	return &Validator{maxRows: maxRows}
}

// Validate checks file structure only. Unknown templates and unparseable
// timestamps are per-event problems the sync engine reports.
func (v *Validator) Validate(ctx context.Context, events []model.RawScanEvent) error {
	if len(events) == 0 {
		return errors.ErrEmptyBatch
	}
	if v.maxRows > 0 && len(events) > v.maxRows {
		return errors.ValidationError{
			Field:   "rows",
			Value:   len(events),
			Message: fmt.Sprintf("must not exceed %d", v.maxRows),
		}
	}

	for i, event := range events {
		if err := v.validateEvent(event, i+1); err != nil {
			return err
		}
	}

	return nil
}

func (v *Validator) validateEvent(event model.RawScanEvent, entry int) error {
	if len(event.TemplateID) == 0 || len(event.TemplateID) > maxTemplateIDLength {
		return errors.ValidationError{
			Field:   "template_id",
			Value:   event.TemplateID,
			Message: fmt.Sprintf("entry %d must be 1-255 characters", entry),
		}
	}

	if event.Timestamp == "" {
		return errors.ValidationError{
			Field:   "timestamp",
			Value:   event.Timestamp,
			Message: fmt.Sprintf("entry %d is required", entry),
		}
	}

	return nil
}
