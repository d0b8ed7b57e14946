package excel

import (
	"context"

	"biometric-attendance-sync/internal/model"
)

// ParsingStrategy turns an uploaded device log export into scan events.
type ParsingStrategy interface {
	Parse(ctx context.Context, data []byte) ([]model.RawScanEvent, error)
	Validate(ctx context.Context, events []model.RawScanEvent) error
}

type ExcelStrategy struct {
	parser    *Parser
	validator *Validator
}

func NewExcelStrategy(maxRows int) ParsingStrategy {
	return &ExcelStrategy{
		parser:    NewParser(),
		validator: NewValidator(maxRows),
	}
}

func (s *ExcelStrategy) Parse(ctx context.Context, data []byte) ([]model.RawScanEvent, error) {
	return s.parser.Parse(ctx, data)
}

func (s *ExcelStrategy) Validate(ctx context.Context, events []model.RawScanEvent) error {
	return s.validator.Validate(ctx, events)
}
