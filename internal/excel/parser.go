package excel

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"biometric-attendance-sync/internal/model"
	"biometric-attendance-sync/pkg/errors"

	"github.com/xuri/excelize/v2"
)

const localTimestampLayout = "2006-01-02T15:04:05"

// Header names seen in device vendor exports, normalized to lower case.
var columnAliases = map[string][]string{
	"template_id": {"template_id", "templateid", "user_id", "enroll_number", "ac-no."},
	"timestamp":   {"timestamp", "datetime", "checktime", "time"},
	"type":        {"type", "checktype", "state"},
}

type Parser struct{}

func NewParser() *Parser {
	return &Parser{}
}

// Parse reads the first worksheet of an attendance log export. Date cells
// come back as Excel serials and are rendered as zone-less wall clock time;
// text cells are passed through for the sync engine to interpret.
func (p *Parser) Parse(ctx context.Context, data []byte) ([]model.RawScanEvent, error) {
	file, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errors.ErrInvalidFileFormat, err)
	}
	defer file.Close()

	sheets := file.GetSheetList()
	if len(sheets) == 0 {
		return nil, errors.ErrInvalidFileFormat
	}

	rows, err := file.GetRows(sheets[0], excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("failed to get rows: %w", err)
	}
	if len(rows) < 1 {
		return nil, errors.ErrInvalidFileFormat
	}

	columns, err := mapColumns(rows[0])
	if err != nil {
		return nil, err
	}

	events := []model.RawScanEvent{}
	for i, row := range rows[1:] {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		rowNum := i + 2
		if isBlank(row) {
			continue
		}

		event, err := p.parseRow(row, columns, rowNum)
		if err != nil {
			return nil, fmt.Errorf("error parsing row %d: %w", rowNum, err)
		}
		events = append(events, *event)
	}

	return events, nil
}

func mapColumns(header []string) (map[string]int, error) {
	positions := make(map[string]int, len(header))
	for i, col := range header {
		positions[strings.ToLower(strings.TrimSpace(col))] = i
	}

	columns := make(map[string]int, len(columnAliases))
	for name, aliases := range columnAliases {
		for _, alias := range aliases {
			if idx, ok := positions[alias]; ok {
				columns[name] = idx
				break
			}
		}
	}

	for _, required := range []string{"template_id", "timestamp"} {
		if _, ok := columns[required]; !ok {
			return nil, fmt.Errorf("%w: missing required column %s", errors.ErrInvalidFileFormat, required)
		}
	}
	return columns, nil
}

func (p *Parser) parseRow(row []string, columns map[string]int, rowNum int) (*model.RawScanEvent, error) {
	getValue := func(name string) string {
		if idx, ok := columns[name]; ok && idx < len(row) {
			return strings.TrimSpace(row[idx])
		}
		return ""
	}

	timestamp, err := cellTimestamp(getValue("timestamp"))
	if err != nil {
		return nil, err
	}

	rawData, err := json.Marshal(map[string]interface{}{
		"source": "import",
		"row":    rowNum,
	})
	if err != nil {
		return nil, err
	}

	return &model.RawScanEvent{
		TemplateID: getValue("template_id"),
		Timestamp:  timestamp,
		Type:       getValue("type"),
		RawData:    rawData,
	}, nil
}

// cellTimestamp converts an Excel date serial to wall clock text. Anything
// that is not a number is returned unchanged.
func cellTimestamp(value string) (string, error) {
	serial, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return value, nil
	}

	t, err := excelize.ExcelDateToTime(serial, false)
	if err != nil {
		return "", fmt.Errorf("invalid date serial %q: %w", value, err)
	}
	// Serials carry float noise; round to the second.
	return t.Round(time.Second).Format(localTimestampLayout), nil
}

func isBlank(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
