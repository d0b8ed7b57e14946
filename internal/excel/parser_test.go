package excel

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"biometric-attendance-sync/internal/model"
	apperrors "biometric-attendance-sync/pkg/errors"

	"github.com/xuri/excelize/v2"
)

func buildWorkbook(t *testing.T, rows [][]interface{}) []byte {
	t.Helper()

	f := excelize.NewFile()
	defer f.Close()

	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			t.Fatalf("bad coordinates: %v", err)
		}
		if err := f.SetSheetRow("Sheet1", cell, &row); err != nil {
			t.Fatalf("failed to write row %d: %v", i+1, err)
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		t.Fatalf("failed to write workbook: %v", err)
	}
	return buf.Bytes()
}

func TestParser_Parse(t *testing.T) {
	data := buildWorkbook(t, [][]interface{}{
		{"Template_ID", "Timestamp", "Type"},
		{"A1", 45355.2986111111, "in"},
		{"B2", "2024-03-04 07:20:00", "out"},
		{"", "", ""},
		{12345, "2024-03-04T07:25:00+07:00"},
	})

	events, err := NewParser().Parse(context.Background(), data)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(events) != 3 {
		t.Fatalf("expected 3 events with the blank row skipped, got %d", len(events))
	}

	want := []model.RawScanEvent{
		{TemplateID: "A1", Timestamp: "2024-03-04T07:10:00", Type: "in"},
		{TemplateID: "B2", Timestamp: "2024-03-04 07:20:00", Type: "out"},
		{TemplateID: "12345", Timestamp: "2024-03-04T07:25:00+07:00", Type: ""},
	}
	for i, w := range want {
		got := events[i]
		if got.TemplateID != w.TemplateID || got.Timestamp != w.Timestamp || got.Type != w.Type {
			t.Errorf("event %d: got %+v, want %+v", i, got, w)
		}
	}

	var raw struct {
		Source string `json:"source"`
		Row    int    `json:"row"`
	}
	if err := json.Unmarshal(events[2].RawData, &raw); err != nil {
		t.Fatalf("raw data is not JSON: %v", err)
	}
	if raw.Source != "import" || raw.Row != 5 {
		t.Errorf("expected spreadsheet row 5 recorded, got %+v", raw)
	}
}

func TestParser_VendorHeaders(t *testing.T) {
	data := buildWorkbook(t, [][]interface{}{
		{"AC-No.", "Name", "CheckTime", "State"},
		{"77", "Anong", "2024-03-04 07:05:00", "0"},
	})

	events, err := NewParser().Parse(context.Background(), data)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(events) != 1 || events[0].TemplateID != "77" || events[0].Type != "0" {
		t.Errorf("unexpected events: %+v", events)
	}
}

func TestParser_MissingColumn(t *testing.T) {
	data := buildWorkbook(t, [][]interface{}{
		{"template_id", "type"},
		{"A1", "in"},
	})

	_, err := NewParser().Parse(context.Background(), data)

	if !errors.Is(err, apperrors.ErrInvalidFileFormat) {
		t.Errorf("expected ErrInvalidFileFormat, got %v", err)
	}
}

func TestParser_NotAWorkbook(t *testing.T) {
	_, err := NewParser().Parse(context.Background(), []byte("template_id,timestamp\nA1,2024-03-04"))

	if !errors.Is(err, apperrors.ErrInvalidFileFormat) {
		t.Errorf("expected ErrInvalidFileFormat, got %v", err)
	}
}

func TestValidator_Validate(t *testing.T) {
	ok := model.RawScanEvent{TemplateID: "A1", Timestamp: "2024-03-04T07:10:00"}

	tests := []struct {
		name    string
		events  []model.RawScanEvent
		wantErr error
	}{
		{"valid", []model.RawScanEvent{ok}, nil},
		{"empty", nil, apperrors.ErrEmptyBatch},
		{"missing template", []model.RawScanEvent{ok, {Timestamp: "2024-03-04T07:10:00"}}, apperrors.ValidationError{}},
		{"missing timestamp", []model.RawScanEvent{{TemplateID: "A1"}}, apperrors.ValidationError{}},
		{"too many rows", []model.RawScanEvent{ok, ok, ok}, apperrors.ValidationError{}},
	}

	validator := NewValidator(2)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validator.Validate(context.Background(), tt.events)

			switch want := tt.wantErr.(type) {
			case nil:
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
			case apperrors.ValidationError:
				if !errors.As(err, &want) {
					t.Errorf("expected ValidationError, got %v", err)
				}
			default:
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("expected %v, got %v", tt.wantErr, err)
				}
			}
		})
	}
}
