package report

import (
	"bytes"
	"reflect"
	"testing"
	"time"

	"github.com/kursadbilgin/nikverify/internal/domain"
	"github.com/xuri/excelize/v2"
)

func sampleRecords() []domain.OutcomeRecord {
	at := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)
	return []domain.OutcomeRecord{
		domain.NewSuccess("1111222233334444", domain.CustomerInfo{Name: "BUDI SANTOSO", Category: "Rumah Tangga"}, at),
		domain.NewFailure("1234567890123456", nil, domain.ReasonNotFound, at),
		domain.NewFailure("6543210987654321", &domain.CustomerInfo{Name: "SITI"}, domain.ReasonSubmitMissing, at),
	}
}

func TestToRows(t *testing.T) {
	t.Parallel()

	got := ToRows(sampleRecords())
	want := []Row{
		{Index: 1, Name: "BUDI SANTOSO", Identifier: "1111222233334444", Category: "Rumah Tangga", Result: "Success"},
		{Index: 2, Name: UnknownPlaceholder, Identifier: "1234567890123456", Category: UnknownPlaceholder, Result: "Error", FailureReason: "not found"},
		{Index: 3, Name: "SITI", Identifier: "6543210987654321", Category: UnknownPlaceholder, Result: "Error", FailureReason: "submit control missing"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("ToRows() = %+v, want %+v", got, want)
	}
}

func TestToRowsEmpty(t *testing.T) {
	t.Parallel()

	if got := ToRows(nil); got == nil || len(got) != 0 {
		t.Fatalf("ToRows(nil) = %v, want empty slice", got)
	}
}

func TestFilename(t *testing.T) {
	t.Parallel()

	at := time.Date(2025, 6, 1, 15, 4, 5, 999, time.FixedZone("WIB", 7*3600))
	if got, want := Filename(at), "subsidi-tepat-lpg-report-2025-06-01T08-04-05.xlsx"; got != want {
		t.Fatalf("Filename() = %q, want %q", got, want)
	}
}

func TestWriterWrite(t *testing.T) {
	t.Parallel()

	data, err := NewWriter().Write(ToRows(sampleRecords()))
	if err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("OpenReader() error = %v", err)
	}
	defer f.Close()

	if sheets := f.GetSheetList(); len(sheets) != 1 || sheets[0] != SheetName {
		t.Fatalf("sheets = %v, want [%s]", sheets, SheetName)
	}

	rows, err := f.GetRows(SheetName)
	if err != nil {
		t.Fatalf("GetRows() error = %v", err)
	}
	if len(rows) != 4 {
		t.Fatalf("rows = %d, want 4", len(rows))
	}
	if !reflect.DeepEqual(rows[0], headers) {
		t.Fatalf("header = %v, want %v", rows[0], headers)
	}
	if rows[1][2] != "1111222233334444" {
		t.Fatalf("identifier cell = %q, want text identifier", rows[1][2])
	}
	if rows[2][4] != "Error" || rows[2][5] != "not found" {
		t.Fatalf("failure row = %v", rows[2])
	}

	width, err := f.GetColWidth(SheetName, "F")
	if err != nil {
		t.Fatalf("GetColWidth() error = %v", err)
	}
	if width != 40 {
		t.Fatalf("column F width = %v, want 40", width)
	}
}

func TestWriterWriteHeaderOnly(t *testing.T) {
	t.Parallel()

	data, err := NewWriter().Write(nil)
	if err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("OpenReader() error = %v", err)
	}
	defer f.Close()

	rows, err := f.GetRows(SheetName)
	if err != nil {
		t.Fatalf("GetRows() error = %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("rows = %d, want header only", len(rows))
	}
}
