// Package report turns outcome records into the downloadable spreadsheet.
package report

import (
	"time"

	"github.com/kursadbilgin/nikverify/internal/domain"
)

// UnknownPlaceholder stands in for customer details the portal never revealed.
const UnknownPlaceholder = "Unknown"

const filenamePrefix = "subsidi-tepat-lpg-report-"

// ContentType is the MIME type of the generated workbook.
const ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

type Row struct {
	Index         int
	Name          string
	Identifier    string
	Category      string
	Result        string
	FailureReason string
}

// ToRows maps records one to one, numbering rows from 1.
func ToRows(records []domain.OutcomeRecord) []Row {
	rows := make([]Row, 0, len(records))
	for i, record := range records {
		row := Row{
			Index:      i + 1,
			Name:       valueOrUnknown(record.CustomerName),
			Identifier: record.Identifier.String(),
			Category:   valueOrUnknown(record.CustomerCategory),
			Result:     record.Result.String(),
		}
		if record.FailureReason != nil {
			row.FailureReason = record.FailureReason.String()
		}
		rows = append(rows, row)
	}
	return rows
}

// Filename names a report generated at t, e.g.
// subsidi-tepat-lpg-report-2025-06-01T08-30-00.xlsx.
func Filename(t time.Time) string {
	return filenamePrefix + t.UTC().Format("2006-01-02T15-04-05") + ".xlsx"
}

func valueOrUnknown(v *string) string {
	if v == nil || *v == "" {
		return UnknownPlaceholder
	}
	return *v
}
