package commands

import (
	"fmt"
	"io"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/kursadbilgin/nikverify/internal/domain"
	"github.com/kursadbilgin/nikverify/internal/report"
)

func newTable(out io.Writer) table.Writer {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.SetOutputMirror(out)
	return t
}

// renderOutcomes prints one row per verified identifier plus a totals footer.
func renderOutcomes(out io.Writer, rows []report.Row) {
	t := newTable(out)
	t.AppendHeader(table.Row{"No", "Nama", "NIK", "Kategori", "Status", "Alasan"})

	success := 0
	for _, row := range rows {
		if row.Result == domain.ResultSuccess.String() {
			success++
		}
		t.AppendRow(table.Row{row.Index, row.Name, row.Identifier, row.Category, row.Result, row.FailureReason})
	}

	t.AppendFooter(table.Row{"", "", "", "", fmt.Sprintf("%d/%d", success, len(rows)), "success"})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, Align: text.AlignRight},
		{Number: 6, WidthMax: 40},
	})
	t.Render()
}

// readIdentifiers returns the raw batch text. Parsing and validation happen
// in domain.ParseIdentifiers.
func readIdentifiers(in io.Reader) (string, error) {
	raw, err := io.ReadAll(in)
	if err != nil {
		return "", fmt.Errorf("failed to read identifiers: %w", err)
	}
	return strings.TrimSpace(string(raw)), nil
}
