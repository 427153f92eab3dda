package audit

import (
	"encoding/csv"
	"io"
	"time"
)

// WriteCSV serialises an audit trail to CSV.
func WriteCSV(w io.Writer, rows []Entry) error {
	writer := csv.NewWriter(w)
	defer writer.Flush()
	if err := writer.Write([]string{"At", "Document", "Ledger", "Action", "Actor", "Amount", "Status", "Message"}); err != nil {
		return err
	}
	for _, row := range rows {
		if err := writer.Write([]string{
			row.At.UTC().Format(time.RFC3339),
			row.DocumentID,
			row.LedgerID,
			string(row.Action),
			row.Actor,
			row.Amount.StringFixed(2),
			string(row.Status),
			row.Message,
		}); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}
