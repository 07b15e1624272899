package sheet

import (
	"encoding/csv"
	"io"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/arbitrage-cli/internal/model"
)

// WriteCSV writes items as CSV with an ItemHeader row.
func WriteCSV(w io.Writer, items []model.Item) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(ItemHeader); err != nil {
		return eris.Wrap(err, "csv: write header")
	}
	for _, it := range items {
		if err := cw.Write(ItemRow(it)); err != nil {
			return eris.Wrapf(err, "csv: write item %s", it.ID)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return eris.Wrap(err, "csv: flush")
	}
	return nil
}

// ReadCSV returns every record of r. Rows may have varying field counts and
// fields are trimmed.
func ReadCSV(r io.Reader) ([][]string, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	reader.Comment = '#'

	var rows [][]string
	for {
		record, err := reader.Read()
		if err == io.EOF {
			return rows, nil
		}
		if err != nil {
			return nil, eris.Wrap(err, "csv: read row")
		}
		for i, field := range record {
			record[i] = strings.TrimSpace(field)
		}
		rows = append(rows, record)
	}
}
