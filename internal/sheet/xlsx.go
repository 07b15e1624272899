package sheet

import (
	"io"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/arbitrage-cli/internal/model"
)

// ItemsSheet is the name of the worksheet written by WriteXLSX.
const ItemsSheet = "Items"

// WriteXLSX writes items to a single-sheet workbook. Numeric columns are
// stored as numbers.
func WriteXLSX(w io.Writer, items []model.Item) error {
	f := xlsx.NewFile()
	sheet, err := f.AddSheet(ItemsSheet)
	if err != nil {
		return eris.Wrap(err, "xlsx: add sheet")
	}

	header := sheet.AddRow()
	for _, h := range ItemHeader {
		header.AddCell().SetString(h)
	}

	for _, it := range items {
		row := sheet.AddRow()
		for _, c := range itemCells(it) {
			xc := row.AddCell()
			if c.isNum {
				xc.SetFloat(c.num)
				continue
			}
			xc.SetString(c.text)
		}
	}

	if err := f.Write(w); err != nil {
		return eris.Wrap(err, "xlsx: write workbook")
	}
	return nil
}

// ReadXLSX returns the rows of the first worksheet in the file at path.
func ReadXLSX(path string) ([][]string, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "xlsx: open file")
	}
	if len(f.Sheets) == 0 {
		return nil, eris.New("xlsx: workbook has no sheets")
	}

	var rows [][]string
	for _, row := range f.Sheets[0].Rows {
		cells := make([]string, len(row.Cells))
		for j, c := range row.Cells {
			cells[j] = c.String()
		}
		rows = append(rows, cells)
	}
	return rows, nil
}
