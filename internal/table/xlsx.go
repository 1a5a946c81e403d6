package table

import (
	"fmt"

	"github.com/xuri/excelize/v2"
)

// ReadXLSX reads one or more sheets of a spreadsheet into a single table.
// Sheets after the first are concatenated in list order and must share the
// first sheet's header. A named sheet that does not exist is an error.
func ReadXLSX(path string, sheets []string, opts ReadOptions) (*Table, error) {
	if len(sheets) == 0 {
		return nil, fmt.Errorf("reading %s: no sheet named", path)
	}
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	var result *Table
	for _, sheet := range sheets {
		rows, err := f.GetRows(sheet)
		if err != nil {
			return nil, fmt.Errorf("reading %s sheet %q: %w", path, sheet, err)
		}
		if len(rows) == 0 {
			return nil, fmt.Errorf("reading %s sheet %q: no header row", path, sheet)
		}
		t, err := fromRows(rows[0], rows[1:], opts)
		if err != nil {
			return nil, fmt.Errorf("reading %s sheet %q: %w", path, sheet, err)
		}
		if result == nil {
			result = t
		} else {
			result.AppendRows(t)
		}
	}
	return result, nil
}
