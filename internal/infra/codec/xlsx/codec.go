// Package xlsx converts department workbooks to and from datasets. Each sheet
// is one table; the first row holds the column names.
package xlsx

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"workpal/pkg/domain"
)

// ContentType is the MIME type of an .xlsx workbook.
const ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// Codec implements domain.SpreadsheetCodec with excelize.
type Codec struct{}

// New returns a workbook codec.
func New() Codec { return Codec{} }

var _ domain.SpreadsheetCodec = Codec{}

// Read decodes workbook bytes. Cells are classified once here: boolean cells
// become booleans, shared and inline strings become text, numeric cells become
// numbers and blank cells become Empty. Dates are stored by Excel as serial
// numbers and are read as numbers.
//
// Rows run to the end of the sheet's used range, so blank rows are kept.
// Formula cells and values to the right of the header are rejected as
// CorruptFile naming the cell: neither would survive the engine rewriting the
// workbook.
func (Codec) Read(data []byte) (domain.Dataset, error) {
	if len(data) == 0 {
		return domain.Dataset{}, domain.Errorf(domain.ErrKindCorruptFile, "xlsx read", "empty workbook")
	}
	f, err := excelize.OpenReader(bytes.NewReader(data), excelize.Options{RawCellValue: true})
	if err != nil {
		return domain.Dataset{}, domain.Wrap(domain.ErrKindCorruptFile, "xlsx read", err)
	}
	defer func() { _ = f.Close() }()

	var ds domain.Dataset
	for _, sheet := range f.GetSheetList() {
		t, err := readSheet(f, sheet)
		if err != nil {
			return domain.Dataset{}, err
		}
		ds.Tables = append(ds.Tables, t)
	}
	if len(ds.Tables) == 0 {
		return domain.Dataset{}, domain.Errorf(domain.ErrKindCorruptFile, "xlsx read", "workbook has no sheets")
	}
	return ds, nil
}

func readSheet(f *excelize.File, sheet string) (domain.Table, error) {
	op := "xlsx read " + sheet
	rows, err := f.GetRows(sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return domain.Table{}, domain.Wrap(domain.ErrKindCorruptFile, op, err)
	}
	// GetRows stops at the last row holding a value; the used range also
	// counts blank rows below it.
	if last := usedRows(f, sheet); last > len(rows) {
		rows = append(rows, make([][]string, last-len(rows))...)
	}
	t := domain.Table{Name: sheet, Columns: []string{}, Rows: []domain.Row{}}
	if len(rows) == 0 {
		return t, nil
	}
	if err := rejectFormulas(f, sheet, 1, len(rows[0])); err != nil {
		return domain.Table{}, domain.Wrap(domain.ErrKindCorruptFile, op, err)
	}
	header := rows[0]
	for len(header) > 0 && strings.TrimSpace(header[len(header)-1]) == "" {
		header = header[:len(header)-1]
	}
	seen := make(map[string]struct{}, len(header))
	for i, h := range header {
		name := strings.TrimSpace(h)
		if name == "" {
			return domain.Table{}, domain.Errorf(domain.ErrKindCorruptFile, op, "blank header in column %d", i+1)
		}
		if _, dup := seen[name]; dup {
			return domain.Table{}, domain.Errorf(domain.ErrKindCorruptFile, op, "duplicate header %q", name)
		}
		seen[name] = struct{}{}
		t.Columns = append(t.Columns, name)
	}
	for r, cells := range rows[1:] {
		rowNum := r + 2
		if err := rejectFormulas(f, sheet, rowNum, len(cells)); err != nil {
			return domain.Table{}, domain.Wrap(domain.ErrKindCorruptFile, op, err)
		}
		for c := len(t.Columns); c < len(cells); c++ {
			if cells[c] == "" {
				continue
			}
			cell, _ := excelize.CoordinatesToCellName(c+1, rowNum)
			return domain.Table{}, domain.Errorf(domain.ErrKindCorruptFile, op, "cell %s holds %q outside the header columns", cell, cells[c])
		}
		row := make(domain.Row, len(t.Columns))
		for c, col := range t.Columns {
			raw := ""
			if c < len(cells) {
				raw = cells[c]
			}
			v, err := classify(f, sheet, c+1, rowNum, raw)
			if err != nil {
				return domain.Table{}, domain.Wrap(domain.ErrKindCorruptFile, op, err)
			}
			row[col] = v
		}
		t.Rows = append(t.Rows, row)
	}
	return t, nil
}

// usedRows returns the last row of the sheet's recorded used range, or 0.
func usedRows(f *excelize.File, sheet string) int {
	ref, err := f.GetSheetDimension(sheet)
	if err != nil || ref == "" {
		return 0
	}
	end := ref[strings.LastIndex(ref, ":")+1:]
	_, row, err := excelize.CellNameToCoordinates(end)
	if err != nil {
		return 0
	}
	return row
}

// rejectFormulas fails on the first formula cell of a row. Tables hold values
// only, so a formula would be replaced by its cached result on the next save.
func rejectFormulas(f *excelize.File, sheet string, rowNum, width int) error {
	for c := 1; c <= width; c++ {
		cell, err := excelize.CoordinatesToCellName(c, rowNum)
		if err != nil {
			return err
		}
		formula, err := f.GetCellFormula(sheet, cell)
		if err != nil {
			return err
		}
		if formula != "" {
			return fmt.Errorf("cell %s holds formula =%s; upload values only", cell, formula)
		}
	}
	return nil
}

func classify(f *excelize.File, sheet string, col, rowNum int, raw string) (domain.Value, error) {
	if raw == "" {
		return domain.Empty(), nil
	}
	cell, err := excelize.CoordinatesToCellName(col, rowNum)
	if err != nil {
		return domain.Value{}, err
	}
	typ, err := f.GetCellType(sheet, cell)
	if err != nil {
		return domain.Value{}, err
	}
	switch typ {
	case excelize.CellTypeBool:
		return domain.Bool(raw == "1" || strings.EqualFold(raw, "true")), nil
	case excelize.CellTypeSharedString, excelize.CellTypeInlineString, excelize.CellTypeFormula, excelize.CellTypeError:
		return domain.Text(raw), nil
	default:
		if n, err := strconv.ParseFloat(raw, 64); err == nil {
			return domain.Number(n), nil
		}
		return domain.Text(raw), nil
	}
}

// Write encodes the dataset as a workbook, one sheet per table in dataset order.
// Empty values are written as blank cells, so an empty string does not survive a
// round trip as text.
func (Codec) Write(ds domain.Dataset) ([]byte, error) {
	if len(ds.Tables) == 0 {
		return nil, errors.New("xlsx write: dataset has no tables")
	}
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()
	first := f.GetSheetList()[0]
	for i, t := range ds.Tables {
		if i == 0 {
			if err := f.SetSheetName(first, t.Name); err != nil {
				return nil, fmt.Errorf("xlsx write %s: %w", t.Name, err)
			}
		} else if _, err := f.NewSheet(t.Name); err != nil {
			return nil, fmt.Errorf("xlsx write %s: %w", t.Name, err)
		}
		if err := writeTable(f, t); err != nil {
			return nil, fmt.Errorf("xlsx write %s: %w", t.Name, err)
		}
	}
	f.SetActiveSheet(0)
	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}
	return buf.Bytes(), nil
}

func writeTable(f *excelize.File, t domain.Table) error {
	header := make([]any, len(t.Columns))
	for i, c := range t.Columns {
		header[i] = c
	}
	if len(header) > 0 {
		if err := f.SetSheetRow(t.Name, "A1", &header); err != nil {
			return err
		}
	}
	// the used range records the row count, blank trailing rows included
	width := len(t.Columns)
	if width == 0 {
		width = 1
	}
	last, err := excelize.CoordinatesToCellName(width, len(t.Rows)+1)
	if err != nil {
		return err
	}
	if err := f.SetSheetDimension(t.Name, "A1:"+last); err != nil {
		return err
	}
	for r, row := range t.Rows {
		cells := make([]any, len(t.Columns))
		for i, c := range t.Columns {
			cells[i] = row[c].Interface()
		}
		cell, err := excelize.CoordinatesToCellName(1, r+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(t.Name, cell, &cells); err != nil {
			return err
		}
	}
	return nil
}
