package report

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/xuri/excelize/v2"

	"secsync/internal/etl"
	"secsync/internal/ipnet"
)

// ── Excel export ───────────────────────────────────────────
// Workbook writer for ad-hoc report pulls. One sheet per report type,
// header row from the schema, values rendered with their native Excel
// type where possible.

// Excel rejects sheet names longer than 31 characters.
const maxSheetName = 31

// Sheet is one report's worth of rows destined for a workbook tab.
type Sheet struct {
	Name    string
	Schema  etl.Schema
	Records []etl.Record
}

// SheetName truncates a report name to Excel's limit.
func SheetName(name string) string {
	if len(name) > maxSheetName {
		return name[:maxSheetName]
	}
	return name
}

// OutputDir creates and returns a timestamped folder under base for one
// export run.
func OutputDir(base string, now time.Time) (string, error) {
	dir := filepath.Join(base, now.Format("2006-01-02_150405"))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating output dir: %w", err)
	}
	return dir, nil
}

// WriteWorkbook writes all sheets into a single .xlsx file at path.
func WriteWorkbook(path string, sheets []Sheet) error {
	if len(sheets) == 0 {
		return fmt.Errorf("no sheets to write")
	}

	f := excelize.NewFile()
	defer f.Close()

	for i, sheet := range sheets {
		name := SheetName(sheet.Name)
		if i == 0 {
			// Rename the default sheet instead of leaving an empty tab.
			if err := f.SetSheetName(f.GetSheetName(0), name); err != nil {
				return fmt.Errorf("sheet %q: %w", name, err)
			}
		} else {
			if _, err := f.NewSheet(name); err != nil {
				return fmt.Errorf("sheet %q: %w", name, err)
			}
		}
		if err := writeSheet(f, name, sheet); err != nil {
			return fmt.Errorf("sheet %q: %w", name, err)
		}
	}

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("saving workbook: %w", err)
	}
	return nil
}

func writeSheet(f *excelize.File, name string, sheet Sheet) error {
	cols := sheet.Schema.FieldNames()

	header := make([]any, len(cols))
	for i, c := range cols {
		header[i] = c
	}
	if err := f.SetSheetRow(name, "A1", &header); err != nil {
		return err
	}

	for rowIdx, rec := range sheet.Records {
		row := make([]any, len(cols))
		for i, c := range cols {
			row[i] = cellValue(rec.Data[c])
		}
		cell, err := excelize.CoordinatesToCellName(1, rowIdx+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(name, cell, &row); err != nil {
			return err
		}
	}
	return nil
}

// cellValue keeps scalars excelize understands and stringifies the rest.
func cellValue(v any) any {
	switch val := v.(type) {
	case nil:
		return ""
	case string, float64, bool, int, int64:
		return val
	case time.Time:
		return val.UTC().Format("2006-01-02 15:04:05")
	default:
		return fmt.Sprintf("%v", val)
	}
}

// ── CIDR mask batch ────────────────────────────────────────

// AddMaskColumn reads CIDRs from cidrCol on the named sheet (skipping the
// header row) and writes the dotted subnet mask into the next column,
// headed "Subnet Mask". Rows whose CIDR fails to parse get the error text
// instead of a mask.
func AddMaskColumn(path, sheetName, cidrCol string) (int, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return 0, fmt.Errorf("opening workbook: %w", err)
	}
	defer f.Close()

	if sheetName == "" {
		sheetName = f.GetSheetName(0)
	}
	if cidrCol == "" {
		cidrCol = "A"
	}

	cidrIdx, err := excelize.ColumnNameToNumber(cidrCol)
	if err != nil {
		return 0, fmt.Errorf("column %q: %w", cidrCol, err)
	}
	maskCol, err := excelize.ColumnNumberToName(cidrIdx + 1)
	if err != nil {
		return 0, err
	}

	rows, err := f.GetRows(sheetName)
	if err != nil {
		return 0, fmt.Errorf("reading sheet %q: %w", sheetName, err)
	}

	if err := f.SetCellValue(sheetName, maskCol+"1", "Subnet Mask"); err != nil {
		return 0, err
	}

	written := 0
	for i := 1; i < len(rows); i++ {
		row := rows[i]
		if cidrIdx-1 >= len(row) {
			continue
		}
		cidr := row[cidrIdx-1]
		if cidr == "" {
			continue
		}
		mask, err := ipnet.MaskFromCIDR(cidr)
		if err != nil {
			mask = err.Error()
		}
		cell := fmt.Sprintf("%s%d", maskCol, i+1)
		if err := f.SetCellValue(sheetName, cell, mask); err != nil {
			return written, err
		}
		written++
	}

	if err := f.Save(); err != nil {
		return written, fmt.Errorf("saving workbook: %w", err)
	}
	return written, nil
}
