package report

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// WriteCSVExtracts writes one CSV file per sheet into dir, named after the
// report. Returns the paths written.
func WriteCSVExtracts(dir string, sheets []Sheet) ([]string, error) {
	if len(sheets) == 0 {
		return nil, fmt.Errorf("no extracts to write")
	}

	paths := make([]string, 0, len(sheets))
	for _, sheet := range sheets {
		path := filepath.Join(dir, sheet.Name+".csv")
		if err := writeCSV(path, sheet); err != nil {
			return paths, fmt.Errorf("extract %q: %w", sheet.Name, err)
		}
		paths = append(paths, path)
	}
	return paths, nil
}

func writeCSV(path string, sheet Sheet) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}

	w := csv.NewWriter(f)
	cols := sheet.Schema.FieldNames()
	if err := w.Write(cols); err != nil {
		f.Close()
		return err
	}

	row := make([]string, len(cols))
	for _, rec := range sheet.Records {
		for i, c := range cols {
			row[i] = csvValue(rec.Data[c])
		}
		if err := w.Write(row); err != nil {
			f.Close()
			return err
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func csvValue(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case time.Time:
		return val.UTC().Format("2006-01-02 15:04:05")
	default:
		return fmt.Sprintf("%v", val)
	}
}
