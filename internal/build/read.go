package build

import (
	"encoding/csv"
	"io"
	"os"
	"path/filepath"

	"github.com/jonathan/tog-labels/internal/flatten"
)

// ReadCSV loads a header-first CSV file. Anything but a .csv extension is
// rejected before the file is opened.
func ReadCSV(path string) (*flatten.Table, error) {
	if ext := filepath.Ext(path); ext != flatten.FormatCSV {
		return nil, &ExtensionError{Path: path, Extension: ext}
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, &ReadError{Path: path, Cause: err}
	}
	defer func() { _ = f.Close() }()

	table, err := ParseCSV(f)
	if err != nil {
		return nil, &ReadError{Path: path, Cause: err}
	}
	return table, nil
}

// ParseCSV reads a header row followed by records.
func ParseCSV(r io.Reader) (*flatten.Table, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err == io.EOF {
		return &flatten.Table{}, nil
	}
	if err != nil {
		return nil, err
	}
	rows, err := cr.ReadAll()
	if err != nil {
		return nil, err
	}
	return &flatten.Table{Columns: header, Rows: rows}, nil
}
