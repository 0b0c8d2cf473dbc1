package flatten

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
)

// Output formats, named by file extension.
const (
	FormatCSV    = ".csv"
	FormatSQLite = ".sqlite"
	FormatXLSX   = ".xlsx"
)

// Formats lists the supported output formats.
var Formats = []string{FormatCSV, FormatSQLite, FormatXLSX}

// xlsxSheet is the sheet name used for XLSX output.
const xlsxSheet = "data"

// Write publishes table at path in the given tabular format.
func Write(path, format string, table *Table) error {
	switch format {
	case FormatCSV:
		return WriteCSV(path, table)
	case FormatXLSX:
		return WriteXLSX(path, table)
	default:
		return &WriteError{Path: path, Message: fmt.Sprintf("unsupported tabular format %q", format)}
	}
}

// WriteCSV writes table as comma separated text with a header row.
func WriteCSV(path string, table *Table) error {
	return Publish(path, func(w io.Writer) error {
		cw := csv.NewWriter(w)
		if err := cw.Write(table.Columns); err != nil {
			return err
		}
		if err := cw.WriteAll(table.Rows); err != nil {
			return err
		}
		cw.Flush()
		return cw.Error()
	})
}

// WriteXLSX writes table to the first sheet of a new workbook.
func WriteXLSX(path string, table *Table) error {
	return Publish(path, func(w io.Writer) error {
		f := excelize.NewFile()
		defer func() { _ = f.Close() }()

		if err := f.SetSheetName("Sheet1", xlsxSheet); err != nil {
			return err
		}
		if err := setRow(f, 1, table.Columns); err != nil {
			return err
		}
		for i, row := range table.Rows {
			if err := setRow(f, i+2, row); err != nil {
				return err
			}
		}
		return f.Write(w)
	})
}

func setRow(f *excelize.File, rowNum int, values []string) error {
	cell, err := excelize.CoordinatesToCellName(1, rowNum)
	if err != nil {
		return err
	}
	row := make([]any, len(values))
	for i, v := range values {
		row[i] = v
	}
	return f.SetSheetRow(xlsxSheet, cell, &row)
}

// Publish writes to a temp file next to path and links it into place, so a
// failed write never leaves a partial file behind. An existing path is an
// error, including one created while the contents were being written.
func Publish(path string, write func(io.Writer) error) error {
	if _, err := os.Stat(path); err == nil {
		return &OutputExistsError{Path: path}
	} else if !os.IsNotExist(err) {
		return &WriteError{Path: path, Message: "failed to stat output", Cause: err}
	}

	dir, base := filepath.Split(path)
	if dir == "" {
		dir = "."
	}
	tmp, err := os.CreateTemp(dir, "."+strings.TrimPrefix(base, ".")+".tmp-*")
	if err != nil {
		return &WriteError{Path: path, Message: "failed to create temp file", Cause: err}
	}
	tmpPath := tmp.Name()

	cleanup := func() {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
	}

	if err := write(tmp); err != nil {
		cleanup()
		return &WriteError{Path: path, Message: "failed to write contents", Cause: err}
	}
	if err := tmp.Sync(); err != nil {
		cleanup()
		return &WriteError{Path: path, Message: "failed to sync", Cause: err}
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return &WriteError{Path: path, Message: "failed to close", Cause: err}
	}
	defer func() { _ = os.Remove(tmpPath) }()
	return linkNoClobber(tmpPath, path)
}

// linkNoClobber makes src visible at path without replacing an existing file.
// Filesystems without hard links fall back to an exclusive create and copy.
func linkNoClobber(src, path string) error {
	err := os.Link(src, path)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, fs.ErrExist):
		return &OutputExistsError{Path: path}
	}
	return copyExclusive(src, path)
}

func copyExclusive(src, path string) error {
	in, err := os.Open(src)
	if err != nil {
		return &WriteError{Path: path, Message: "failed to open source", Cause: err}
	}
	defer func() { _ = in.Close() }()

	out, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if errors.Is(err, fs.ErrExist) {
		return &OutputExistsError{Path: path}
	}
	if err != nil {
		return &WriteError{Path: path, Message: "failed to publish", Cause: err}
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		_ = os.Remove(path)
		return &WriteError{Path: path, Message: "failed to publish", Cause: err}
	}
	if err := out.Close(); err != nil {
		_ = os.Remove(path)
		return &WriteError{Path: path, Message: "failed to publish", Cause: err}
	}
	return nil
}

// PublishFile moves an already written file to path with the same
// no-overwrite rule as Publish.
func PublishFile(src, path string) error {
	err := os.Link(src, path)
	if err == nil {
		return os.Remove(src)
	}
	if errors.Is(err, fs.ErrExist) {
		return &OutputExistsError{Path: path}
	}
	// Links fail across filesystems; fall back to a copy.
	in, err := os.Open(src)
	if err != nil {
		return &WriteError{Path: path, Message: "failed to open source", Cause: err}
	}
	defer func() { _ = in.Close() }()

	if err := Publish(path, func(w io.Writer) error {
		_, err := io.Copy(w, in)
		return err
	}); err != nil {
		return err
	}
	_ = in.Close()
	return os.Remove(src)
}
