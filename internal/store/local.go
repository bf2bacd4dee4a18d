package store

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/dfilabs/pulse-data/internal/model"
)

// dateLayout is the serialized form of the timestamp column.
const dateLayout = "2006-01-02 15:04:05"

// Local stores each dataset as a CSV file under a root directory:
//
//	<root>/<PROVIDER>_<kind>/<PROVIDER>_<symbol>_<kind>_<resolution>.csv
//
// with a header row naming the columns and the date serialized as
// "2006-01-02 15:04:05". Numeric values are float32.
type Local struct {
	root string
}

// NewLocal creates a local backend rooted at dir.
func NewLocal(dir string) *Local {
	return &Local{root: dir}
}

// Path returns the file path for a key.
func (l *Local) Path(key model.Key) string {
	folder := fmt.Sprintf("%s_%s", key.Provider, key.Kind)
	file := fmt.Sprintf("%s_%s_%s_%s.csv",
		key.Provider, key.Symbol, key.Kind, model.FormatResolution(key.Resolution))
	return filepath.Join(l.root, folder, file)
}

// Load reads the CSV for key, or model.ErrNotFound when absent.
func (l *Local) Load(ctx context.Context, key model.Key) (*model.Table, error) {
	f, err := os.Open(l.Path(key))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, model.ErrNotFound
		}
		return nil, fmt.Errorf("open %s: %w", key, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("read header %s: %w", key, err)
	}
	if len(header) < 1 || header[0] != "date" {
		return nil, fmt.Errorf("read %s: first column is %q, want \"date\"", key, header[0])
	}

	table := model.NewTable(header[1:]...)
	for {
		record, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", key, err)
		}
		if len(record) != len(header) {
			return nil, fmt.Errorf("read %s: row has %d fields, want %d", key, len(record), len(header))
		}
		ts, err := time.Parse(dateLayout, record[0])
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", key, err)
		}
		values := make([]float32, len(record)-1)
		for i, field := range record[1:] {
			v, err := strconv.ParseFloat(field, 32)
			if err != nil {
				return nil, fmt.Errorf("read %s column %s: %w", key, header[i+1], err)
			}
			values[i] = float32(v)
		}
		table.Rows = append(table.Rows, model.Row{TS: ts, Values: values})
	}
	return table, nil
}

// Save writes the table as CSV, creating the folder if needed. The write
// goes through a temp file and rename so readers never see a torn file.
func (l *Local) Save(ctx context.Context, key model.Key, table *model.Table) error {
	path := l.Path(key)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("mkdir for %s: %w", key, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return fmt.Errorf("temp file for %s: %w", key, err)
	}
	defer os.Remove(tmp.Name())

	w := csv.NewWriter(tmp)
	header := append([]string{"date"}, table.Columns...)
	if err := w.Write(header); err != nil {
		tmp.Close()
		return fmt.Errorf("write header %s: %w", key, err)
	}

	record := make([]string, len(header))
	for _, row := range table.Rows {
		record[0] = row.TS.Format(dateLayout)
		for i, v := range row.Values {
			record[i+1] = strconv.FormatFloat(float64(v), 'g', -1, 32)
		}
		if err := w.Write(record); err != nil {
			tmp.Close()
			return fmt.Errorf("write row %s: %w", key, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		tmp.Close()
		return fmt.Errorf("flush %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", key, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rename %s: %w", key, err)
	}
	return nil
}
