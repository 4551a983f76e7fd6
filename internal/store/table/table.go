// Package table persists post records and id lists as CSV files.
//
// Full writes go through a temp file and rename; appends encode the whole
// batch in memory and hand it to a single write on an O_APPEND descriptor, so
// rows already on disk are never rewritten.
package table

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"xharvest/internal/model"
)

var (
	ErrNotFound       = errors.New("table not found")
	ErrHeaderMismatch = errors.New("table header mismatch")
)

// Store is the CSV table store. The zero value is ready to use.
type Store struct{}

// ReadIDs returns the values of column in file order, skipping blank cells.
func (Store) ReadIDs(path, column string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	header, err := r.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("%w: %s has no header", ErrNotFound, path)
	}
	if err != nil {
		return nil, err
	}
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}
	col := slices.Index(header, column)
	if col < 0 {
		return nil, fmt.Errorf("%w: column %q in %s", ErrNotFound, column, path)
	}
	var ids []string
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return ids, err
		}
		if col < len(rec) {
			if id := strings.TrimSpace(rec[col]); id != "" {
				ids = append(ids, id)
			}
		}
	}
	return ids, nil
}

// ReadFailureIDs reads an unheaded single-column id list.
func (Store) ReadFailureIDs(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, err
	}
	defer f.Close()
	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	var ids []string
	for {
		rec, err := r.Read()
		if err == io.EOF {
			return ids, nil
		}
		if err != nil {
			return ids, err
		}
		if len(rec) > 0 && strings.TrimSpace(rec[0]) != "" {
			ids = append(ids, strings.TrimSpace(rec[0]))
		}
	}
}

// WriteAll creates or replaces path with the header and one row per record.
// An empty batch leaves the file system untouched.
func (Store) WriteAll(path string, records []model.PostRecord) error {
	if len(records) == 0 {
		return nil
	}
	buf, err := encode(model.Header, records)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(buf); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Chmod(0o644); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// AppendRows appends records to path. An absent or empty file gets the header
// first; an existing header must match the record column set.
func (Store) AppendRows(path string, records []model.PostRecord) error {
	if len(records) == 0 {
		return nil
	}
	fresh, err := checkHeader(path)
	if err != nil {
		return err
	}
	var header []string
	if fresh {
		header = model.Header
	}
	buf, err := encode(header, records)
	if err != nil {
		return err
	}
	return appendBytes(path, buf)
}

// AppendIDs appends one unheaded row per id.
func (Store) AppendIDs(path string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	for _, id := range ids {
		if err := w.Write([]string{id}); err != nil {
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return err
	}
	return appendBytes(path, buf.Bytes())
}

// WriteTo writes records as CSV to w, with the header when header is true.
func (Store) WriteTo(w io.Writer, records []model.PostRecord, header bool) error {
	var h []string
	if header {
		h = model.Header
	}
	buf, err := encode(h, records)
	if err != nil {
		return err
	}
	_, err = w.Write(buf)
	return err
}

func encode(header []string, records []model.PostRecord) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if header != nil {
		if err := w.Write(header); err != nil {
			return nil, err
		}
	}
	for _, r := range records {
		if err := w.Write(r.Row()); err != nil {
			return nil, err
		}
	}
	w.Flush()
	return buf.Bytes(), w.Error()
}

// checkHeader reports whether path is absent or empty, and otherwise
// verifies that its first row equals the record header.
func checkHeader(path string) (bool, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return true, nil
	}
	if err != nil {
		return false, err
	}
	defer f.Close()
	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	got, err := r.Read()
	if err == io.EOF {
		return true, nil
	}
	if err != nil {
		return false, err
	}
	if !slices.Equal(got, model.Header) {
		return false, fmt.Errorf("%w: %s", ErrHeaderMismatch, path)
	}
	return false, nil
}

func appendBytes(path string, b []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.Write(b); err != nil {
		f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
