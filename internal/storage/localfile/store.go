// Package localfile keeps the dataset in a CSV file on local disk.
package localfile

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"

	"github.com/dmehra2102/prod-golang-projects/chronicrisk/internal/domain/patient"
	"github.com/dmehra2102/prod-golang-projects/chronicrisk/internal/storage/tabular"
)

// Store appends in place. Appends from one process are serialized; the
// file itself is not locked against other processes.
type Store struct {
	path string
	mu   sync.Mutex
	log  *zap.Logger
}

func New(path string, log *zap.Logger) *Store {
	return &Store{path: path, log: log}
}

func (s *Store) ReadAll(_ context.Context) (patient.Dataset, error) {
	f, err := os.Open(s.path)
	if err != nil {
		return nil, fmt.Errorf("%w: opening %s: %v", patient.ErrStorageUnavailable, s.path, err)
	}
	defer f.Close()

	ds, err := tabular.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", patient.ErrStorageUnavailable, s.path, err)
	}
	return ds, nil
}

func (s *Store) Append(_ context.Context, r patient.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.OpenFile(s.path, os.O_RDWR, 0)
	if errors.Is(err, fs.ErrNotExist) {
		return s.create(r)
	}
	if err != nil {
		return fmt.Errorf("%w: opening %s: %v", patient.ErrStorageUnavailable, s.path, err)
	}
	defer f.Close()

	header, err := csv.NewReader(f).Read()
	if errors.Is(err, io.EOF) {
		// Empty file: write the header first.
		header = patient.Columns
		if err := tabular.EncodeRow(f, header, headerRecord()); err != nil {
			return fmt.Errorf("%w: writing header: %v", patient.ErrStorageUnavailable, err)
		}
	} else if err != nil {
		return fmt.Errorf("%w: reading header of %s: %v", patient.ErrStorageUnavailable, s.path, err)
	}

	end, err := f.Seek(0, io.SeekEnd)
	if err != nil {
		return fmt.Errorf("%w: %v", patient.ErrStorageUnavailable, err)
	}

	var buf bytes.Buffer
	if end > 0 {
		last := make([]byte, 1)
		if _, err := f.ReadAt(last, end-1); err == nil && last[0] != '\n' {
			buf.WriteByte('\n')
		}
	}
	if err := tabular.EncodeRow(&buf, header, r); err != nil {
		return fmt.Errorf("encoding record: %w", err)
	}
	if _, err := f.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("%w: writing %s: %v", patient.ErrStorageUnavailable, s.path, err)
	}
	return nil
}

func (s *Store) create(r patient.Record) error {
	if dir := filepath.Dir(s.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("%w: creating %s: %v", patient.ErrStorageUnavailable, dir, err)
		}
	}

	data, err := tabular.Marshal(patient.Dataset{r})
	if err != nil {
		return fmt.Errorf("encoding record: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0o644); err != nil {
		return fmt.Errorf("%w: writing %s: %v", patient.ErrStorageUnavailable, s.path, err)
	}

	s.log.Info("created dataset file", zap.String("path", s.path))
	return nil
}

func headerRecord() patient.Record {
	r := make(patient.Record, len(patient.Columns))
	for _, c := range patient.Columns {
		r[c] = c
	}
	return r
}
