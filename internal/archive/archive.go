package archive

import (
	"compress/gzip"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/saviobatista/weather-rollup/internal/types"
)

// Journal appends stored observations to a JSONL file per local date. On
// date rollover the previous day's file is gzip-compressed and removed.
type Journal struct {
	dir      string
	mu       sync.Mutex
	file     *os.File
	openDate string
	now      func() time.Time
}

// New creates a journal rooted at dir, creating the directory if needed
func New(dir string) (*Journal, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create archive directory: %w", err)
	}
	return &Journal{dir: dir, now: time.Now}, nil
}

// Append writes one observation as a JSON line to the current day's file
func (j *Journal) Append(obs *types.Observation) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	today := types.LocalDay(j.now()).Format("2006-01-02")
	if j.file == nil || j.openDate != today {
		if err := j.rotate(today); err != nil {
			return err
		}
	}

	data, err := json.Marshal(obs)
	if err != nil {
		return fmt.Errorf("failed to marshal observation: %w", err)
	}
	_, err = j.file.Write(append(data, '\n'))
	return err
}

// Close closes the current journal file
func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.file != nil {
		err := j.file.Close()
		j.file = nil
		return err
	}
	return nil
}

// rotate opens the file for date and compresses the previously open one
func (j *Journal) rotate(date string) error {
	if j.file != nil {
		j.file.Close()
		j.file = nil
		if err := j.compress(j.fileName(j.openDate)); err != nil {
			return fmt.Errorf("failed to compress previous journal: %w", err)
		}
	}

	file, err := os.OpenFile(j.fileName(date), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open journal file: %w", err)
	}
	j.file = file
	j.openDate = date
	return nil
}

func (j *Journal) fileName(date string) string {
	return filepath.Join(j.dir, fmt.Sprintf("observations_%s.jsonl", date))
}

// compress gzips path and removes the original
func (j *Journal) compress(path string) error {
	source, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	defer source.Close()

	target, err := os.Create(path + ".gz")
	if err != nil {
		return err
	}
	defer target.Close()

	gz := gzip.NewWriter(target)
	if _, err := io.Copy(gz, source); err != nil {
		gz.Close()
		return err
	}
	if err := gz.Close(); err != nil {
		return err
	}

	return os.Remove(path)
}
