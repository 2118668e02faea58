package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/klauspost/compress/gzip"
)

// Header is the single column written at the top of every export.
const Header = "User ID"

// CSVSink writes member ids to a staging file and moves it into place on
// Commit, so readers never see a half written export.
type CSVSink struct {
	mu          sync.Mutex
	finalPath   string
	stagingPath string

	file *os.File
	gz   *gzip.Writer
	w    *csv.Writer

	rows      int
	committed bool
}

// Path returns the export location for guildID under dir.
func Path(dir, guildID string, compress bool) string {
	name := guildID + ".csv"
	if compress {
		name += ".gz"
	}
	return filepath.Join(dir, name)
}

// NewCSVSink creates the staging file for guildID under dir and writes the
// header row.
func NewCSVSink(dir, guildID string, compress bool) (*CSVSink, error) {
	finalPath := Path(dir, guildID, compress)
	stagingPath := filepath.Join(dir, ".staging", filepath.Base(finalPath)+".tmp")

	if err := os.MkdirAll(filepath.Dir(stagingPath), 0750); err != nil {
		return nil, fmt.Errorf("creating directories: %w", err)
	}

	f, err := os.Create(stagingPath)
	if err != nil {
		return nil, fmt.Errorf("creating staging file: %w", err)
	}

	s := &CSVSink{
		finalPath:   finalPath,
		stagingPath: stagingPath,
		file:        f,
	}
	var out io.Writer = f
	if compress {
		s.gz = gzip.NewWriter(f)
		out = s.gz
	}
	s.w = csv.NewWriter(out)

	if err := s.writeRow(Header); err != nil {
		_ = f.Close()
		_ = os.Remove(stagingPath)
		return nil, err
	}
	return s, nil
}

// Emit appends one member id.
func (s *CSVSink) Emit(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.committed {
		return fmt.Errorf("emit %s: export already committed", id)
	}
	if err := s.writeRow(id); err != nil {
		return err
	}
	s.rows++
	return nil
}

func (s *CSVSink) writeRow(value string) error {
	if err := s.w.Write([]string{value}); err != nil {
		return fmt.Errorf("writing row: %w", err)
	}
	s.w.Flush()
	if err := s.w.Error(); err != nil {
		return fmt.Errorf("flushing row: %w", err)
	}
	return nil
}

// Rows returns the number of ids written so far.
func (s *CSVSink) Rows() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rows
}

// FinalPath is where Commit moves the export.
func (s *CSVSink) FinalPath() string {
	return s.finalPath
}

// Commit closes the staging file and atomically renames it over the final
// path. Calling it again is a no-op.
func (s *CSVSink) Commit() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.committed {
		return nil
	}
	s.committed = true

	if err := s.closeFile(); err != nil {
		_ = os.Remove(s.stagingPath)
		return err
	}

	// Atomic rename
	if err := os.Rename(s.stagingPath, s.finalPath); err != nil {
		_ = os.Remove(s.stagingPath)
		return fmt.Errorf("renaming staging file: %w", err)
	}
	return nil
}

// Discard closes and removes the staging file without committing.
func (s *CSVSink) Discard() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.committed {
		return nil
	}
	s.committed = true
	closeErr := s.closeFile()
	if err := os.Remove(s.stagingPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing staging file: %w", err)
	}
	return closeErr
}

func (s *CSVSink) closeFile() error {
	s.w.Flush()
	err := s.w.Error()
	if s.gz != nil {
		if gzErr := s.gz.Close(); gzErr != nil && err == nil {
			err = gzErr
		}
	}
	if closeErr := s.file.Close(); closeErr != nil && err == nil {
		err = closeErr
	}
	if err != nil {
		return fmt.Errorf("closing staging file: %w", err)
	}
	return nil
}
