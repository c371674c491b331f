package logger

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

const fileDateFormat = "2006.01.02"

// FileSink appends records to one file per UTC day under <root>/logs/<env>.
type FileSink struct {
	dir string

	mu      sync.Mutex
	day     string
	current *os.File
}

func NewFileSink(root, env string) *FileSink {
	return &FileSink{dir: filepath.Join(root, "logs", env)}
}

func (s *FileSink) Dir() string { return s.dir }

// PathFor returns the file a record written at t lands in.
func (s *FileSink) PathFor(t time.Time) string {
	return filepath.Join(s.dir, t.UTC().Format(fileDateFormat)+".txt")
}

func (s *FileSink) Write(_ context.Context, r Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	day := r.Time.UTC().Format(fileDateFormat)
	if s.current == nil || s.day != day {
		if err := s.rotate(r.Time); err != nil {
			return err
		}
	}

	_, err := s.current.WriteString(r.FileLine())
	return err
}

func (s *FileSink) rotate(t time.Time) error {
	if s.current != nil {
		_ = s.current.Close()
		s.current = nil
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create log directory: %w", err)
	}
	f, err := os.OpenFile(s.PathFor(t), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	s.current = f
	s.day = t.UTC().Format(fileDateFormat)
	return nil
}

func (s *FileSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return nil
	}
	err := s.current.Close()
	s.current = nil
	return err
}

// Prune removes daily files older than keep days relative to now and
// returns how many were deleted. The file for today is never removed.
func (s *FileSink) Prune(now time.Time, keep int) (int, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}

	cutoff := now.UTC().AddDate(0, 0, -keep).Format(fileDateFormat)
	today := now.UTC().Format(fileDateFormat)

	removed := 0
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".txt") {
			continue
		}
		day := strings.TrimSuffix(name, ".txt")
		if _, err := time.Parse(fileDateFormat, day); err != nil {
			continue
		}
		// The date format sorts lexically.
		if day >= cutoff || day == today {
			continue
		}
		if err := os.Remove(filepath.Join(s.dir, name)); err != nil {
			return removed, err
		}
		removed++
	}
	return removed, nil
}
