package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"system-snapshot/internal/metrics"
)

// HistoryFileName is the file kept inside the snapshot directory.
const HistoryFileName = "system_snapshot.json"

var (
	ErrMalformed = errors.New("malformed snapshot history")
	ErrShape     = errors.New("unexpected snapshot history shape")
)

type Store struct {
	dir    string
	limit  int
	logger zerolog.Logger
}

func NewStore(dir string, limit int, logger zerolog.Logger) *Store {
	return &Store{
		dir:    dir,
		limit:  limit,
		logger: logger,
	}
}

func (s *Store) Path() string {
	return filepath.Join(s.dir, HistoryFileName)
}

func (s *Store) Load() (metrics.History, error) {
	return LoadHistory(s.Path())
}

// LoadHistory reads the whole document at path. A missing file surfaces as
// fs.ErrNotExist.
func LoadHistory(path string) (metrics.History, error) {
	file, err := os.Open(path)
	if err != nil {
		return metrics.History{}, fmt.Errorf("failed to open snapshot history: %w", err)
	}
	defer file.Close()

	history, err := DecodeHistory(file)
	if err != nil {
		return metrics.History{}, fmt.Errorf("%s: %w", path, err)
	}
	return history, nil
}

func DecodeHistory(r io.Reader) (metrics.History, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return metrics.History{}, fmt.Errorf("failed to read snapshot history: %w", err)
	}

	var history metrics.History
	if err := json.Unmarshal(data, &history); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			return metrics.History{}, fmt.Errorf("%w: %w", ErrShape, err)
		}
		return metrics.History{}, fmt.Errorf("%w: %w", ErrMalformed, err)
	}

	if history.Snapshots == nil {
		return metrics.History{}, fmt.Errorf("%w: missing \"snapshots\" list", ErrShape)
	}
	return history, nil
}

// Append adds snap to the history file and trims it to the configured limit.
// An unreadable existing history is replaced.
func (s *Store) Append(snap metrics.Snapshot) (string, error) {
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create snapshot dir: %w", err)
	}

	path := s.Path()
	history, err := LoadHistory(path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			s.logger.Warn().Err(err).Str("path", path).Msg("starting a fresh snapshot history")
		}
		history = metrics.History{}
	}

	history.Snapshots = Trim(append(history.Snapshots, snap), s.limit)

	data, err := json.MarshalIndent(history, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal snapshot history: %w", err)
	}

	if err := writeFile(s.dir, path, data); err != nil {
		return "", err
	}
	return path, nil
}

// Trim keeps the newest limit snapshots. A non-positive limit keeps all.
func Trim(snapshots []metrics.Snapshot, limit int) []metrics.Snapshot {
	if limit <= 0 || len(snapshots) <= limit {
		return snapshots
	}
	kept := make([]metrics.Snapshot, limit)
	copy(kept, snapshots[len(snapshots)-limit:])
	return kept
}

func writeFile(dir, path string, data []byte) error {
	tmp, err := os.CreateTemp(dir, ".snapshot-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write snapshot history: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close snapshot history: %w", err)
	}
	if err := os.Chmod(tmpName, 0644); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to chmod snapshot history: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace snapshot history: %w", err)
	}
	return nil
}
