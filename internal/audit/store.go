// Package audit persists FileAccessController decisions durably, one file
// per decision under a per-lineage directory, using the same
// temp-file-plus-fsync-plus-rename pattern the teacher uses for run and
// checkpoint state (internal/recovery/state.Store): every write is atomic
// and survives a crash mid-write.
package audit

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

// Store is a durable, append-only Sink. Decisions for lineage L are written
// under <baseDir>/.ctxguard/audit/<L>/<sequence>.json.
type Store struct {
	baseDir string
	log     *zap.Logger
}

// NewStore returns a Store rooted at baseDir. A nil logger is replaced with
// zap.NewNop().
func NewStore(baseDir string, log *zap.Logger) (*Store, error) {
	if strings.TrimSpace(baseDir) == "" {
		return nil, errors.New("baseDir is required")
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{baseDir: baseDir, log: log}, nil
}

func (s *Store) lineageDir(lineageName string) string {
	return filepath.Join(s.baseDir, ".ctxguard", "audit", lineageName)
}

func (s *Store) decisionPath(lineageName string, sequence uint64) string {
	return filepath.Join(s.lineageDir(lineageName), strconv.FormatUint(sequence, 10)+".json")
}

// Record persists d. Per the Sink contract it must not panic; a write
// failure is logged and otherwise swallowed.
func (s *Store) Record(d Decision) {
	if err := s.save(d); err != nil {
		s.log.Warn("audit: failed to persist decision",
			zap.String("lineage", d.LineageName),
			zap.Uint64("sequence", d.Sequence),
			zap.Error(err))
	}
}

func (s *Store) save(d Decision) error {
	if err := d.Validate(); err != nil {
		return fmt.Errorf("invalid decision: %w", err)
	}
	if err := ensureLineageDir(s.lineageDir(d.LineageName)); err != nil {
		return fmt.Errorf("ensure audit dir: %w", err)
	}
	data, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal decision: %w", err)
	}
	data = append(data, '\n')
	if err := writeDecisionAtomic(s.decisionPath(d.LineageName, d.Sequence), data); err != nil {
		return fmt.Errorf("write decision: %w", err)
	}
	return nil
}

// Load returns every persisted decision for lineageName, ordered by
// sequence number (matching the order the checks were performed).
func (s *Store) Load(lineageName string) ([]Decision, error) {
	dir := s.lineageDir(lineageName)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".json") {
			names = append(names, e.Name())
		}
	}
	sort.Slice(names, func(i, j int) bool {
		ni, _ := strconv.ParseUint(strings.TrimSuffix(names[i], ".json"), 10, 64)
		nj, _ := strconv.ParseUint(strings.TrimSuffix(names[j], ".json"), 10, 64)
		return ni < nj
	})

	out := make([]Decision, 0, len(names))
	for _, name := range names {
		var d Decision
		if err := decodeDecisionStrict(filepath.Join(dir, name), &d); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, nil
}

// decodeDecisionStrict decodes one persisted decision file, rejecting
// unknown fields and any content past the single JSON value — a decision
// file is never appended to after it is written.
func decodeDecisionStrict(path string, dst any) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	dec := json.NewDecoder(f)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return err
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return errors.New("invalid JSON: trailing content")
	}
	return nil
}

// ensureLineageDir creates dir (and its parent) if missing and fsyncs both,
// so a crash right after Record can't leave a directory entry that never
// made it to disk.
func ensureLineageDir(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	if err := fsyncDirectory(dir); err != nil {
		return err
	}
	if parent := filepath.Dir(dir); parent != dir {
		if err := fsyncDirectory(parent); err != nil {
			return err
		}
	}
	return nil
}

// writeDecisionAtomic writes data to a sibling temp file, syncs it, then
// renames it over path, so a reader never observes a half-written decision.
func writeDecisionAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp.*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		_ = tmp.Close()
		if !committed {
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := io.Copy(tmp, bytes.NewReader(data)); err != nil {
		return err
	}
	if err := tmp.Chmod(0o644); err != nil {
		return err
	}
	if err := tmp.Sync(); err != nil {
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		return err
	}
	committed = true
	return fsyncDirectory(dir)
}

func fsyncDirectory(dir string) error {
	f, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer f.Close()
	return f.Sync()
}
