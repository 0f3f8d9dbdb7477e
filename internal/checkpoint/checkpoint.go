// Package checkpoint persists scraping progress so an interrupted run can
// resume where it stopped.
package checkpoint

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"fbscrape/pkg/types"
)

var ErrNoCheckpoint = errors.New("no checkpoint found")

const (
	filePrefix  = "checkpoint_"
	fileSuffix  = ".json"
	DefaultKeep = 5
)

// Checkpoint is one snapshot of a run.
type Checkpoint struct {
	RunID              string       `json:"run_id"`
	TargetURL          string       `json:"target_url"`
	ProcessedPosts     []types.Post `json:"processed_posts"`
	LastScrollPosition int          `json:"last_scroll_position"`
	ScrollCount        int          `json:"scroll_count"`
	Timestamp          time.Time    `json:"timestamp"`
	Config             interface{}  `json:"config,omitempty"`
}

// Manager writes checkpoints into one directory and keeps only the newest
// few of them.
type Manager struct {
	dir    string
	keep   int
	logger *logrus.Logger

	mu   sync.Mutex
	last int64
	now  func() time.Time
}

func NewManager(dir string, keep int, logger *logrus.Logger) *Manager {
	if keep <= 0 {
		keep = DefaultKeep
	}
	return &Manager{dir: dir, keep: keep, logger: logger, now: time.Now}
}

func (m *Manager) Dir() string {
	return m.dir
}

// Save writes cp to checkpoint_<unixnano>.json through a temp file and a
// rename, then prunes old checkpoints. It returns the written path.
func (m *Manager) Save(cp *Checkpoint) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := os.MkdirAll(m.dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create checkpoint directory: %w", err)
	}

	now := m.now()
	stamp := now.UnixNano()
	if stamp <= m.last {
		stamp = m.last + 1
	}
	m.last = stamp
	if cp.Timestamp.IsZero() {
		cp.Timestamp = now.UTC()
	}

	data, err := json.MarshalIndent(cp, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal checkpoint: %w", err)
	}

	path := filepath.Join(m.dir, filePrefix+strconv.FormatInt(stamp, 10)+fileSuffix)
	if err := writeAtomic(path, data); err != nil {
		return "", err
	}
	m.logger.Infof("Checkpoint saved: %s (%d posts, scroll %d)", path, len(cp.ProcessedPosts), cp.LastScrollPosition)

	m.prune()
	return path, nil
}

func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".checkpoint-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp checkpoint: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write checkpoint: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync checkpoint: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close checkpoint: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to move checkpoint into place: %w", err)
	}
	return nil
}

type entry struct {
	path  string
	mtime time.Time
}

// list returns the checkpoint files, newest first: by modification time,
// then by the timestamp in the name.
func (m *Manager) list() ([]entry, error) {
	matches, err := filepath.Glob(filepath.Join(m.dir, filePrefix+"*"+fileSuffix))
	if err != nil {
		return nil, err
	}
	entries := make([]entry, 0, len(matches))
	for _, p := range matches {
		info, err := os.Stat(p)
		if err != nil {
			continue
		}
		entries = append(entries, entry{path: p, mtime: info.ModTime()})
	}
	sort.Slice(entries, func(i, j int) bool {
		if !entries[i].mtime.Equal(entries[j].mtime) {
			return entries[i].mtime.After(entries[j].mtime)
		}
		return stampOf(entries[i].path) > stampOf(entries[j].path)
	})
	return entries, nil
}

func stampOf(path string) int64 {
	name := strings.TrimSuffix(strings.TrimPrefix(filepath.Base(path), filePrefix), fileSuffix)
	n, _ := strconv.ParseInt(name, 10, 64)
	return n
}

func (m *Manager) prune() {
	entries, err := m.list()
	if err != nil {
		m.logger.Debugf("Error listing checkpoints: %v", err)
		return
	}
	for _, e := range entries[min(m.keep, len(entries)):] {
		if err := os.Remove(e.path); err != nil {
			m.logger.Debugf("Error removing old checkpoint %s: %v", e.path, err)
		}
	}
}

// Latest loads the newest checkpoint.
func (m *Manager) Latest() (*Checkpoint, error) {
	return m.latest(func(*Checkpoint) bool { return true })
}

// LatestFor loads the newest checkpoint recorded for targetURL.
func (m *Manager) LatestFor(targetURL string) (*Checkpoint, error) {
	return m.latest(func(cp *Checkpoint) bool { return cp.TargetURL == targetURL })
}

func (m *Manager) latest(match func(*Checkpoint) bool) (*Checkpoint, error) {
	entries, err := m.list()
	if err != nil {
		return nil, fmt.Errorf("failed to list checkpoints: %w", err)
	}
	for _, e := range entries {
		cp, err := Load(e.path)
		if err != nil {
			m.logger.Warnf("Skipping unreadable checkpoint %s: %v", e.path, err)
			continue
		}
		if match(cp) {
			m.logger.Infof("Loaded checkpoint: %s", e.path)
			return cp, nil
		}
	}
	return nil, ErrNoCheckpoint
}

func Load(path string) (*Checkpoint, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cp Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, fmt.Errorf("failed to parse checkpoint: %w", err)
	}
	return &cp, nil
}

// Clear removes every checkpoint, typically after a run completed.
func (m *Manager) Clear() error {
	entries, err := m.list()
	if err != nil {
		return err
	}
	var errs []error
	for _, e := range entries {
		if err := os.Remove(e.path); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, err)
		}
	}
	if len(entries) > 0 {
		m.logger.Infof("Cleared %d checkpoints", len(entries))
	}
	return errors.Join(errs...)
}
