package progress

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/Iron-Ham/fanout/internal/logging"
)

// Source supplies progress snapshots.
type Source interface {
	Snapshot() []AgentProgress
}

// StaticSource is a fixed snapshot.
type StaticSource []AgentProgress

// Snapshot implements Source.
func (s StaticSource) Snapshot() []AgentProgress {
	return slices.Clone(s)
}

// snapshotFile is the mapping form of a snapshot file.
type snapshotFile struct {
	Agents []AgentProgress `yaml:"agents"`
}

// ParseSnapshot decodes a JSON or YAML snapshot: either a list of agent
// reports or a mapping with an "agents" list.
func ParseSnapshot(data []byte) ([]AgentProgress, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}
	var node yaml.Node
	if err := yaml.Unmarshal(data, &node); err != nil {
		return nil, fmt.Errorf("parsing progress snapshot: %w", err)
	}
	if len(node.Content) == 0 {
		return nil, nil
	}
	root := node.Content[0]
	switch root.Kind {
	case yaml.SequenceNode:
		var reports []AgentProgress
		if err := root.Decode(&reports); err != nil {
			return nil, fmt.Errorf("decoding progress snapshot: %w", err)
		}
		return reports, nil
	case yaml.MappingNode:
		var f snapshotFile
		if err := root.Decode(&f); err != nil {
			return nil, fmt.Errorf("decoding progress snapshot: %w", err)
		}
		return f.Agents, nil
	default:
		return nil, fmt.Errorf("progress snapshot must be a list or a mapping with an agents key")
	}
}

// LoadSnapshotFile reads and parses a snapshot file.
func LoadSnapshotFile(path string) ([]AgentProgress, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading progress snapshot: %w", err)
	}
	return ParseSnapshot(data)
}

// DebounceInterval coalesces bursts of filesystem events; many editors emit
// several events for a single save.
const DebounceInterval = 50 * time.Millisecond

// FileSource serves the latest parsed contents of a snapshot file and
// re-reads it whenever the file changes.
type FileSource struct {
	path    string
	watcher *fsnotify.Watcher
	logger  *logging.Logger

	mu       sync.RWMutex
	snapshot []AgentProgress
	lastErr  error
	onChange func([]AgentProgress)

	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewFileSource loads path and prepares to watch it. The parent directory
// is watched so editors that replace the file atomically are still seen.
func NewFileSource(path string, logger *logging.Logger) (*FileSource, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	reports, err := LoadSnapshotFile(abs)
	if err != nil {
		return nil, err
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		_ = watcher.Close()
		return nil, err
	}
	return &FileSource{
		path:     abs,
		watcher:  watcher,
		logger:   logging.OrNop(logger),
		snapshot: reports,
		stopCh:   make(chan struct{}),
	}, nil
}

// SetChangeCallback registers a function called with every successfully
// reloaded snapshot.
func (s *FileSource) SetChangeCallback(cb func([]AgentProgress)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onChange = cb
}

// Snapshot implements Source.
func (s *FileSource) Snapshot() []AgentProgress {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.snapshot)
}

// Err returns the most recent reload error, or nil after a good reload.
func (s *FileSource) Err() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastErr
}

// Start begins watching for changes.
func (s *FileSource) Start() {
	go s.watchLoop()
}

// Stop stops watching. It is safe to call more than once.
func (s *FileSource) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopCh)
		_ = s.watcher.Close()
	})
}

func (s *FileSource) watchLoop() {
	debounce := time.NewTimer(DebounceInterval)
	debounce.Stop()
	pending := false

	for {
		select {
		case <-s.stopCh:
			debounce.Stop()
			return

		case event, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != s.path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			pending = true
			debounce.Reset(DebounceInterval)

		case <-debounce.C:
			if pending {
				pending = false
				s.reload()
			}

		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			s.logger.Warn("progress watcher error", "path", s.path, "error", err)
		}
	}
}

func (s *FileSource) reload() {
	reports, err := LoadSnapshotFile(s.path)

	s.mu.Lock()
	if err != nil {
		s.lastErr = err
		s.mu.Unlock()
		s.logger.Warn("keeping previous progress snapshot", "path", s.path, "error", err)
		return
	}
	s.snapshot = reports
	s.lastErr = nil
	cb := s.onChange
	s.mu.Unlock()

	s.logger.Debug("progress snapshot reloaded", "path", s.path, "agents", len(reports))
	if cb != nil {
		cb(slices.Clone(reports))
	}
}
