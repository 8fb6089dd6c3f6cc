// Package artifact implements the artifact manager: creation, on-disk
// manifest persistence, and extraction of <artifact> blocks from model
// output.
package artifact

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cli-engineer/agent/internal/domain/entity"
)

// EventSink is the subset of the event bus the artifact manager needs.
type EventSink interface {
	Emit(entity.Event)
}

const manifestFileName = "manifest.json"

// Manager owns the artifact directory, the in-memory artifact list, and the
// on-disk manifest. All access is serialized by a single internal lock.
type Manager struct {
	mu  sync.Mutex
	dir string

	artifacts []entity.Artifact
	bus       EventSink
	logger    *zap.Logger
}

// NewManager builds a manager rooted at dir, creating it if necessary.
func NewManager(dir string, bus EventSink, logger *zap.Logger) (*Manager, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("artifact: create directory: %w", err)
	}
	m := &Manager{dir: dir, bus: bus, logger: logger}
	m.loadManifest()
	return m, nil
}

func (m *Manager) manifestPath() string {
	return filepath.Join(m.dir, manifestFileName)
}

func (m *Manager) loadManifest() {
	data, err := os.ReadFile(m.manifestPath())
	if err != nil {
		return
	}
	var records []entity.Artifact
	if err := json.Unmarshal(data, &records); err != nil {
		m.logger.Warn("artifact: malformed manifest, starting fresh", zap.Error(err))
		return
	}
	m.artifacts = records
}

// extensionFor resolves the file extension for an artifact, per §4.5's
// type-driven rules. metadata may carry a "language" or "format" hint.
func extensionFor(t entity.ArtifactType, metadata map[string]string) string {
	switch t.String() {
	case "SourceCode":
		if lang := metadata["language"]; lang != "" {
			return languageExtension(lang)
		}
		return ".txt"
	case "Configuration":
		if format := metadata["format"]; format != "" {
			switch strings.ToLower(format) {
			case "toml":
				return ".toml"
			case "json":
				return ".json"
			case "yaml", "yml":
				return ".yaml"
			}
		}
		return ".toml"
	case "Documentation":
		return ".md"
	case "Test":
		if lang := metadata["language"]; lang != "" {
			return "_test" + languageExtension(lang)
		}
		return "_test.txt"
	case "Script":
		return ".sh"
	case "Build":
		if name := metadata["build_tool"]; name != "" {
			return ""
		}
		return ""
	case "Data":
		return ".json"
	default:
		// Other(s): the type string itself is the extension hint.
		s := t.String()
		if s == "" {
			return ".txt"
		}
		if strings.HasPrefix(s, ".") {
			return s
		}
		return "." + s
	}
}

func languageExtension(lang string) string {
	switch strings.ToLower(lang) {
	case "go", "golang":
		return ".go"
	case "python", "py":
		return ".py"
	case "javascript", "js":
		return ".js"
	case "typescript", "ts":
		return ".ts"
	case "rust", "rs":
		return ".rs"
	case "java":
		return ".java"
	case "c":
		return ".c"
	case "cpp", "c++":
		return ".cpp"
	case "shell", "bash", "sh":
		return ".sh"
	default:
		return "." + strings.ToLower(lang)
	}
}

// resolvePath computes the artifact's on-disk path: {dir}/{name} when name
// already looks like a path (contains a separator or an extension),
// otherwise {dir}/{name}{ext}.
func (m *Manager) resolvePath(name, ext string) string {
	if strings.ContainsRune(name, '/') || strings.ContainsRune(name, filepath.Separator) || filepath.Ext(name) != "" {
		return filepath.Join(m.dir, name)
	}
	return filepath.Join(m.dir, name+ext)
}

// CreateArtifact writes content atomically, records it, persists the
// manifest, and emits ArtifactCreated.
func (m *Manager) CreateArtifact(name string, t entity.ArtifactType, content string, metadata map[string]string) (entity.Artifact, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ext := extensionFor(t, metadata)
	path := m.resolvePath(name, ext)

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return entity.Artifact{}, fmt.Errorf("artifact: create parent dirs for %s: %w", path, err)
	}
	if err := writeAtomic(path, content); err != nil {
		return entity.Artifact{}, fmt.Errorf("artifact: write %s: %w", path, err)
	}

	now := time.Now()
	rec := entity.Artifact{
		ID:        uuid.NewString(),
		Name:      name,
		Type:      t,
		Path:      path,
		Content:   content,
		CreatedAt: now,
		UpdatedAt: now,
		Metadata:  metadata,
	}
	m.artifacts = append(m.artifacts, rec)
	if err := m.persistManifestLocked(); err != nil {
		m.logger.Warn("artifact: failed to persist manifest", zap.Error(err))
	}

	if m.bus != nil {
		m.bus.Emit(entity.NewArtifactCreated(rec.Name, rec.Path, rec.Type.String()))
	}
	m.logger.Debug("artifact created", zap.String("name", name), zap.String("path", path))
	return rec, nil
}

func writeAtomic(path, content string) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".artifact-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.WriteString(content); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpPath, path)
}

func (m *Manager) persistManifestLocked() error {
	data, err := json.MarshalIndent(m.artifacts, "", "  ")
	if err != nil {
		return err
	}
	return writeAtomic(m.manifestPath(), string(data))
}

// ListArtifacts returns a snapshot of the current artifact records.
func (m *Manager) ListArtifacts() []entity.Artifact {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]entity.Artifact, len(m.artifacts))
	copy(out, m.artifacts)
	return out
}

// Cleanup removes files under the artifact directory not referenced by any
// artifact record. Intended for shutdown, and only when configured.
func (m *Manager) Cleanup() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	referenced := make(map[string]bool, len(m.artifacts))
	for _, a := range m.artifacts {
		referenced[filepath.Clean(a.Path)] = true
	}
	referenced[filepath.Clean(m.manifestPath())] = true

	return filepath.Walk(m.dir, func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return nil
		}
		if !referenced[filepath.Clean(path)] {
			if rmErr := os.Remove(path); rmErr != nil {
				m.logger.Warn("artifact: cleanup failed to remove file", zap.String("path", path), zap.Error(rmErr))
			}
		}
		return nil
	})
}
