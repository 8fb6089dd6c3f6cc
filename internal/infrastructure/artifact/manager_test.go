package artifact

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/cli-engineer/agent/internal/domain/entity"
)

type recordingBus struct {
	events []entity.Event
}

func (r *recordingBus) Emit(e entity.Event) {
	r.events = append(r.events, e)
}

func TestManager_CreateArtifact_ResolvesExtension(t *testing.T) {
	dir := t.TempDir()
	bus := &recordingBus{}
	m, err := NewManager(dir, bus, nil)
	if err != nil {
		t.Fatal(err)
	}

	art, err := m.CreateArtifact("hello", entity.ArtifactSourceCode, "package main", map[string]string{"language": "go"})
	if err != nil {
		t.Fatal(err)
	}
	if filepath.Ext(art.Path) != ".go" {
		t.Errorf("expected .go extension, got %s", art.Path)
	}
	data, err := os.ReadFile(art.Path)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "package main" {
		t.Errorf("content mismatch: %q", data)
	}
	if len(bus.events) != 1 || bus.events[0].Kind != entity.EventArtifactCreated {
		t.Error("expected ArtifactCreated event")
	}
}

func TestManager_CreateArtifact_NameWithExtensionUsedVerbatim(t *testing.T) {
	dir := t.TempDir()
	m, err := NewManager(dir, nil, nil)
	if err != nil {
		t.Fatal(err)
	}

	art, err := m.CreateArtifact("src/app.py", entity.ArtifactSourceCode, "print(1)", nil)
	if err != nil {
		t.Fatal(err)
	}
	want := filepath.Join(dir, "src/app.py")
	if art.Path != want {
		t.Errorf("expected path %q, got %q", want, art.Path)
	}
}

func TestManager_ListArtifacts_Snapshot(t *testing.T) {
	dir := t.TempDir()
	m, err := NewManager(dir, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	_, _ = m.CreateArtifact("a", entity.ArtifactDocumentation, "# A", nil)
	_, _ = m.CreateArtifact("b", entity.ArtifactDocumentation, "# B", nil)

	list := m.ListArtifacts()
	if len(list) != 2 {
		t.Fatalf("expected 2 artifacts, got %d", len(list))
	}

	list[0].Name = "mutated"
	if m.ListArtifacts()[0].Name == "mutated" {
		t.Error("ListArtifacts must return a snapshot, not a live reference")
	}
}

func TestManager_ManifestPersistedAndReloaded(t *testing.T) {
	dir := t.TempDir()
	m1, err := NewManager(dir, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	_, _ = m1.CreateArtifact("note", entity.ArtifactDocumentation, "# Note", nil)

	m2, err := NewManager(dir, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(m2.ListArtifacts()) != 1 {
		t.Errorf("expected manifest reload to recover 1 artifact, got %d", len(m2.ListArtifacts()))
	}
}

func TestManager_Cleanup_RemovesUnreferencedFiles(t *testing.T) {
	dir := t.TempDir()
	m, err := NewManager(dir, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	_, _ = m.CreateArtifact("kept", entity.ArtifactDocumentation, "# kept", nil)

	strayPath := filepath.Join(dir, "stray.txt")
	if err := os.WriteFile(strayPath, []byte("junk"), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := m.Cleanup(); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(strayPath); !os.IsNotExist(err) {
		t.Error("expected stray file to be removed by cleanup")
	}
	if _, err := os.Stat(filepath.Join(dir, "kept.md")); err != nil {
		t.Error("expected referenced artifact to survive cleanup")
	}
}
