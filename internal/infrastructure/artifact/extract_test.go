package artifact

import (
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestExtractArtifacts_Basic(t *testing.T) {
	text := `Here is the file:
<artifact name="main.go" type="SourceCode">
package main

func main() {}
</artifact>
Done.`

	got := ExtractArtifacts(text, nil)
	if len(got) != 1 {
		t.Fatalf("expected 1 artifact, got %d", len(got))
	}
	if got[0].Name != "main.go" {
		t.Errorf("Name: got %q", got[0].Name)
	}
	if got[0].Type.String() != "SourceCode" {
		t.Errorf("Type: got %q", got[0].Type.String())
	}
	if got[0].Content != "package main\n\nfunc main() {}" {
		t.Errorf("Content: got %q", got[0].Content)
	}
}

func TestExtractArtifacts_MultipleBlocks(t *testing.T) {
	text := `<artifact name="a.go" type="SourceCode">A</artifact>
some text
<artifact name="b.md" type="Documentation">B</artifact>`

	got := ExtractArtifacts(text, nil)
	if len(got) != 2 {
		t.Fatalf("expected 2 artifacts, got %d", len(got))
	}
	if got[0].Name != "a.go" || got[1].Name != "b.md" {
		t.Errorf("unexpected names: %+v", got)
	}
}

func TestExtractArtifacts_SkipsMissingName(t *testing.T) {
	text := `<artifact type="SourceCode">no name here</artifact>`
	got := ExtractArtifacts(text, nil)
	if len(got) != 0 {
		t.Errorf("expected malformed block to be skipped, got %d", len(got))
	}
}

func TestExtractArtifacts_UnknownTypeMapsToOther(t *testing.T) {
	text := `<artifact name="weird.xyz" type="Unknown">stuff</artifact>`
	got := ExtractArtifacts(text, nil)
	if len(got) != 1 {
		t.Fatalf("expected 1 artifact, got %d", len(got))
	}
	if !got[0].Type.IsOther() {
		t.Error("expected Other variant for unrecognized type")
	}
	if got[0].Type.String() != "Unknown" {
		t.Errorf("expected Other(\"Unknown\"), got %q", got[0].Type.String())
	}
}

func TestExtractArtifacts_NoBlocks(t *testing.T) {
	got := ExtractArtifacts("plain text, nothing to extract", nil)
	if len(got) != 0 {
		t.Errorf("expected no artifacts, got %d", len(got))
	}
}

func TestExtractArtifacts_MissingTypeDefaultsOther(t *testing.T) {
	text := `<artifact name="thing.txt">content</artifact>`
	got := ExtractArtifacts(text, nil)
	if len(got) != 1 {
		t.Fatalf("expected 1 artifact, got %d", len(got))
	}
	if !got[0].Type.IsOther() {
		t.Error("missing type attribute should map to Other")
	}
}

func TestExtractArtifacts_SingleQuotedAttributesAccepted(t *testing.T) {
	text := `<artifact name='main.go' type='SourceCode'>package main</artifact>`
	got := ExtractArtifacts(text, nil)
	if len(got) != 1 {
		t.Fatalf("expected 1 artifact, got %d", len(got))
	}
	if got[0].Name != "main.go" {
		t.Errorf("Name: got %q", got[0].Name)
	}
	if got[0].Type.String() != "SourceCode" {
		t.Errorf("Type: got %q", got[0].Type.String())
	}
}

func TestExtractArtifacts_MixedQuoteStyles(t *testing.T) {
	text := `<artifact name="a.go" type='SourceCode'>A</artifact>`
	got := ExtractArtifacts(text, nil)
	if len(got) != 1 || got[0].Name != "a.go" || got[0].Type.String() != "SourceCode" {
		t.Errorf("expected mixed quote styles to parse cleanly, got %+v", got)
	}
}

func TestExtractArtifacts_OneValidOneMissingClosingTag(t *testing.T) {
	// spec §8 concrete scenario 6: one valid artifact plus one malformed block
	// missing its closing tag still yields the valid artifact and a warning.
	text := `<artifact name="a.go" type="SourceCode">package a</artifact>
<artifact name="b.go" type="SourceCode">
package b, never closed`

	got := ExtractArtifacts(text, nil)
	if len(got) != 1 {
		t.Fatalf("expected exactly 1 artifact extracted, got %d: %+v", len(got), got)
	}
	if got[0].Name != "a.go" {
		t.Errorf("expected the valid block to survive, got %q", got[0].Name)
	}
}

func TestExtractArtifacts_MissingClosingTagLogsWarning(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	logger := zap.New(core)

	text := `<artifact name="b.go" type="SourceCode">
package b, never closed`

	ExtractArtifacts(text, logger)

	if logs.Len() != 1 {
		t.Fatalf("expected exactly 1 warning logged, got %d", logs.Len())
	}
	if logs.All()[0].Message != "artifact: skipping block missing closing tag" {
		t.Errorf("unexpected warning message: %q", logs.All()[0].Message)
	}
}
