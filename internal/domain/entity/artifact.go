package entity

import "time"

// ArtifactType classifies a produced file for extension resolution and
// manifest bookkeeping. Other carries an arbitrary type string verbatim
// from an unrecognized <artifact type="..."> attribute.
type ArtifactType struct {
	kind  string
	other string
}

var (
	ArtifactSourceCode    = ArtifactType{kind: "SourceCode"}
	ArtifactConfiguration = ArtifactType{kind: "Configuration"}
	ArtifactDocumentation = ArtifactType{kind: "Documentation"}
	ArtifactTest          = ArtifactType{kind: "Test"}
	ArtifactBuild         = ArtifactType{kind: "Build"}
	ArtifactScript        = ArtifactType{kind: "Script"}
	ArtifactData          = ArtifactType{kind: "Data"}
)

// ArtifactOther wraps an unrecognized type string.
func ArtifactOther(s string) ArtifactType {
	return ArtifactType{kind: "Other", other: s}
}

// String returns the wire representation of the type: the recognized kind
// name, or the raw string for Other.
func (t ArtifactType) String() string {
	if t.kind == "Other" {
		return t.other
	}
	return t.kind
}

// IsOther reports whether this is an Other(string) variant.
func (t ArtifactType) IsOther() bool {
	return t.kind == "Other"
}

// ParseArtifactType maps a type attribute string from an <artifact> block to
// an ArtifactType, falling back to Other(s) for anything unrecognized.
func ParseArtifactType(s string) ArtifactType {
	switch s {
	case "SourceCode":
		return ArtifactSourceCode
	case "Configuration":
		return ArtifactConfiguration
	case "Documentation":
		return ArtifactDocumentation
	case "Test":
		return ArtifactTest
	case "Build":
		return ArtifactBuild
	case "Script":
		return ArtifactScript
	case "Data":
		return ArtifactData
	default:
		return ArtifactOther(s)
	}
}

// Artifact is a file produced by the agent, tracked in the manifest.
type Artifact struct {
	ID        string
	Name      string
	Type      ArtifactType
	Path      string
	Content   string
	CreatedAt time.Time
	UpdatedAt time.Time
	Metadata  map[string]string
}
