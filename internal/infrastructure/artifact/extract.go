package artifact

import (
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/cli-engineer/agent/internal/domain/entity"
	"github.com/cli-engineer/agent/internal/domain/service"
)

// ProspectiveArtifact is one candidate extracted from model output, not yet
// written to disk.
type ProspectiveArtifact struct {
	Name    string
	Type    entity.ArtifactType
	Content string
}

// openTag matches an <artifact name="..." type="..."> opening tag only,
// tolerating attribute order and surrounding whitespace. Closing tags are
// located separately so a block missing </artifact> can be detected and
// logged instead of silently failing to match at all.
var openTag = regexp.MustCompile(`<artifact\s+([^>]*)>`)

const closeTag = "</artifact>"

// attrPattern accepts both double- and single-quoted attribute values.
var attrPattern = regexp.MustCompile(`(\w+)\s*=\s*(?:"([^"]*)"|'([^']*)')`)

// ExtractArtifacts scans text for <artifact> blocks. A block missing a
// required name attribute, or missing its closing tag, is skipped and
// logged; extraction itself never fails. Unknown type attributes map to
// Other(string). Linear over the input text.
func ExtractArtifacts(text string, logger *zap.Logger) []ProspectiveArtifact {
	if logger == nil {
		logger = zap.NewNop()
	}

	var out []ProspectiveArtifact
	pos := 0
	for pos < len(text) {
		loc := openTag.FindStringSubmatchIndex(text[pos:])
		if loc == nil {
			break
		}
		tagEnd := pos + loc[1]
		attrsRaw := text[pos+loc[2] : pos+loc[3]]

		closeIdx := strings.Index(text[tagEnd:], closeTag)
		if closeIdx < 0 {
			logger.Warn("artifact: skipping block missing closing tag")
			pos = tagEnd
			continue
		}
		contentEnd := tagEnd + closeIdx

		attrs := parseAttrs(attrsRaw)
		name, hasName := attrs["name"]
		typeAttr, hasType := attrs["type"]
		if !hasName || name == "" {
			logger.Warn("artifact: skipping block missing name attribute")
			pos = contentEnd + len(closeTag)
			continue
		}
		if !hasType {
			typeAttr = "Other"
		}

		content := trimOuter(text[tagEnd:contentEnd])
		out = append(out, ProspectiveArtifact{
			Name:    name,
			Type:    entity.ParseArtifactType(typeAttr),
			Content: content,
		})
		pos = contentEnd + len(closeTag)
	}
	return out
}

// Extractor adapts ExtractArtifacts to the executor's ArtifactExtractor
// interface, so the domain layer never imports this package directly.
type Extractor struct {
	Logger *zap.Logger
}

// Extract implements service.ArtifactExtractor.
func (x Extractor) Extract(reply string) []service.ExtractedArtifact {
	prospects := ExtractArtifacts(reply, x.Logger)
	out := make([]service.ExtractedArtifact, len(prospects))
	for i, p := range prospects {
		out[i] = service.ExtractedArtifact{Name: p.Name, Type: p.Type, Content: p.Content}
	}
	return out
}

// parseAttrs reads name="value" or name='value' pairs from raw.
func parseAttrs(raw string) map[string]string {
	attrs := make(map[string]string)
	for _, m := range attrPattern.FindAllStringSubmatch(raw, -1) {
		value := m[2] // double-quoted capture
		if value == "" && m[3] != "" {
			value = m[3] // single-quoted capture
		}
		attrs[m[1]] = value
	}
	return attrs
}

// trimOuter strips at most one leading and one trailing newline, the
// typical artifact of the LLM putting the opening/closing tags on their own
// line, without touching internal indentation.
func trimOuter(s string) string {
	if len(s) > 0 && s[0] == '\n' {
		s = s[1:]
	}
	if n := len(s); n > 0 && s[n-1] == '\n' {
		s = s[:n-1]
	}
	return s
}
