package apitransport

import (
	"io"
	"strings"

	"github.com/valyala/fasttemplate"

	"github.com/obsidianstack/alertrelay/pkg/types"
)

const (
	tagStart = "{{"
	tagEnd   = "}}"
)

// Renderer substitutes alert fields into operator-authored text.
// Implementations must not fail: missing data renders as empty text.
type Renderer interface {
	Render(tmpl string, alert types.Alert) string
}

// SimpleTemplate renders {{ name }} placeholders. The name may carry a leading
// '$' and may be a dotted path into nested alert fields, so {{ $severity }},
// {{severity}} and {{ faults.0.ip }} are all valid.
type SimpleTemplate struct {
	// KeepUnknown leaves placeholders for missing fields in the output
	// instead of replacing them with "".
	KeepUnknown bool
}

// Render implements Renderer.
func (s SimpleTemplate) Render(tmpl string, alert types.Alert) string {
	if !strings.Contains(tmpl, tagStart) {
		return tmpl
	}
	return fasttemplate.ExecuteFuncString(tmpl, tagStart, tagEnd, func(w io.Writer, tag string) (int, error) {
		name, ok := placeholderName(tag)
		if ok {
			if v, found := alert.Lookup(name); found {
				return io.WriteString(w, v)
			}
		}
		if s.KeepUnknown || !ok {
			return io.WriteString(w, tagStart+tag+tagEnd)
		}
		return 0, nil
	})
}

// placeholderName extracts the field path from the text between the braces.
// Anything that is not a plain path is not a placeholder and is left alone.
func placeholderName(tag string) (string, bool) {
	name := strings.TrimPrefix(strings.TrimSpace(tag), "$")
	if name == "" {
		return "", false
	}
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == '_', r == '-', r == '.', r == ':':
		default:
			return "", false
		}
	}
	return name, true
}
