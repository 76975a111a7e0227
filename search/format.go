package search

import (
	"fmt"
	"strings"

	"github.com/poiesic/medrag/core"
)

const (
	// PreviewLength is the number of characters of each chunk in formatted context.
	PreviewLength = 500

	// MaxFormattedEntities caps the entities listed in formatted context.
	MaxFormattedEntities = 5
)

// FormatContext renders rc as prompt context: chunk previews, up to
// MaxFormattedEntities entities and every graph path. Empty sections are omitted.
func FormatContext(rc *core.RAGContext) string {
	if rc == nil {
		return ""
	}
	var b strings.Builder

	if len(rc.Chunks) > 0 {
		b.WriteString("## Relevant Medical Knowledge:\n")
		for i, c := range rc.Chunks {
			fmt.Fprintf(&b, "[Source %d]: %s...\n", i+1, preview(c.Chunk.Text, PreviewLength))
		}
	}

	if len(rc.Entities) > 0 {
		b.WriteString("\n## Related Medical Entities:\n")
		for _, hit := range rc.Entities[:min(len(rc.Entities), MaxFormattedEntities)] {
			fmt.Fprintf(&b, "- %s: %s", hit.Entity.Type, hit.Entity.Name)
			if hit.Entity.Description != "" {
				fmt.Fprintf(&b, " - %s", hit.Entity.Description)
			}
			b.WriteString("\n")
		}
	}

	if len(rc.GraphPaths) > 0 {
		b.WriteString("\n## Clinical Relationships:\n")
		for _, path := range rc.GraphPaths {
			fmt.Fprintf(&b, "- %s\n", path)
		}
	}

	return b.String()
}

func preview(text string, n int) string {
	runes := []rune(text)
	if len(runes) <= n {
		return text
	}
	return string(runes[:n])
}
