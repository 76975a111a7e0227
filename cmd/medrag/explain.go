package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/poiesic/medrag/core"
	"github.com/poiesic/medrag/search"
)

// printingMonitor reports each retrieval channel as it is merged.
type printingMonitor struct {
	w io.Writer
}

var _ search.Monitor = (*printingMonitor)(nil)

func newPrintingMonitor(w io.Writer) *printingMonitor {
	return &printingMonitor{w: w}
}

func (m *printingMonitor) Start(query string) {
	fmt.Fprintf(m.w, "Query: %q\n", query)
}

func (m *printingMonitor) AfterSemanticSearch(hits []core.ChunkHit) {
	m.chunkHits("vector", hits)
}

func (m *printingMonitor) AfterKeywordSearch(hits []core.ChunkHit) {
	m.chunkHits("keyword", hits)
}

func (m *printingMonitor) chunkHits(channel string, hits []core.ChunkHit) {
	fmt.Fprintf(m.w, "  %s: %d chunks\n", channel, len(hits))
	for _, h := range hits {
		fmt.Fprintf(m.w, "    %.3f %s\n", h.Score, h.Chunk.ID)
	}
}

func (m *printingMonitor) AfterEntitySearch(hits []core.EntityHit) {
	fmt.Fprintf(m.w, "  entity: %d entities\n", len(hits))
	for _, h := range hits {
		fmt.Fprintf(m.w, "    %.3f %s:%s\n", h.Score, h.Entity.Type, h.Entity.Name)
	}
}

func (m *printingMonitor) AfterGraphTraversal(candidates []string, paths []string) {
	fmt.Fprintf(m.w, "  graph: %d paths from candidates [%s]\n", len(paths), strings.Join(candidates, ", "))
}

func (m *printingMonitor) ChannelFailed(status core.ChannelStatus) {
	fmt.Fprintf(m.w, "  %s failed after %v: %v\n", status.Name, status.Elapsed, status.Err)
}

func (m *printingMonitor) Finish(result *core.RAGContext) {
	fmt.Fprintf(m.w, "  merged: %d chunks, confidence %.2f\n\n", len(result.Chunks), result.Confidence)
}
