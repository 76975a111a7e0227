package search

import (
	"github.com/poiesic/medrag/core"
)

// Monitor provides hooks to observe the retrieval process.
// Callbacks are made from the calling goroutine after all channels have
// finished, in the order listed here.
type Monitor interface {
	Start(query string)
	AfterSemanticSearch(hits []core.ChunkHit)
	AfterKeywordSearch(hits []core.ChunkHit)
	AfterEntitySearch(hits []core.EntityHit)
	AfterGraphTraversal(candidates []string, paths []string)
	ChannelFailed(status core.ChannelStatus)
	Finish(result *core.RAGContext)
}

// noopMonitor is a no-op implementation of Monitor
type noopMonitor struct{}

var _ Monitor = (*noopMonitor)(nil)

func (n *noopMonitor) Start(_ string)                             {}
func (n *noopMonitor) AfterSemanticSearch(_ []core.ChunkHit)      {}
func (n *noopMonitor) AfterKeywordSearch(_ []core.ChunkHit)       {}
func (n *noopMonitor) AfterEntitySearch(_ []core.EntityHit)       {}
func (n *noopMonitor) AfterGraphTraversal(_ []string, _ []string) {}
func (n *noopMonitor) ChannelFailed(_ core.ChannelStatus)         {}
func (n *noopMonitor) Finish(_ *core.RAGContext)                  {}
